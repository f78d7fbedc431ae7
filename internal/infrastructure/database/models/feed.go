package models

// Config is the durable key-value store backing the ingestion cursor and
// runtime tunables.
type Config struct {
	Key   string `json:"key" gorm:"primaryKey;type:text"`
	Value string `json:"value" gorm:"type:text;not null"`
}

func (Config) TableName() string { return "config" }

// Post is one fanned-out feed entry. A given post appears at most once per
// feed; Rt is set when the entry was surfaced by a repost.
type Post struct {
	Feed    string  `json:"feed" gorm:"primaryKey;type:text;index:idx_posts_feed_ts"`
	Rt      *string `json:"rt" gorm:"type:text"`
	PostURI string  `json:"postUri" gorm:"primaryKey;type:text;column:post_uri"`
	TS      int64   `json:"ts" gorm:"not null;index:idx_posts_feed_ts;column:ts"`
}

func (Post) TableName() string { return "posts" }

// Follow is one directed subscription edge with per-category flags. The
// ingester scans by followee during fan-out.
type Follow struct {
	Follower  string `json:"follower" gorm:"primaryKey;type:text"`
	Followee  string `json:"followee" gorm:"primaryKey;type:text;index:idx_follows_followee"`
	Posts     bool   `json:"posts" gorm:"not null"`
	Replies   bool   `json:"replies" gorm:"not null"`
	RepliesTo bool   `json:"repliesTo" gorm:"not null;column:replies_to"`
	Reposts   bool   `json:"reposts" gorm:"not null"`
}

func (Follow) TableName() string { return "follows" }
