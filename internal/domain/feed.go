package domain

// FeedEntry is one item visible in one recipient's feed. PostURI identifies
// the underlying post; RepostURI is set when the entry was surfaced by a
// repost. (Feed, PostURI) is unique per recipient.
type FeedEntry struct {
	Feed      string
	PostURI   string
	RepostURI *string
	TS        int64
}

// Relation is one directed subscription edge. A missing row is equivalent to
// a Relation with all flags false.
type Relation struct {
	Follower  string
	Followee  string
	Posts     bool
	Replies   bool
	RepliesTo bool
	Reposts   bool
}

// ServiceIdentity holds the identity material the serving path needs,
// loaded from the durable config store at startup.
type ServiceIdentity struct {
	ServiceDid      string
	PublisherDid    string
	ServiceEndpoint string
	FeedRkey        string
}

// FeedURI is the at-uri of the feed generator record this service backs.
func (s ServiceIdentity) FeedURI() string {
	return "at://" + s.PublisherDid + "/app.bsky.feed.generator/" + s.FeedRkey
}
