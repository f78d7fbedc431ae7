package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/aviary-social/aviary/internal/domain"
	"github.com/aviary-social/aviary/internal/infrastructure/database/models"
)

type FeedRepository struct {
	db *gorm.DB
}

func NewFeedRepository(db *gorm.DB) *FeedRepository {
	return &FeedRepository{db: db}
}

// FanOutPost copies an original post into the feed of every follower of
// followee that subscribed to original posts. Re-delivery is a no-op: the
// (feed, post_uri) primary key absorbs conflicting inserts.
func (r *FeedRepository) FanOutPost(ctx context.Context, postURI string, ts int64, followee string) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		INSERT INTO posts (feed, post_uri, ts)
		SELECT follower, ?, ?
		FROM follows
		WHERE followee = ? AND posts
		ON CONFLICT (feed, post_uri) DO NOTHING`,
		postURI, ts, followee)
	return res.RowsAffected, res.Error
}

// FanOutReply copies a reply into the feeds of the reply author's followers
// that subscribed to replies.
func (r *FeedRepository) FanOutReply(ctx context.Context, postURI string, ts int64, followee string) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		INSERT INTO posts (feed, post_uri, ts)
		SELECT follower, ?, ?
		FROM follows
		WHERE followee = ? AND replies
		ON CONFLICT (feed, post_uri) DO NOTHING`,
		postURI, ts, followee)
	return res.RowsAffected, res.Error
}

// FanOutReplyTarget copies a reply into the feeds of the parent post
// author's followers that subscribed to replies targeting them. followee is
// the parent author, not the replier.
func (r *FeedRepository) FanOutReplyTarget(ctx context.Context, postURI string, ts int64, followee string) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		INSERT INTO posts (feed, post_uri, ts)
		SELECT follower, ?, ?
		FROM follows
		WHERE followee = ? AND replies_to
		ON CONFLICT (feed, post_uri) DO NOTHING`,
		postURI, ts, followee)
	return res.RowsAffected, res.Error
}

// FanOutRepost copies the reposted subject into the feeds of the reposting
// account's followers, annotated with the repost's own uri.
func (r *FeedRepository) FanOutRepost(ctx context.Context, repostURI, subjectURI string, ts int64, followee string) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		INSERT INTO posts (feed, rt, post_uri, ts)
		SELECT follower, ?, ?, ?
		FROM follows
		WHERE followee = ? AND reposts
		ON CONFLICT (feed, post_uri) DO NOTHING`,
		repostURI, subjectURI, ts, followee)
	return res.RowsAffected, res.Error
}

// DeleteByPostURI removes every entry whose post_uri matches, across all
// feeds. Deliberately matches post_uri only: deleting a repost record does
// not remove the entry it created, since that entry is keyed by the subject
// post's uri and carries the repost uri in rt.
func (r *FeedRepository) DeleteByPostURI(ctx context.Context, postURI string) (int64, error) {
	res := r.db.WithContext(ctx).Where("post_uri = ?", postURI).Delete(&models.Post{})
	return res.RowsAffected, res.Error
}

// ListPage returns up to limit entries of one feed with ts strictly below
// cursor, newest first.
func (r *FeedRepository) ListPage(ctx context.Context, feed string, cursor int64, limit int) ([]domain.FeedEntry, error) {
	var rows []models.Post
	err := r.db.WithContext(ctx).
		Where("feed = ? AND ts < ?", feed, cursor).
		Order("ts DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]domain.FeedEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, domain.FeedEntry{
			Feed:      row.Feed,
			PostURI:   row.PostURI,
			RepostURI: row.Rt,
			TS:        row.TS,
		})
	}
	return entries, nil
}

// FeedBoundary is the retention boundary of one over-long feed: the
// timestamp of its keep-th newest entry.
type FeedBoundary struct {
	Feed string
	TS   int64
}

// PruneBoundaries finds, for every feed holding at least keep entries, the
// timestamp of the keep-th newest one. Entries strictly older than that
// boundary are prune candidates; entries sharing the boundary timestamp are
// all retained.
func (r *FeedRepository) PruneBoundaries(ctx context.Context, keep int64) ([]FeedBoundary, error) {
	var boundaries []FeedBoundary
	err := r.db.WithContext(ctx).Raw(`
		WITH ranked AS (
			SELECT feed, ts,
				ROW_NUMBER() OVER (PARTITION BY feed ORDER BY ts DESC) AS n
			FROM posts)
		SELECT feed, ts FROM ranked WHERE n = ?`,
		keep).Scan(&boundaries).Error
	return boundaries, err
}

// PruneFeed deletes one feed's entries strictly older than ts.
func (r *FeedRepository) PruneFeed(ctx context.Context, feed string, ts int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("feed = ? AND ts < ?", feed, ts).Delete(&models.Post{})
	return res.RowsAffected, res.Error
}
