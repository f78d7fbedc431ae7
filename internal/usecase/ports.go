package usecase

import (
	"context"

	"github.com/aviary-social/aviary/internal/domain"
	"github.com/aviary-social/aviary/internal/infrastructure/repository"
)

// FeedRepository defines the feed store operations the ingestion and query
// paths depend on. Every write must be individually idempotent.
type FeedRepository interface {
	FanOutPost(ctx context.Context, postURI string, ts int64, followee string) (int64, error)
	FanOutReply(ctx context.Context, postURI string, ts int64, followee string) (int64, error)
	FanOutReplyTarget(ctx context.Context, postURI string, ts int64, followee string) (int64, error)
	FanOutRepost(ctx context.Context, repostURI, subjectURI string, ts int64, followee string) (int64, error)
	DeleteByPostURI(ctx context.Context, postURI string) (int64, error)
	ListPage(ctx context.Context, feed string, cursor int64, limit int) ([]domain.FeedEntry, error)
	PruneBoundaries(ctx context.Context, keep int64) ([]repository.FeedBoundary, error)
	PruneFeed(ctx context.Context, feed string, ts int64) (int64, error)
}

// RelationRepository defines persistence for subscription edges.
type RelationRepository interface {
	Get(ctx context.Context, follower, followee string) (domain.Relation, error)
	Put(ctx context.Context, rel domain.Relation) error
}

// ConfigRepository is the durable key-value store for the cursor and
// tunables.
type ConfigRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// SignalPublisher taps applied ingest mutations for realtime consumers.
type SignalPublisher interface {
	PublishMutation(ctx context.Context, kind, uri string, affected int64)
}
