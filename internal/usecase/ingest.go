package usecase

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/aviary-social/aviary"
)

// IngestUsecase classifies one firehose event at a time and propagates it
// into the per-recipient feeds. Events must be handed in delivery order;
// create/delete races are resolved purely by arrival order.
type IngestUsecase struct {
	feeds  FeedRepository
	signal SignalPublisher
}

func NewIngestUsecase(feeds FeedRepository, signal SignalPublisher) *IngestUsecase {
	return &IngestUsecase{feeds: feeds, signal: signal}
}

// HandleEvent applies zero or more idempotent feed mutations for one event.
// Records that fail validation for their declared collection are skipped,
// never surfaced as errors; store failures are returned so the caller can
// log and continue.
func (uc *IngestUsecase) HandleEvent(ctx context.Context, ev aviary.Event) error {
	if ev.Kind != aviary.EventKindCommit || ev.Commit == nil {
		return nil
	}

	uri := aviary.ComposeATURI(ev.DID, ev.Commit.Collection, ev.Commit.RKey)

	switch ev.Commit.Operation {
	case aviary.OperationCreate:
		return uc.handleCreate(ctx, ev, uri)
	case aviary.OperationDelete:
		affected, err := uc.feeds.DeleteByPostURI(ctx, uri)
		if err != nil {
			return errors.Wrap(err, "ingest: delete")
		}
		uc.publish(ctx, "delete", uri, affected)
		return nil
	default:
		return nil
	}
}

func (uc *IngestUsecase) handleCreate(ctx context.Context, ev aviary.Event, uri string) error {
	switch ev.Commit.Collection {
	case aviary.CollectionPost:
		var record aviary.PostRecord
		if err := json.Unmarshal(ev.Commit.Record, &record); err != nil || !validPost(record) {
			slog.Warn("ignoring invalid record",
				slog.String("uri", uri),
				slog.String("module", "ingest"),
			)
			return nil
		}

		if record.Reply == nil {
			affected, err := uc.feeds.FanOutPost(ctx, uri, ev.TimeUS, ev.DID)
			if err != nil {
				return errors.Wrap(err, "ingest: fan out post")
			}
			uc.publish(ctx, "post", uri, affected)
			return nil
		}

		// A reply fans out twice: to followers of its author, and to
		// followers of the parent post's author. The parent author is
		// embedded in the parent at-uri.
		affected, err := uc.feeds.FanOutReply(ctx, uri, ev.TimeUS, ev.DID)
		if err != nil {
			return errors.Wrap(err, "ingest: fan out reply")
		}
		target, err := uc.feeds.FanOutReplyTarget(ctx, uri, ev.TimeUS, aviary.AuthorFromATURI(record.Reply.Parent.URI))
		if err != nil {
			return errors.Wrap(err, "ingest: fan out reply target")
		}
		uc.publish(ctx, "reply", uri, affected+target)
		return nil

	case aviary.CollectionRepost:
		var record aviary.RepostRecord
		if err := json.Unmarshal(ev.Commit.Record, &record); err != nil || !validRepost(record) {
			slog.Warn("ignoring invalid record",
				slog.String("uri", uri),
				slog.String("module", "ingest"),
			)
			return nil
		}

		affected, err := uc.feeds.FanOutRepost(ctx, uri, record.Subject.URI, ev.TimeUS, ev.DID)
		if err != nil {
			return errors.Wrap(err, "ingest: fan out repost")
		}
		uc.publish(ctx, "repost", uri, affected)
		return nil

	default:
		return nil
	}
}

func validPost(record aviary.PostRecord) bool {
	if record.Type != "" && record.Type != aviary.CollectionPost {
		return false
	}
	if record.CreatedAt == "" {
		return false
	}
	if record.Reply != nil && record.Reply.Parent.URI == "" {
		return false
	}
	return true
}

func validRepost(record aviary.RepostRecord) bool {
	if record.Type != "" && record.Type != aviary.CollectionRepost {
		return false
	}
	return record.CreatedAt != "" && record.Subject.URI != ""
}

func (uc *IngestUsecase) publish(ctx context.Context, kind, uri string, affected int64) {
	if uc.signal == nil || affected == 0 {
		return
	}
	uc.signal.PublishMutation(ctx, kind, uri, affected)
}
