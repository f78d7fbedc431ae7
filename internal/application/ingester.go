package application

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aviary-social/aviary"
	"github.com/aviary-social/aviary/internal/domain"
	"github.com/aviary-social/aviary/internal/usecase"
)

// EventSource is a resumable ordered stream of repo events.
type EventSource interface {
	Subscribe(ctx context.Context, cursor int64, out chan<- aviary.Event) error
}

// Ingester drives the fan-out pipeline: it consumes the event stream in
// order, periodically checkpoints its position, and prunes feeds down to
// the configured retention cap.
type Ingester struct {
	ingest *usecase.IngestUsecase
	feeds  usecase.FeedRepository
	config usecase.ConfigRepository
	source EventSource

	position     atomic.Int64
	checkpointed int64
}

func NewIngester(
	ingest *usecase.IngestUsecase,
	feeds usecase.FeedRepository,
	config usecase.ConfigRepository,
	source EventSource,
) *Ingester {
	return &Ingester{
		ingest: ingest,
		feeds:  feeds,
		config: config,
		source: source,
	}
}

// Run blocks until ctx is cancelled. A final checkpoint is written on the
// way out so a restart resumes close to where it stopped.
func (i *Ingester) Run(ctx context.Context) error {
	cursor := i.loadCursor(ctx)
	i.position.Store(cursor)
	i.checkpointed = cursor

	events := make(chan aviary.Event, 256)
	go func() {
		if err := i.source.Subscribe(ctx, cursor, events); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("event stream terminated",
				slog.String("error", err.Error()),
				slog.String("module", "ingester"),
			)
		}
	}()

	checkpoint := time.NewTicker(domain.CheckpointInterval)
	defer checkpoint.Stop()
	prune := time.NewTicker(i.pruneInterval(ctx))
	defer prune.Stop()

	slog.Info("ingester started",
		slog.Int64("cursor", cursor),
		slog.String("module", "ingester"),
	)

	for {
		select {
		case <-ctx.Done():
			i.Checkpoint(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-checkpoint.C:
			i.Checkpoint(ctx)
		case <-prune.C:
			i.Prune(ctx)
		case event := <-events:
			if err := i.ingest.HandleEvent(ctx, event); err != nil {
				// The checkpoint must never move past a failed mutation.
				// Stop at the last applied event so a restart replays
				// this one.
				slog.Error("failed to handle event",
					slog.String("did", event.DID),
					slog.Int64("time_us", event.TimeUS),
					slog.String("error", err.Error()),
					slog.String("module", "ingester"),
				)
				i.Checkpoint(context.WithoutCancel(ctx))
				return err
			}
			i.position.Store(event.TimeUS)
		}
	}
}

// Checkpoint persists the stream position if it moved since the last write.
func (i *Ingester) Checkpoint(ctx context.Context) {
	pos := i.position.Load()
	if pos == i.checkpointed {
		return
	}
	err := i.config.Set(ctx, domain.ConfigKeyCursor, strconv.FormatInt(pos, 10))
	if err != nil {
		slog.Error("failed to checkpoint cursor",
			slog.Int64("cursor", pos),
			slog.String("error", err.Error()),
			slog.String("module", "ingester"),
		)
		return
	}
	i.checkpointed = pos
}

// Prune trims every feed to the retention cap. The cap is re-read each
// run so it can be tuned without a restart; an unset cap disables pruning.
func (i *Ingester) Prune(ctx context.Context) {
	raw, err := i.config.Get(ctx, domain.ConfigKeyMaxPostsPerFeed)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("failed to read retention cap",
				slog.String("error", err.Error()),
				slog.String("module", "ingester"),
			)
		}
		return
	}

	keep, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || keep <= 0 {
		slog.Warn("ignoring invalid retention cap",
			slog.String("value", raw),
			slog.String("module", "ingester"),
		)
		return
	}

	boundaries, err := i.feeds.PruneBoundaries(ctx, keep)
	if err != nil {
		slog.Error("failed to compute prune boundaries",
			slog.String("error", err.Error()),
			slog.String("module", "ingester"),
		)
		return
	}

	var pruned int64
	for _, boundary := range boundaries {
		n, err := i.feeds.PruneFeed(ctx, boundary.Feed, boundary.TS)
		if err != nil {
			slog.Error("failed to prune feed",
				slog.String("feed", boundary.Feed),
				slog.String("error", err.Error()),
				slog.String("module", "ingester"),
			)
			continue
		}
		pruned += n
	}

	if pruned > 0 {
		slog.Info("pruned feeds",
			slog.Int("feeds", len(boundaries)),
			slog.Int64("entries", pruned),
			slog.String("module", "ingester"),
		)
	}
}

// loadCursor reads the checkpointed position. Absent or unreadable state
// means a live tail from now.
func (i *Ingester) loadCursor(ctx context.Context) int64 {
	raw, err := i.config.Get(ctx, domain.ConfigKeyCursor)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("failed to load cursor",
				slog.String("error", err.Error()),
				slog.String("module", "ingester"),
			)
		}
		return 0
	}
	cursor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("ignoring malformed cursor checkpoint",
			slog.String("value", raw),
			slog.String("module", "ingester"),
		)
		return 0
	}
	return cursor
}

func (i *Ingester) pruneInterval(ctx context.Context) time.Duration {
	raw, err := i.config.Get(ctx, domain.ConfigKeyPruneInterval)
	if err != nil {
		return domain.DefaultPruneInterval
	}
	interval, err := time.ParseDuration(raw)
	if err != nil || interval <= 0 {
		slog.Warn("ignoring invalid prune interval",
			slog.String("value", raw),
			slog.String("module", "ingester"),
		)
		return domain.DefaultPruneInterval
	}
	return interval
}
