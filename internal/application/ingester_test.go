package application

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aviary-social/aviary"
	"github.com/aviary-social/aviary/internal/domain"
	"github.com/aviary-social/aviary/internal/infrastructure/repository"
	"github.com/aviary-social/aviary/internal/usecase"
)

type fakeConfigRepo struct {
	values map[string]string
	sets   int
}

func (r *fakeConfigRepo) Get(ctx context.Context, key string) (string, error) {
	v, ok := r.values[key]
	if !ok {
		return "", domain.NotFoundError{Resource: "config " + key}
	}
	return v, nil
}

func (r *fakeConfigRepo) Set(ctx context.Context, key, value string) error {
	if r.values == nil {
		r.values = map[string]string{}
	}
	r.values[key] = value
	r.sets++
	return nil
}

type fakeFeedRepo struct {
	boundaries  []repository.FeedBoundary
	boundaryKey int64
	pruned      map[string]int64
	failURI     string
}

func (r *fakeFeedRepo) FanOutPost(ctx context.Context, postURI string, ts int64, followee string) (int64, error) {
	if r.failURI != "" && postURI == r.failURI {
		return 0, errors.New("insert failed")
	}
	return 1, nil
}

func (r *fakeFeedRepo) FanOutReply(ctx context.Context, postURI string, ts int64, followee string) (int64, error) {
	return 0, nil
}

func (r *fakeFeedRepo) FanOutReplyTarget(ctx context.Context, postURI string, ts int64, followee string) (int64, error) {
	return 0, nil
}

func (r *fakeFeedRepo) FanOutRepost(ctx context.Context, repostURI, subjectURI string, ts int64, followee string) (int64, error) {
	return 0, nil
}

func (r *fakeFeedRepo) DeleteByPostURI(ctx context.Context, postURI string) (int64, error) {
	return 0, nil
}

func (r *fakeFeedRepo) ListPage(ctx context.Context, feed string, cursor int64, limit int) ([]domain.FeedEntry, error) {
	return nil, nil
}

func (r *fakeFeedRepo) PruneBoundaries(ctx context.Context, keep int64) ([]repository.FeedBoundary, error) {
	r.boundaryKey = keep
	return r.boundaries, nil
}

func (r *fakeFeedRepo) PruneFeed(ctx context.Context, feed string, ts int64) (int64, error) {
	if r.pruned == nil {
		r.pruned = map[string]int64{}
	}
	r.pruned[feed] = ts
	return 3, nil
}

func TestCheckpointOnlyWhenMoved(t *testing.T) {
	ctx := context.Background()
	config := &fakeConfigRepo{}
	ingester := NewIngester(nil, &fakeFeedRepo{}, config, nil)

	ingester.Checkpoint(ctx)
	if config.sets != 0 {
		t.Fatal("checkpoint wrote before any progress")
	}

	ingester.position.Store(1234567890)
	ingester.Checkpoint(ctx)
	if config.values[domain.ConfigKeyCursor] != "1234567890" {
		t.Errorf("cursor: got %q", config.values[domain.ConfigKeyCursor])
	}
	if config.sets != 1 {
		t.Errorf("sets: got %d", config.sets)
	}

	// unchanged position must not write again
	ingester.Checkpoint(ctx)
	if config.sets != 1 {
		t.Errorf("sets after idle checkpoint: got %d", config.sets)
	}
}

func TestPruneDisabledWithoutCap(t *testing.T) {
	feeds := &fakeFeedRepo{
		boundaries: []repository.FeedBoundary{{Feed: "did:plc:alice", TS: 100}},
	}
	ingester := NewIngester(nil, feeds, &fakeConfigRepo{}, nil)

	ingester.Prune(context.Background())
	if feeds.boundaryKey != 0 {
		t.Error("prune ran without a configured cap")
	}
}

func TestPruneIgnoresInvalidCap(t *testing.T) {
	feeds := &fakeFeedRepo{}
	config := &fakeConfigRepo{values: map[string]string{
		domain.ConfigKeyMaxPostsPerFeed: "zero",
	}}
	ingester := NewIngester(nil, feeds, config, nil)

	ingester.Prune(context.Background())
	if feeds.boundaryKey != 0 {
		t.Error("prune ran with an unparsable cap")
	}
}

func TestPruneTrimsEveryBoundary(t *testing.T) {
	feeds := &fakeFeedRepo{
		boundaries: []repository.FeedBoundary{
			{Feed: "did:plc:alice", TS: 500},
			{Feed: "did:plc:bob", TS: 900},
		},
	}
	config := &fakeConfigRepo{values: map[string]string{
		domain.ConfigKeyMaxPostsPerFeed: "1000",
	}}
	ingester := NewIngester(nil, feeds, config, nil)

	ingester.Prune(context.Background())
	if feeds.boundaryKey != 1000 {
		t.Errorf("cap: got %d", feeds.boundaryKey)
	}
	if feeds.pruned["did:plc:alice"] != 500 || feeds.pruned["did:plc:bob"] != 900 {
		t.Errorf("pruned: got %v", feeds.pruned)
	}
}

func TestLoadCursor(t *testing.T) {
	ctx := context.Background()

	fresh := NewIngester(nil, &fakeFeedRepo{}, &fakeConfigRepo{}, nil)
	if got := fresh.loadCursor(ctx); got != 0 {
		t.Errorf("fresh cursor: got %d", got)
	}

	saved := NewIngester(nil, &fakeFeedRepo{}, &fakeConfigRepo{values: map[string]string{
		domain.ConfigKeyCursor: strconv.FormatInt(1700000000000000, 10),
	}}, nil)
	if got := saved.loadCursor(ctx); got != 1700000000000000 {
		t.Errorf("saved cursor: got %d", got)
	}

	garbage := NewIngester(nil, &fakeFeedRepo{}, &fakeConfigRepo{values: map[string]string{
		domain.ConfigKeyCursor: "not-a-number",
	}}, nil)
	if got := garbage.loadCursor(ctx); got != 0 {
		t.Errorf("garbage cursor: got %d", got)
	}
}

type stubSource struct {
	events []aviary.Event
}

func (s *stubSource) Subscribe(ctx context.Context, cursor int64, out chan<- aviary.Event) error {
	for _, event := range s.events {
		select {
		case out <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func postEvent(did, rkey string, timeUS int64) aviary.Event {
	return aviary.Event{
		DID:    did,
		TimeUS: timeUS,
		Kind:   aviary.EventKindCommit,
		Commit: &aviary.Commit{
			Operation:  aviary.OperationCreate,
			Collection: aviary.CollectionPost,
			RKey:       rkey,
			Record:     json.RawMessage(`{"$type":"app.bsky.feed.post","text":"hi","createdAt":"2026-01-01T00:00:00Z"}`),
		},
	}
}

func TestRunStopsAtFailedEvent(t *testing.T) {
	feeds := &fakeFeedRepo{failURI: "at://did:plc:alice/app.bsky.feed.post/bad"}
	config := &fakeConfigRepo{}
	source := &stubSource{events: []aviary.Event{
		postEvent("did:plc:alice", "ok", 100),
		postEvent("did:plc:alice", "bad", 200),
	}}
	ingester := NewIngester(usecase.NewIngestUsecase(feeds, nil), feeds, config, source)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := ingester.Run(ctx)
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run must surface the store failure, got %v", err)
	}

	// the checkpoint must hold the last applied event, not the failed one
	if got := config.values[domain.ConfigKeyCursor]; got != "100" {
		t.Errorf("cursor: got %q", got)
	}
}

func TestPruneIntervalTunable(t *testing.T) {
	ctx := context.Background()

	ingester := NewIngester(nil, &fakeFeedRepo{}, &fakeConfigRepo{}, nil)
	if got := ingester.pruneInterval(ctx); got != domain.DefaultPruneInterval {
		t.Errorf("default interval: got %v", got)
	}

	tuned := NewIngester(nil, &fakeFeedRepo{}, &fakeConfigRepo{values: map[string]string{
		domain.ConfigKeyPruneInterval: "15m",
	}}, nil)
	if got := tuned.pruneInterval(ctx); got != 15*time.Minute {
		t.Errorf("tuned interval: got %v", got)
	}
}
