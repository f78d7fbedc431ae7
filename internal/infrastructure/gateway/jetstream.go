package gateway

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aviary-social/aviary"
)

const (
	dialTimeout  = 10 * time.Second
	maxBackoff   = 30 * time.Second
	startBackoff = time.Second
)

// JetstreamGateway maintains a websocket subscription to a jetstream
// relay, rotating between endpoints and reconnecting with backoff.
type JetstreamGateway struct {
	endpoints []string
}

func NewJetstreamGateway(endpoints []string) *JetstreamGateway {
	return &JetstreamGateway{endpoints: endpoints}
}

// Subscribe streams post and repost commits into out, starting after
// cursor (unix microseconds; 0 means live tail). It blocks until ctx is
// cancelled. Reconnects resume from the last event delivered, so the
// consumer may observe duplicates but never a silent gap.
func (g *JetstreamGateway) Subscribe(ctx context.Context, cursor int64, out chan<- aviary.Event) error {
	backoff := startBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, endpoint := range g.endpoints {
			last, err := g.stream(ctx, endpoint, cursor, out)
			if last > cursor {
				cursor = last
				backoff = startBackoff
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("jetstream connection lost",
				slog.String("endpoint", endpoint),
				slog.String("error", err.Error()),
				slog.String("module", "gateway"),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (g *JetstreamGateway) stream(ctx context.Context, endpoint string, cursor int64, out chan<- aviary.Event) (int64, error) {
	query := url.Values{}
	query.Add("wantedCollections", aviary.CollectionPost)
	query.Add("wantedCollections", aviary.CollectionRepost)
	if cursor > 0 {
		query.Set("cursor", strconv.FormatInt(cursor, 10))
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return cursor, err
	}
	defer conn.Close()

	slog.Info("jetstream connected",
		slog.String("endpoint", endpoint),
		slog.Int64("cursor", cursor),
		slog.String("module", "gateway"),
	)

	// unblock ReadJSON when the context is cancelled
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var event aviary.Event
		if err := conn.ReadJSON(&event); err != nil {
			return cursor, err
		}
		select {
		case out <- event:
		case <-ctx.Done():
			return cursor, ctx.Err()
		}
		if event.TimeUS > cursor {
			cursor = event.TimeUS
		}
	}
}
