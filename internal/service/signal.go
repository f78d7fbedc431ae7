package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

var signalTracer = otel.Tracer("signal")

// MutationChannel is the redis pubsub channel fan-out mutations are
// announced on. Consumers use it to invalidate caches or mirror writes.
const MutationChannel = "aviary:mutation"

type MutationEvent struct {
	Kind     string `json:"kind"`
	URI      string `json:"uri"`
	Affected int64  `json:"affected"`
}

// SignalService broadcasts feed mutations over redis pubsub.
type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(rdb *redis.Client) *SignalService {
	return &SignalService{rdb: rdb}
}

// PublishMutation is best-effort: a pubsub failure must never stall the
// ingest loop, so errors are logged and dropped.
func (s *SignalService) PublishMutation(ctx context.Context, kind, uri string, affected int64) {
	ctx, span := signalTracer.Start(ctx, "Signal.Service.PublishMutation")
	defer span.End()

	event := MutationEvent{
		Kind:     kind,
		URI:      uri,
		Affected: affected,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		return
	}

	err = s.rdb.Publish(ctx, MutationChannel, payload).Err()
	if err != nil {
		span.RecordError(errors.Wrap(err, "failed to publish mutation event"))
		slog.Error("failed to publish mutation",
			slog.String("error", err.Error()),
			slog.String("module", "signal"),
		)
	}
}
