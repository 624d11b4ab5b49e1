package artifactjob

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/credexam/certification-api/internal/logger"
	"github.com/credexam/certification-api/internal/queue"
	"github.com/credexam/certification-api/internal/types"
)

var tracer = otel.Tracer("github.com/credexam/certification-api/internal/artifactjob")

// Producer serializes artifact generation requests and hands them to the
// durable queue. The handoff is at-least-once: durable submission only, no
// processing guarantee.
type Producer struct {
	queuer queue.Queuer
}

// `queuer` may be nil when no queue is configured; Enqueue then reports
// failure and callers fall back to synchronous generation.
func NewProducer(queuer queue.Queuer) *Producer {
	return &Producer{queuer: queuer}
}

// Enqueue submits one artifact generation job. Returns whether the message
// was durably accepted; an unreachable or unconfigured queue is a false, not
// an error, so callers on the interactive path are never aborted by queue
// trouble.
func (p *Producer) Enqueue(
	ctx context.Context,
	resultID, userID string,
	artifactType types.ArtifactType,
	callbackURL *string,
) bool {
	ctx, span := tracer.Start(ctx, "Producer.Enqueue", trace.WithAttributes(
		attribute.String("result.id", resultID),
		attribute.String("artifact.type", string(artifactType)),
	))
	defer span.End()

	if p.queuer == nil {
		logger.Logger.WarnContext(ctx, "no queue configured; artifact job not enqueued",
			"resultID", resultID,
			"artifactType", artifactType,
		)
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "no queue configured")
		return false
	}

	message := types.ArtifactJobMessage{
		ResultID:    resultID,
		UserID:      userID,
		Type:        artifactType,
		CallbackURL: callbackURL,
		QueuedAt:    time.Now().UTC(),
	}

	if err := p.queuer.Enqueue(ctx, message); err != nil {
		logger.Logger.ErrorContext(ctx, "failed to enqueue artifact job",
			"resultID", resultID,
			"artifactType", artifactType,
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to enqueue artifact job")
		return false
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "enqueued artifact job")
	return true
}
