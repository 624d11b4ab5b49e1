package artifactgen

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/codes"

	"github.com/credexam/certification-api/internal/queue"
	"github.com/credexam/certification-api/internal/types"
	"github.com/credexam/certification-api/internal/validator"
)

// JobRunner is what a handler needs from the generator; split out so the
// queue plumbing is testable without a database.
type JobRunner interface {
	Generate(ctx context.Context, message types.ArtifactJobMessage) error
}

// Handler adapts the generator to the queue's message contract. Structurally
// invalid payloads are poisoned; everything else is the generator's call.
type Handler struct {
	runner    JobRunner
	validator validator.CustomValidator
}

func NewHandler(runner JobRunner) *Handler {
	return &Handler{
		runner:    runner,
		validator: validator.Create(),
	}
}

var _ queue.MessageHandler = (*Handler)(nil)

func (h *Handler) Handle(ctx context.Context, message []byte) error {
	ctx, span := tracer.Start(ctx, "Handler.Handle")
	defer span.End()

	var job types.ArtifactJobMessage
	if err := json.Unmarshal(message, &job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "message is not valid json")
		return queue.WrapPoisonError(err)
	}

	if err := h.validator.Validate(&job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "message failed validation")
		return queue.WrapPoisonError(err)
	}

	if err := h.runner.Generate(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to process job")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "processed job")
	return nil
}
