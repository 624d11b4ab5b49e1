package audit

import (
	"github.com/credexam/certification-api/internal/types"
)

var schemaVersion = "0.1.0"
var logContext = "audit"

type Disposition string

const (
	DispositionNeutral Disposition = "neutral"
	DispositionGood    Disposition = "good"
	DispositionBad     Disposition = "bad"
)

type EventType string

const (
	EvtAttemptStarted   EventType = "attempt_started"
	EvtAttemptGraded    EventType = "attempt_graded"
	EvtAttemptAbandoned EventType = "attempt_abandoned"
	EvtVoucherConsumed  EventType = "voucher_consumed"
	EvtVoucherRejected  EventType = "voucher_rejected"
	EvtArtifactQueued   EventType = "artifact_queued"
	EvtArtifactStored   EventType = "artifact_stored"
	EvtArtifactFailed   EventType = "artifact_failed"
)

type Message struct {
	CandidateID   *string     `json:"candidate_id"`
	ExamID        *string     `json:"exam_id"`
	LogContext    string      `json:"log_context" validate:"required"`
	SchemaVersion string      `json:"version"     validate:"required"`
	Disposition   Disposition `json:"disposition" validate:"required"`
	Type          EventType   `json:"event_type"  validate:"required"`

	Timestamp types.UnixMilli `json:"timestamp" validate:"required"`
}

type AttemptStartedEvent struct {
	ResultID  string `json:"result_id"  validate:"required"`
	VoucherID string `json:"voucher_id" validate:"required"`
}

type AttemptStarted struct {
	Event AttemptStartedEvent `json:"event" validate:"required"`
	Message
}

type AttemptGradedEvent struct {
	ResultID string        `json:"result_id" validate:"required"`
	Score    int           `json:"score"`
	Verdict  types.Verdict `json:"verdict"   validate:"required"`
}

type AttemptGraded struct {
	Event AttemptGradedEvent `json:"event" validate:"required"`
	Message
}

type AttemptAbandonedEvent struct {
	ResultID string `json:"result_id" validate:"required"`
}

type AttemptAbandoned struct {
	Event AttemptAbandonedEvent `json:"event" validate:"required"`
	Message
}

type VoucherConsumedEvent struct {
	VoucherID string `json:"voucher_id" validate:"required"`
	Remaining int    `json:"remaining"`
}

type VoucherConsumed struct {
	Event VoucherConsumedEvent `json:"event" validate:"required"`
	Message
}

type VoucherRejectedEvent struct {
	VoucherID string `json:"voucher_id" validate:"required"`
	Reason    string `json:"reason"     validate:"required"`
}

type VoucherRejected struct {
	Event VoucherRejectedEvent `json:"event" validate:"required"`
	Message
}

type ArtifactQueuedEvent struct {
	ResultID     string             `json:"result_id"     validate:"required"`
	ArtifactType types.ArtifactType `json:"artifact_type" validate:"required"`
}

type ArtifactQueued struct {
	Event ArtifactQueuedEvent `json:"event" validate:"required"`
	Message
}

type ArtifactStoredEvent struct {
	ResultID     string             `json:"result_id"     validate:"required"`
	ArtifactType types.ArtifactType `json:"artifact_type" validate:"required"`
	StoreName    string             `json:"store_name"    validate:"required"`
	Path         string             `json:"path"          validate:"required"`
	SHA256       string             `json:"sha256"        validate:"required"`
	Size         int64              `json:"size"`
}

type ArtifactStored struct {
	Event ArtifactStoredEvent `json:"event" validate:"required"`
	Message
}

type ArtifactFailedEvent struct {
	ResultID     string             `json:"result_id"     validate:"required"`
	ArtifactType types.ArtifactType `json:"artifact_type" validate:"required"`
	Error        string             `json:"error"         validate:"required"`
}

type ArtifactFailed struct {
	Event ArtifactFailedEvent `json:"event" validate:"required"`
	Message
}
