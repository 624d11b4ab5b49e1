package types

import "time"

// ArtifactJobMessage is the queue payload asking the worker to render and
// store one artifact for one result. It exists only in the queue and is
// discarded after processing.
type ArtifactJobMessage struct {
	ResultID    string       `json:"result_id"    validate:"required,uuid_rfc4122"`
	UserID      string       `json:"user_id"      validate:"required,uuid_rfc4122"`
	Type        ArtifactType `json:"type"         validate:"required,oneof=evaluation_report certificate"`
	CallbackURL *string      `json:"callback_url" validate:"omitempty,url"`
	QueuedAt    time.Time    `json:"queued_at"    validate:"required"`
}
