package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/credexam/certification-api/internal/logger"
	"github.com/credexam/certification-api/internal/types"
)

type Context struct {
	CandidateID *string
	ExamID      *string
}

func (c Context) message(eventType EventType, disposition Disposition) Message {
	return Message{
		CandidateID:   c.CandidateID,
		ExamID:        c.ExamID,
		LogContext:    logContext,
		SchemaVersion: schemaVersion,
		Disposition:   disposition,
		Type:          eventType,
		Timestamp:     types.UnixMilli(time.Now().UTC().UnixMilli()),
	}
}

func emit(event any, name string, fields ...any) {
	evtStr, err := json.Marshal(event)
	if err != nil {
		logger.Logger.Error("could not serialize "+name+" event", fields...)
		return
	}

	// TODO: should this go to stderr?
	fmt.Println(string(evtStr))
}

func LogAttemptStarted(c Context, resultID, voucherID string) {
	event := AttemptStarted{}
	event.Message = c.message(EvtAttemptStarted, DispositionNeutral)

	event.Event.ResultID = resultID
	event.Event.VoucherID = voucherID

	emit(event, "AttemptStarted", "resultID", resultID, "voucherID", voucherID)
}

func LogAttemptGraded(c Context, resultID string, score int, verdict types.Verdict) {
	disposition := DispositionBad
	if verdict == types.VerdictPass {
		disposition = DispositionGood
	}

	event := AttemptGraded{}
	event.Message = c.message(EvtAttemptGraded, disposition)

	event.Event.ResultID = resultID
	event.Event.Score = score
	event.Event.Verdict = verdict

	emit(event, "AttemptGraded", "resultID", resultID, "score", score, "verdict", verdict)
}

func LogAttemptAbandoned(c Context, resultID string) {
	event := AttemptAbandoned{}
	event.Message = c.message(EvtAttemptAbandoned, DispositionBad)

	event.Event.ResultID = resultID

	emit(event, "AttemptAbandoned", "resultID", resultID)
}

func LogVoucherConsumed(c Context, voucherID string, remaining int) {
	event := VoucherConsumed{}
	event.Message = c.message(EvtVoucherConsumed, DispositionNeutral)

	event.Event.VoucherID = voucherID
	event.Event.Remaining = remaining

	emit(event, "VoucherConsumed", "voucherID", voucherID, "remaining", remaining)
}

func LogVoucherRejected(c Context, voucherID, reason string) {
	event := VoucherRejected{}
	event.Message = c.message(EvtVoucherRejected, DispositionBad)

	event.Event.VoucherID = voucherID
	event.Event.Reason = reason

	emit(event, "VoucherRejected", "voucherID", voucherID, "reason", reason)
}

func LogArtifactQueued(c Context, resultID string, artifactType types.ArtifactType) {
	event := ArtifactQueued{}
	event.Message = c.message(EvtArtifactQueued, DispositionNeutral)

	event.Event.ResultID = resultID
	event.Event.ArtifactType = artifactType

	emit(event, "ArtifactQueued", "resultID", resultID, "artifactType", artifactType)
}

func LogArtifactStored(
	c Context,
	resultID string,
	artifactType types.ArtifactType,
	storeName, path, sha256 string,
	size int64,
) {
	event := ArtifactStored{}
	event.Message = c.message(EvtArtifactStored, DispositionGood)

	event.Event.ResultID = resultID
	event.Event.ArtifactType = artifactType
	event.Event.StoreName = storeName
	event.Event.Path = path
	event.Event.SHA256 = sha256
	event.Event.Size = size

	emit(
		event,
		"ArtifactStored",
		"resultID", resultID,
		"artifactType", artifactType,
		"storeName", storeName,
		"path", path,
	)
}

func LogArtifactFailed(
	c Context,
	resultID string,
	artifactType types.ArtifactType,
	failure error,
) {
	event := ArtifactFailed{}
	event.Message = c.message(EvtArtifactFailed, DispositionBad)

	event.Event.ResultID = resultID
	event.Event.ArtifactType = artifactType
	event.Event.Error = failure.Error()

	emit(
		event,
		"ArtifactFailed",
		"resultID", resultID,
		"artifactType", artifactType,
		"error", failure,
	)
}
