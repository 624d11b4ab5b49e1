package types

// ResultStatus tracks one attempt's lifecycle. in_progress is the only
// non-terminal state.
type ResultStatus string

const (
	ResultStatusInProgress ResultStatus = "in_progress"
	ResultStatusCompleted  ResultStatus = "completed"
	ResultStatusAbandoned  ResultStatus = "abandoned"
)

// Verdict is the pass/fail outcome of a completed attempt.
type Verdict string

const (
	VerdictFail Verdict = "fail"
	VerdictPass Verdict = "pass"
)

// PDFStatus tracks artifact generation for one result. It only moves
// forward; error -> pending happens solely through an explicit retry.
type PDFStatus string

const (
	PDFStatusPending    PDFStatus = "pending"
	PDFStatusProcessing PDFStatus = "processing"
	PDFStatusCompleted  PDFStatus = "completed"
	PDFStatusError      PDFStatus = "error"
)

// VoucherStatus for the attempt-authorization state machine.
type VoucherStatus string

const (
	VoucherStatusActive    VoucherStatus = "active"
	VoucherStatusUsed      VoucherStatus = "used"
	VoucherStatusExpired   VoucherStatus = "expired"
	VoucherStatusInProcess VoucherStatus = "in_process"
)

type ArtifactType string

const (
	ArtifactTypeEvaluationReport ArtifactType = "evaluation_report"
	ArtifactTypeCertificate      ArtifactType = "certificate"
)

func (t ArtifactType) Valid() bool {
	return t == ArtifactTypeEvaluationReport || t == ArtifactTypeCertificate
}
