package types

import "time"

// Wire shapes for the v1 API.

type StartAttemptRequest struct {
	VoucherID string `json:"voucher_id" validate:"required,uuid_rfc4122"`
}

type StartAttemptResponse struct {
	ResultID  string       `json:"result_id"`
	Status    ResultStatus `json:"status"`
	StartedAt time.Time    `json:"started_at"`
	Deadline  time.Time    `json:"deadline"`
}

type SubmitAttemptResponse struct {
	ResultID  string       `json:"result_id"`
	Status    ResultStatus `json:"status"`
	Score     int64        `json:"score"`
	Verdict   Verdict      `json:"verdict"`
	PDFStatus PDFStatus    `json:"pdf_status"`
}

type ResultResponse struct {
	ResultID        string       `json:"result_id"`
	Status          ResultStatus `json:"status"`
	PDFStatus       PDFStatus    `json:"pdf_status"`
	Score           *int64       `json:"score,omitempty"`
	Verdict         *string      `json:"verdict,omitempty"`
	CertificateCode *string      `json:"certificate_code,omitempty"`
	ReportPath      *string      `json:"report_path,omitempty"`
	CertificatePath *string      `json:"certificate_path,omitempty"`
	StartedAt       time.Time    `json:"started_at"`
	EndedAt         *time.Time   `json:"ended_at,omitempty"`
	Deadline        time.Time    `json:"deadline"`
}

type RetryArtifactsResponse struct {
	ResultID string `json:"result_id"`
	// Whether the retry transitioned the result back to pending
	Retried bool `json:"retried"`
}

type SignedURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ArchivePendingResponse answers requests for archived artifacts: accepted,
// not readable yet, poll again after the estimated wait.
type ArchivePendingResponse struct {
	Status string `json:"status"`
	// Whether rehydration was already underway before this request
	Rehydrating   bool   `json:"rehydrating"`
	EstimatedTime string `json:"estimated_time"`
}

type ArtifactStatusResponse struct {
	Path          string     `json:"path"`
	Exists        bool       `json:"exists"`
	Tier          string     `json:"tier,omitempty"`
	Rehydrating   bool       `json:"rehydrating"`
	ArchiveStatus string     `json:"archive_status,omitempty"`
	Available     bool       `json:"available"`
	Size          int64      `json:"size,omitempty"`
	LastModified  *time.Time `json:"last_modified,omitempty"`
	ContentType   string     `json:"content_type,omitempty"`
}
