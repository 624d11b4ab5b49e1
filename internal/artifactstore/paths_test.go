package artifactstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/credexam/certification-api/internal/artifactstore"
	"github.com/credexam/certification-api/internal/types"
)

func TestCertificatePath(t *testing.T) {
	issued := time.Date(2026, time.March, 7, 12, 0, 0, 0, time.UTC)

	path := artifactstore.CertificatePath(issued, "owner-1", "GO-101", "doc-9")
	assert.Equal(t, "2026/03/owner-1/GO-101_doc-9.pdf", path, "month must be zero padded")
}

func TestReportPath(t *testing.T) {
	path := artifactstore.ReportPath(
		types.ArtifactTypeEvaluationReport,
		"0195a2b4-1111-7222-8333-444455556666",
	)
	assert.Equal(t, "evaluation_report_0195a2b4-1111-7222-8333-444455556666.pdf", path)
}
