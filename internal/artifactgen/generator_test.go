package artifactgen

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/credexam/certification-api/internal/models"
	"github.com/credexam/certification-api/internal/types"
)

func gradedResult(t *testing.T) *models.Result {
	t.Helper()

	result := &models.Result{
		Status:          types.ResultStatusCompleted,
		Score:           models.NewNullFromData(int64(85)),
		Verdict:         models.NewNullFromData(string(types.VerdictPass)),
		CertificateCode: "CERT-ABCDEF2345GHJKLM",
		StartedAt:       time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
		EndedAt:         models.NewNullFromData(time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)),
	}
	result.ID = uuid.MustParse("0195a2b4-1111-7222-8333-444455556666")
	result.CandidateID = uuid.MustParse("0195a2b4-aaaa-7bbb-8ccc-dddd11112222")
	return result
}

func TestBuildDocument(t *testing.T) {
	result := gradedResult(t)
	candidate := &models.Candidate{Name: "Dana Smith"}
	exam := &models.Exam{Title: "Go Fundamentals", ClassCode: "GO-101"}

	t.Run("CertificateCarriesCode", func(t *testing.T) {
		doc := buildDocument(types.ArtifactTypeCertificate, result, candidate, exam)

		assert.Equal(t, "Dana Smith", doc.CandidateName)
		assert.Equal(t, "Go Fundamentals", doc.ExamTitle)
		assert.Equal(t, 85, doc.Score)
		assert.Equal(t, types.VerdictPass, doc.Verdict)
		assert.Equal(t, "CERT-ABCDEF2345GHJKLM", doc.CertificateCode)
		assert.Equal(t, "2026-03-15", doc.IssuedAt)
	})

	t.Run("ReportOmitsCode", func(t *testing.T) {
		doc := buildDocument(types.ArtifactTypeEvaluationReport, result, candidate, exam)

		assert.Empty(t, doc.CertificateCode)
	})
}

func TestArtifactPath(t *testing.T) {
	result := gradedResult(t)
	exam := &models.Exam{ClassCode: "GO-101"}

	t.Run("CertificateUsesIssuanceHierarchy", func(t *testing.T) {
		path := artifactPath(types.ArtifactTypeCertificate, result, exam)

		assert.Equal(
			t,
			"2026/03/0195a2b4-aaaa-7bbb-8ccc-dddd11112222/GO-101_0195a2b4-1111-7222-8333-444455556666.pdf",
			path,
		)
	})

	t.Run("ReportIsFlat", func(t *testing.T) {
		path := artifactPath(types.ArtifactTypeEvaluationReport, result, exam)

		assert.Equal(t, "evaluation_report_0195a2b4-1111-7222-8333-444455556666.pdf", path)
	})

	t.Run("DeterministicAcrossRetries", func(t *testing.T) {
		first := artifactPath(types.ArtifactTypeCertificate, result, exam)
		second := artifactPath(types.ArtifactTypeCertificate, result, exam)

		assert.Equal(t, first, second)
	})
}

func TestIssuedAt(t *testing.T) {
	result := gradedResult(t)

	t.Run("PrefersGradingTime", func(t *testing.T) {
		assert.Equal(t, result.EndedAt.V.UTC(), issuedAt(result))
	})

	t.Run("FallsBackToStart", func(t *testing.T) {
		noEnd := gradedResult(t)
		noEnd.EndedAt = models.NewNull[time.Time](nil)

		assert.Equal(t, noEnd.StartedAt.UTC(), issuedAt(noEnd))
	})
}
