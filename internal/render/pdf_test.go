package render_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credexam/certification-api/internal/render"
	"github.com/credexam/certification-api/internal/types"
)

func TestRender(t *testing.T) {
	renderer := render.NewPDFRenderer()

	t.Run("Certificate", func(t *testing.T) {
		rendered, err := renderer.Render(t.Context(), render.Document{
			Type:            types.ArtifactTypeCertificate,
			CandidateName:   "Ada Lovelace",
			ExamTitle:       "Go Fundamentals",
			Score:           92,
			Verdict:         types.VerdictPass,
			CertificateCode: "CERT-1234",
			IssuedAt:        "2026-09-01",
		})

		require.NoError(t, err, "failed to render")
		assert.True(t, bytes.HasPrefix(rendered, []byte("%PDF-1.4")), "should start with a pdf header")
		assert.Contains(t, string(rendered), "%%EOF", "should carry a trailer")
		assert.Contains(t, string(rendered), "Ada Lovelace")
		assert.Contains(t, string(rendered), "CERT-1234")
	})

	t.Run("Report", func(t *testing.T) {
		rendered, err := renderer.Render(t.Context(), render.Document{
			Type:          types.ArtifactTypeEvaluationReport,
			CandidateName: "Ada Lovelace",
			ExamTitle:     "Go Fundamentals",
			Score:         61,
			Verdict:       types.VerdictFail,
		})

		require.NoError(t, err, "failed to render")
		assert.Contains(t, string(rendered), "Evaluation Report")
		assert.NotContains(t, string(rendered), "Certificate code", "no code for a plain report")
	})

	t.Run("Deterministic", func(t *testing.T) {
		doc := render.Document{
			Type:          types.ArtifactTypeEvaluationReport,
			CandidateName: "Ada (Augusta) Lovelace",
			ExamTitle:     "Go Fundamentals",
			Score:         61,
			Verdict:       types.VerdictFail,
		}

		first, err := renderer.Render(t.Context(), doc)
		require.NoError(t, err)
		second, err := renderer.Render(t.Context(), doc)
		require.NoError(t, err)

		assert.Equal(t, first, second, "re-rendering must overwrite with identical bytes")
	})
}
