package render

import (
	"context"

	"github.com/credexam/certification-api/internal/types"
)

// Document is everything a rendered artifact shows about one graded attempt.
type Document struct {
	Type            types.ArtifactType
	CandidateName   string
	ExamTitle       string
	Score           int
	Verdict         types.Verdict
	CertificateCode string
	IssuedAt        string
}

// Renderer turns a document into PDF bytes. Rendering may be CPU and time
// bound; it runs only on the worker path, never inside a request.
type Renderer interface {
	Render(ctx context.Context, doc Document) ([]byte, error)
}
