package render

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/credexam/certification-api/internal/types"
)

var tracer = otel.Tracer("github.com/credexam/certification-api/internal/render")

// Ensure PDFRenderer implements Renderer.
var _ Renderer = (*PDFRenderer)(nil)

// PDFRenderer writes a single page of text directly as PDF primitives. Good
// enough for reports and certificates whose layout is a titled list of
// fields; no external rendering service involved.
type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	_, span := tracer.Start(ctx, "PDFRenderer.Render", trace.WithAttributes(
		attribute.String("artifact.type", string(doc.Type)),
	))
	defer span.End()

	title := "Evaluation Report"
	if doc.Type == types.ArtifactTypeCertificate {
		title = "Certificate of Completion"
	}

	lines := []string{
		title,
		"",
		fmt.Sprintf("Candidate: %s", doc.CandidateName),
		fmt.Sprintf("Exam: %s", doc.ExamTitle),
		fmt.Sprintf("Score: %d / 100", doc.Score),
		fmt.Sprintf("Result: %s", strings.ToUpper(string(doc.Verdict))),
	}
	if doc.CertificateCode != "" {
		lines = append(lines, fmt.Sprintf("Certificate code: %s", doc.CertificateCode))
	}
	if doc.IssuedAt != "" {
		lines = append(lines, fmt.Sprintf("Issued: %s", doc.IssuedAt))
	}

	content := r.contentStream(lines)

	rendered, err := buildPDF(content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build pdf")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "rendered document")
	return rendered, nil
}

func (r *PDFRenderer) contentStream(lines []string) string {
	var b strings.Builder
	b.WriteString("BT\n/F1 16 Tf\n72 720 Td\n18 TL\n")
	for i, line := range lines {
		if i == 1 {
			// body text after the title line
			b.WriteString("/F1 11 Tf\n")
		}
		fmt.Fprintf(&b, "(%s) Tj\nT*\n", escapePDFText(line))
	}
	b.WriteString("ET\n")
	return b.String()
}

func escapePDFText(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)
	return replacer.Replace(s)
}

// buildPDF assembles a one page document around `content`, tracking byte
// offsets for the cross reference table as objects are appended.
func buildPDF(content string) ([]byte, error) {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] " +
			"/Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, object := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, object)
	}

	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, offset := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offset)
	}
	fmt.Fprintf(
		&buf,
		"trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(objects)+1,
		xrefStart,
	)

	return buf.Bytes(), nil
}
