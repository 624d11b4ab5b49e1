package artifactstore

import (
	"fmt"
	"time"

	"github.com/credexam/certification-api/internal/types"
)

// CertificatePath places certificates under a year/month/owner hierarchy so
// issuance batches stay together: {year}/{month:02d}/{ownerId}/{classCode}_{documentId}.pdf
func CertificatePath(issued time.Time, ownerID, classCode, documentID string) string {
	return fmt.Sprintf(
		"%d/%02d/%s/%s_%s.pdf",
		issued.Year(), int(issued.Month()),
		ownerID, classCode, documentID,
	)
}

// ReportPath is a flat namespace keyed by result: {type}_{resultId}.pdf
func ReportPath(artifactType types.ArtifactType, resultID string) string {
	return fmt.Sprintf("%s_%s.pdf", artifactType, resultID)
}
