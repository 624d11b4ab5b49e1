package models

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/credexam/certification-api/internal/types"
)

// CertificateBlob is the metadata shadow of one stored artifact. Re-upload
// for the same path replaces content; the row is upserted, never duplicated,
// so the recorded hash always describes the current bytes.
type CertificateBlob struct {
	Path         string `gorm:"uniqueIndex"`
	Tier         string
	SHA256       string `gorm:"column:sha256"`
	ContentType  string
	ArtifactType types.ArtifactType
	Model
	ResultID uuid.UUID
	Size     int64
	Verified bool
}

func (CertificateBlob) TableName() string {
	return "certificate_blobs"
}

func (b CertificateBlob) GetID() uuid.UUID {
	return b.ID
}

// UpsertCertificateBlob records an upload, replacing any prior row for the
// same path.
func UpsertCertificateBlob(ctx context.Context, db *gorm.DB, blob *CertificateBlob) error {
	ctx, span := tracer.Start(ctx, "UpsertCertificateBlob")
	defer span.End()

	span.SetAttributes(
		attribute.String("path", blob.Path),
		attribute.String("result.id", blob.ResultID.String()),
	)

	db = db.WithContext(ctx)

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		UpdateAll: true,
	}).Create(blob)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to upsert certificate blob")
		return fmt.Errorf("failed to upsert certificate blob: %w", result.Error)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "upserted certificate blob")
	return nil
}

// BlobByPath resolves the metadata row for one stored path.
func BlobByPath(ctx context.Context, db *gorm.DB, path string) (*CertificateBlob, error) {
	ctx, span := tracer.Start(ctx, "BlobByPath")
	defer span.End()

	span.SetAttributes(attribute.String("path", path))

	db = db.WithContext(ctx)

	var blob CertificateBlob
	if err := db.Where("path = ?", path).First(&blob).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get blob by path")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "got blob by path")
	return &blob, nil
}
