package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/credexam/certification-api/internal/types"
)

// Result is one graded attempt. Immutable once completed except for the
// artifact fields, which the worker owns.
type Result struct {
	Status    types.ResultStatus
	PDFStatus types.PDFStatus `gorm:"column:pdf_status"`
	Model
	CandidateID uuid.UUID
	ExamID      uuid.UUID
	// Voucher that funded this attempt; releases back to active when the
	// attempt concludes
	VoucherID uuid.UUID
	// Competency standard for cross version aggregation
	StandardID datatypes.Null[string]
	// Raw submitted answers, kept for dispute review
	Answers         datatypes.JSON `gorm:"type:jsonb"`
	Score           datatypes.Null[int64]
	Verdict         datatypes.Null[string]
	CertificateCode string `gorm:"uniqueIndex"`
	// Stable blob paths; signed urls are minted on demand
	ReportURL      datatypes.Null[string] `gorm:"column:report_url"`
	CertificateURL datatypes.Null[string] `gorm:"column:certificate_url"`
	StartedAt      time.Time
	EndedAt        datatypes.Null[time.Time]
	Deadline       time.Time
}

func (Result) TableName() string {
	return "results"
}

func (r Result) GetID() uuid.UUID {
	return r.ID
}

func (r Result) Passed() bool {
	return r.Verdict.Valid && r.Verdict.V == string(types.VerdictPass)
}

// artifactURLColumn is the result column owned by each artifact type.
func artifactURLColumn(artifactType types.ArtifactType) string {
	if artifactType == types.ArtifactTypeCertificate {
		return "certificate_url"
	}
	return "report_url"
}

// ArtifactPath is the stored path for one artifact type, if generated.
func (r Result) ArtifactPath(artifactType types.ArtifactType) datatypes.Null[string] {
	if artifactType == types.ArtifactTypeCertificate {
		return r.CertificateURL
	}
	return r.ReportURL
}

// ClaimArtifactProcessing is the worker's mutual-exclusion lease over one
// artifact of one result, keyed on that artifact's URL column still being
// NULL. The conditional write succeeds for pending, error, and completed rows
// (completed means another artifact type already finished), and for
// processing rows whose lease went stale (a crashed worker). Returns whether
// this caller now holds the lease.
func ClaimArtifactProcessing(
	ctx context.Context,
	db *gorm.DB,
	id uuid.UUID,
	artifactType types.ArtifactType,
	staleAfter time.Duration,
) (bool, error) {
	ctx, span := tracer.Start(ctx, "ClaimArtifactProcessing")
	defer span.End()

	span.SetAttributes(
		attribute.String("result.id", id.String()),
		attribute.String("artifact.type", string(artifactType)),
	)

	db = db.WithContext(ctx)

	column := artifactURLColumn(artifactType)

	result := db.Model(&Result{}).
		Where(
			"id = ? AND "+column+" IS NULL AND (pdf_status IN ? OR (pdf_status = ? AND updated_at < ?))",
			id,
			[]types.PDFStatus{
				types.PDFStatusPending,
				types.PDFStatusError,
				types.PDFStatusCompleted,
			},
			types.PDFStatusProcessing,
			time.Now().Add(-staleAfter),
		).
		Update("pdf_status", types.PDFStatusProcessing)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to claim artifact processing")
		return false, fmt.Errorf("failed to claim artifact processing: %w", result.Error)
	}

	claimed := result.RowsAffected > 0
	span.SetAttributes(attribute.Bool("claimed", claimed))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "ran claim")
	return claimed, nil
}

// CompletePDF writes the stored artifact path into the field owned by
// `artifactType` and advances pdf_status. Fields for different artifact
// types are independent so concurrent workers never conflict.
func CompletePDF(
	ctx context.Context,
	db *gorm.DB,
	id uuid.UUID,
	artifactType types.ArtifactType,
	path string,
) error {
	ctx, span := tracer.Start(ctx, "CompletePDF")
	defer span.End()

	span.SetAttributes(
		attribute.String("result.id", id.String()),
		attribute.String("artifact.type", string(artifactType)),
	)

	db = db.WithContext(ctx)

	column := artifactURLColumn(artifactType)

	result := db.Model(&Result{}).
		Where("id = ?", id).
		Updates(map[string]any{
			column:       path,
			"pdf_status": types.PDFStatusCompleted,
		})
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to complete pdf")
		return fmt.Errorf("failed to complete pdf: %w", result.Error)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "completed pdf")
	return nil
}

// MarkPDFError records a failed generation so queue redelivery can retry.
func MarkPDFError(ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "MarkPDFError")
	defer span.End()

	span.SetAttributes(attribute.String("result.id", id.String()))

	db = db.WithContext(ctx)

	result := db.Model(&Result{}).
		Where("id = ?", id).
		Update("pdf_status", types.PDFStatusError)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to mark pdf error")
		return fmt.Errorf("failed to mark pdf error: %w", result.Error)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "marked pdf error")
	return nil
}

// ResetPDFError moves error back to pending, the only allowed regression and
// only through this explicit retry. Returns whether the row was in error.
func ResetPDFError(ctx context.Context, db *gorm.DB, id uuid.UUID) (bool, error) {
	ctx, span := tracer.Start(ctx, "ResetPDFError")
	defer span.End()

	span.SetAttributes(attribute.String("result.id", id.String()))

	db = db.WithContext(ctx)

	result := db.Model(&Result{}).
		Where("id = ? AND pdf_status = ?", id, types.PDFStatusError).
		Update("pdf_status", types.PDFStatusPending)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to reset pdf error")
		return false, fmt.Errorf("failed to reset pdf error: %w", result.Error)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "ran reset")
	return result.RowsAffected > 0, nil
}

// AbandonExpired sweeps in-progress attempts past their deadline into the
// terminal abandoned state. Returns the swept result ids.
func AbandonExpired(ctx context.Context, db *gorm.DB, now time.Time) ([]uuid.UUID, error) {
	ctx, span := tracer.Start(ctx, "AbandonExpired")
	defer span.End()

	db = db.WithContext(ctx)

	var ids []uuid.UUID
	err := db.Transaction(func(tx *gorm.DB) error {
		var swept []Result
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status = ? AND deadline < ?", types.ResultStatusInProgress, now).
			Find(&swept).Error; err != nil {
			return err
		}
		if len(swept) == 0 {
			return nil
		}

		ids = make([]uuid.UUID, 0, len(swept))
		voucherIDs := make([]uuid.UUID, 0, len(swept))
		for _, r := range swept {
			ids = append(ids, r.ID)
			if r.VoucherID != uuid.Nil {
				voucherIDs = append(voucherIDs, r.VoucherID)
			}
		}

		if err := tx.Model(&Result{}).
			Where("id IN ?", ids).
			Update("status", types.ResultStatusAbandoned).Error; err != nil {
			return err
		}

		if len(voucherIDs) == 0 {
			return nil
		}

		// Hand funding vouchers back unless another attempt still holds them
		return tx.Model(&Voucher{}).
			Where("id IN ? AND status = ?", voucherIDs, types.VoucherStatusInProcess).
			Where(
				"NOT EXISTS (SELECT 1 FROM results WHERE results.voucher_id = vouchers.id AND results.status = ?)",
				types.ResultStatusInProgress,
			).
			Update("status", types.VoucherStatusActive).Error
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to abandon expired results")
		return nil, fmt.Errorf("failed to abandon expired results: %w", err)
	}

	span.SetAttributes(attribute.Int("swept", len(ids)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "swept expired results")
	return ids, nil
}
