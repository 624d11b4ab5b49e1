package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/credexam/certification-api/internal/types"
	"github.com/credexam/certification-api/internal/voucher"
)

// Voucher row. State transitions live in the voucher package; this type only
// maps between storage and the domain state machine. Mutated solely by the
// attempts service under a row lock.
type Voucher struct {
	Status types.VoucherStatus
	Model
	CandidateID       uuid.UUID
	ExamID            uuid.UUID
	Opportunities     int
	OpportunitiesUsed int
	ExpirationDate    time.Time
}

func (Voucher) TableName() string {
	return "vouchers"
}

func (v Voucher) GetID() uuid.UUID {
	return v.ID
}

func (v *Voucher) Domain() voucher.Voucher {
	return voucher.Voucher{
		Status:            v.Status,
		Opportunities:     v.Opportunities,
		OpportunitiesUsed: v.OpportunitiesUsed,
		ExpirationDate:    v.ExpirationDate,
	}
}

// ApplyDomain writes the state machine's mutations back onto the row.
func (v *Voucher) ApplyDomain(d voucher.Voucher) {
	v.Status = d.Status
	v.OpportunitiesUsed = d.OpportunitiesUsed
}

// ReleaseVoucher returns an in_process voucher to active once no attempt it
// funded is still open. Used and expired vouchers stay put; a voucher funding
// several concurrent attempts releases only when the last one concludes.
func ReleaseVoucher(ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "ReleaseVoucher")
	defer span.End()

	span.SetAttributes(attribute.String("voucher.id", id.String()))

	db = db.WithContext(ctx)

	result := db.Model(&Voucher{}).
		Where("id = ? AND status = ?", id, types.VoucherStatusInProcess).
		Where(
			"NOT EXISTS (SELECT 1 FROM results WHERE results.voucher_id = vouchers.id AND results.status = ?)",
			types.ResultStatusInProgress,
		).
		Update("status", types.VoucherStatusActive)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to release voucher")
		return fmt.Errorf("failed to release voucher: %w", result.Error)
	}

	span.SetAttributes(attribute.Bool("released", result.RowsAffected > 0))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "ran release")
	return nil
}
