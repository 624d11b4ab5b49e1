package attempts

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/credexam/certification-api/internal/artifactjob"
	"github.com/credexam/certification-api/internal/audit"
	"github.com/credexam/certification-api/internal/grading"
	"github.com/credexam/certification-api/internal/logger"
	"github.com/credexam/certification-api/internal/models"
	"github.com/credexam/certification-api/internal/types"
	"github.com/credexam/certification-api/internal/voucher"
)

const name = "github.com/credexam/certification-api/cmd/server/internal/attempts"

var tracer = otel.Tracer(name)

var (
	ErrNotInProgress = errors.New("result is not in progress")
	ErrNotOwned      = errors.New("resource is not owned by the caller")
)

// SubmittedAnswers keys a candidate's responses by question id.
type SubmittedAnswers map[string]grading.Answer

// Generator is the synchronous fallback when the queue refuses a job; the
// worker side implements it.
type Generator interface {
	Generate(ctx context.Context, message types.ArtifactJobMessage) error
}

// Service runs the attempt lifecycle: voucher-gated start, synchronous
// grading on submit, artifact job handoff, and the abandonment sweep.
type Service struct {
	db        *gorm.DB
	evaluator *grading.Evaluator
	producer  *artifactjob.Producer
	generator Generator
}

func NewService(
	db *gorm.DB,
	evaluator *grading.Evaluator,
	producer *artifactjob.Producer,
	generator Generator,
) *Service {
	return &Service{
		db:        db,
		evaluator: evaluator,
		producer:  producer,
		generator: generator,
	}
}

// Start validates and consumes one voucher opportunity and opens an
// in-progress result. Check-then-consume runs under the voucher's row lock
// so concurrent attempts cannot overdraw opportunities.
func (s *Service) Start(
	ctx context.Context,
	candidateID, voucherID uuid.UUID,
	now time.Time,
) (*models.Result, error) {
	ctx, span := tracer.Start(ctx, "Service.Start", trace.WithAttributes(
		attribute.String("candidate.id", candidateID.String()),
		attribute.String("voucher.id", voucherID.String()),
	))
	defer span.End()

	var created *models.Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Voucher
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, voucherID).Error; err != nil {
			return err
		}

		if row.CandidateID != candidateID {
			return ErrNotOwned
		}

		exam, err := models.ByID[models.Exam](ctx, tx, row.ExamID)
		if err != nil {
			return err
		}

		auditCtx := auditContext(candidateID, row.ExamID)

		domain := row.Domain()
		if err := domain.Consume(now); err != nil {
			// persist expiry observed during validation
			row.ApplyDomain(domain)
			if saveErr := tx.Save(&row).Error; saveErr != nil {
				return saveErr
			}

			var invalid *voucher.InvalidError
			if errors.As(err, &invalid) {
				audit.LogVoucherRejected(auditCtx, row.ID.String(), string(invalid.Reason))
			}
			return err
		}

		row.ApplyDomain(domain)
		if err := tx.Save(&row).Error; err != nil {
			return err
		}

		code, err := certificateCode()
		if err != nil {
			return err
		}

		result := models.Result{
			Status:          types.ResultStatusInProgress,
			PDFStatus:       types.PDFStatusPending,
			CandidateID:     candidateID,
			ExamID:          row.ExamID,
			VoucherID:       row.ID,
			CertificateCode: code,
			StartedAt:       now,
			Deadline:        now.Add(time.Duration(exam.DurationMins) * time.Minute),
		}
		if err := tx.Create(&result).Error; err != nil {
			return err
		}

		audit.LogVoucherConsumed(auditCtx, row.ID.String(), domain.Remaining())
		audit.LogAttemptStarted(auditCtx, result.ID.String(), row.ID.String())

		created = &result
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start attempt")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "started attempt")
	return created, nil
}

// Submit grades an in-progress attempt synchronously and completes it. The
// grading hot path touches nothing but the rows loaded here; artifact work
// is handed off to the queue afterwards.
func (s *Service) Submit(
	ctx context.Context,
	candidateID, resultID uuid.UUID,
	answers SubmittedAnswers,
	callbackURL *string,
	now time.Time,
) (*models.Result, error) {
	ctx, span := tracer.Start(ctx, "Service.Submit", trace.WithAttributes(
		attribute.String("result.id", resultID.String()),
	))
	defer span.End()

	db := s.db.WithContext(ctx)

	result, err := models.ByID[models.Result](ctx, db, resultID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load result")
		return nil, err
	}

	if result.CandidateID != candidateID {
		span.RecordError(ErrNotOwned)
		span.SetStatus(codes.Error, "result is not owned by the caller")
		return nil, ErrNotOwned
	}

	if result.Status != types.ResultStatusInProgress {
		span.RecordError(ErrNotInProgress)
		span.SetStatus(codes.Error, "result is not in progress")
		return nil, ErrNotInProgress
	}

	auditCtx := auditContext(candidateID, result.ExamID)

	// Past-deadline submissions abandon instead of grading
	if now.After(result.Deadline) {
		if err := db.Model(result).
			Update("status", types.ResultStatusAbandoned).Error; err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to abandon result")
			return nil, err
		}

		s.releaseVoucher(ctx, result.VoucherID)
		audit.LogAttemptAbandoned(auditCtx, result.ID.String())
		span.RecordError(ErrNotInProgress)
		span.SetStatus(codes.Error, "attempt deadline passed")
		return nil, ErrNotInProgress
	}

	var exam models.Exam
	if err := db.
		Preload("Categories.Topics.Questions").
		First(&exam, result.ExamID).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load exam")
		return nil, err
	}

	summary, err := s.grade(&exam, answers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to grade answers")
		return nil, err
	}

	verdict := types.VerdictFail
	if summary.Passed {
		verdict = types.VerdictPass
	}

	rawAnswers, err := marshalAnswers(answers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to serialize answers")
		return nil, err
	}

	result.Status = types.ResultStatusCompleted
	result.PDFStatus = types.PDFStatusPending
	result.Score = models.NewNullFromData(int64(summary.Score))
	result.Verdict = models.NewNullFromData(string(verdict))
	result.Answers = rawAnswers
	result.EndedAt = models.NewNullFromData(now)

	if err := db.Save(result).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save graded result")
		return nil, err
	}

	s.releaseVoucher(ctx, result.VoucherID)
	audit.LogAttemptGraded(auditCtx, result.ID.String(), summary.Score, verdict)

	s.enqueueArtifacts(ctx, result, callbackURL)

	// Pick up artifact progress if the synchronous fallback ran
	if refreshed, err := models.ByID[models.Result](ctx, db, result.ID); err == nil {
		result = refreshed
	}

	span.SetAttributes(
		attribute.Int("score", summary.Score),
		attribute.Bool("passed", summary.Passed),
	)
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "submitted attempt")
	return result, nil
}

// RetryArtifacts moves an errored generation back to pending and re-enqueues
// the jobs. The conditional reset keeps error -> pending the only regression.
func (s *Service) RetryArtifacts(
	ctx context.Context,
	candidateID, resultID uuid.UUID,
) (bool, error) {
	ctx, span := tracer.Start(ctx, "Service.RetryArtifacts", trace.WithAttributes(
		attribute.String("result.id", resultID.String()),
	))
	defer span.End()

	db := s.db.WithContext(ctx)

	result, err := models.ByID[models.Result](ctx, db, resultID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load result")
		return false, err
	}

	if result.CandidateID != candidateID {
		span.RecordError(ErrNotOwned)
		span.SetStatus(codes.Error, "result is not owned by the caller")
		return false, ErrNotOwned
	}

	reset, err := models.ResetPDFError(ctx, db, resultID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reset pdf error")
		return false, err
	}
	if !reset {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "result was not in error")
		return false, nil
	}

	s.enqueueArtifacts(ctx, result, nil)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "retried artifacts")
	return true, nil
}

// AbandonExpired sweeps in-progress attempts past their deadline. Run
// periodically by the server.
func (s *Service) AbandonExpired(ctx context.Context, now time.Time) error {
	ctx, span := tracer.Start(ctx, "Service.AbandonExpired")
	defer span.End()

	ids, err := models.AbandonExpired(ctx, s.db, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to sweep expired attempts")
		return err
	}

	for _, id := range ids {
		audit.LogAttemptAbandoned(audit.Context{}, id.String())
	}

	span.SetAttributes(attribute.Int("swept", len(ids)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "swept expired attempts")
	return nil
}

// grade runs every question through the evaluator and rolls category ratios
// into the final summary. Allocation-light and free of I/O.
func (s *Service) grade(
	exam *models.Exam,
	answers SubmittedAnswers,
) (grading.Summary, error) {
	categories := make([]grading.CategoryScore, 0, len(exam.Categories))
	for _, category := range exam.Categories {
		score := grading.CategoryScore{Weight: category.Weight}
		for _, topic := range category.Topics {
			for _, question := range topic.Questions {
				item := question.GradingItem()
				evaluation, err := s.evaluator.Evaluate(item, answers[item.ID])
				if err != nil {
					return grading.Summary{}, fmt.Errorf(
						"failed to evaluate question %s: %w", item.ID, err,
					)
				}

				score.PointsPossible += item.Points
				score.PointsEarned += evaluation.EarnedPoints
			}
		}
		categories = append(categories, score)
	}

	return grading.Aggregate(categories, exam.PassingScore), nil
}

// enqueueArtifacts hands generation jobs to the queue, falling back to
// synchronous generation when the queue refuses the handoff. Artifact
// trouble never fails the interactive caller.
func (s *Service) enqueueArtifacts(
	ctx context.Context,
	result *models.Result,
	callbackURL *string,
) {
	auditCtx := auditContext(result.CandidateID, result.ExamID)

	entitled := []types.ArtifactType{types.ArtifactTypeEvaluationReport}
	if result.Passed() {
		candidate, err := models.ByID[models.Candidate](ctx, s.db, result.CandidateID)
		if err != nil {
			logger.Logger.ErrorContext(ctx, "failed to load candidate for entitlements",
				"resultID", result.ID,
				"error", err,
			)
		} else if candidate.CertificateOption {
			entitled = append(entitled, types.ArtifactTypeCertificate)
		}
	}

	for _, artifactType := range entitled {
		queued := s.producer.Enqueue(
			ctx,
			result.ID.String(),
			result.CandidateID.String(),
			artifactType,
			callbackURL,
		)
		if queued {
			audit.LogArtifactQueued(auditCtx, result.ID.String(), artifactType)
			continue
		}

		if s.generator == nil {
			logger.Logger.ErrorContext(
				ctx,
				"queue refused artifact job and no synchronous fallback configured",
				"resultID", result.ID,
				"artifactType", artifactType,
			)
			continue
		}

		message := types.ArtifactJobMessage{
			ResultID:    result.ID.String(),
			UserID:      result.CandidateID.String(),
			Type:        artifactType,
			CallbackURL: callbackURL,
			QueuedAt:    time.Now().UTC(),
		}
		if err := s.generator.Generate(ctx, message); err != nil {
			logger.Logger.ErrorContext(ctx, "synchronous artifact generation failed",
				"resultID", result.ID,
				"artifactType", artifactType,
				"error", err,
			)
		}
	}
}

// releaseVoucher hands an in_process voucher back once its attempt concludes.
// Release trouble never fails the interactive caller; the voucher stays
// in_process until an operator intervenes.
func (s *Service) releaseVoucher(ctx context.Context, voucherID uuid.UUID) {
	if err := models.ReleaseVoucher(ctx, s.db.WithContext(ctx), voucherID); err != nil {
		logger.Logger.ErrorContext(ctx, "failed to release voucher",
			"voucherID", voucherID,
			"error", err,
		)
	}
}

func auditContext(candidateID, examID uuid.UUID) audit.Context {
	candidate := candidateID.String()
	exam := examID.String()
	return audit.Context{CandidateID: &candidate, ExamID: &exam}
}

func marshalAnswers(answers SubmittedAnswers) (datatypes.JSON, error) {
	raw, err := json.Marshal(answers)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// certificateCode mints the human-facing unique code printed on artifacts.
func certificateCode() (string, error) {
	raw := make([]byte, 10)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	return fmt.Sprintf("CERT-%s", encoded), nil
}
