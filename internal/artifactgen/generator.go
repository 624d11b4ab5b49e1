package artifactgen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/credexam/certification-api/internal/artifactstore"
	"github.com/credexam/certification-api/internal/audit"
	"github.com/credexam/certification-api/internal/callback"
	"github.com/credexam/certification-api/internal/logger"
	"github.com/credexam/certification-api/internal/models"
	"github.com/credexam/certification-api/internal/queue"
	"github.com/credexam/certification-api/internal/render"
	"github.com/credexam/certification-api/internal/types"
)

const name = "github.com/credexam/certification-api/internal/artifactgen"

var tracer = otel.Tracer(name)

// Generator renders, stores, and records one artifact per job message. Safe
// under at-least-once delivery: a per-artifact lease (the artifact's URL
// column plus pdf_status) keeps concurrent deliveries from double-processing,
// and re-renders are deterministic so a crashed worker's redo overwrites with
// identical bytes. Jobs for different artifact types of the same result never
// block each other terminally; a lease held elsewhere defers to redelivery.
type Generator struct {
	db       *gorm.DB
	store    artifactstore.Store
	renderer render.Renderer
	notifier callback.Notifier
	// How long a processing claim may sit before another worker may steal it
	leaseStale time.Duration
}

func NewGenerator(
	db *gorm.DB,
	store artifactstore.Store,
	renderer render.Renderer,
	notifier callback.Notifier,
	leaseStale time.Duration,
) *Generator {
	return &Generator{
		db:         db,
		store:      store,
		renderer:   renderer,
		notifier:   notifier,
		leaseStale: leaseStale,
	}
}

// Generate processes one job end to end. Structural problems with the job
// (missing result, attempt never graded) return poison errors so the queue
// discards instead of redelivering; transient failures return plain errors
// and rely on redelivery.
func (g *Generator) Generate(ctx context.Context, message types.ArtifactJobMessage) error {
	ctx, span := tracer.Start(ctx, "Generator.Generate", trace.WithAttributes(
		attribute.String("result.id", message.ResultID),
		attribute.String("artifact.type", string(message.Type)),
	))
	defer span.End()

	db := g.db.WithContext(ctx)

	resultID, err := uuid.Parse(message.ResultID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job carries an unparseable result id")
		return queue.WrapPoisonError(err)
	}

	result, err := models.ByID[models.Result](ctx, db, resultID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "job references a missing result")
			return queue.WrapPoisonError(err)
		}
		span.SetStatus(codes.Error, "failed to load result")
		return err
	}

	if result.Status != types.ResultStatusCompleted || !result.Score.Valid {
		err := fmt.Errorf("result %s was never graded", message.ResultID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "job references an ungraded result")
		return queue.WrapPoisonError(err)
	}

	claimed, err := models.ClaimArtifactProcessing(ctx, db, resultID, message.Type, g.leaseStale)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to claim processing lease")
		return err
	}
	if !claimed {
		fresh, err := models.ByID[models.Result](ctx, db, resultID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to reload result after claim")
			return err
		}

		if fresh.ArtifactPath(message.Type).Valid {
			// Redelivered duplicate of a finished job
			logger.Logger.InfoContext(ctx, "skipping artifact job; already generated",
				"resultID", message.ResultID,
				"artifactType", message.Type,
			)
			span.RecordError(nil)
			span.SetStatus(codes.Ok, "artifact already generated")
			return nil
		}

		// Another worker holds a fresh lease on this result; redelivery will
		// bring this job back once that lease settles
		err = fmt.Errorf(
			"lease for result %s is held elsewhere; deferring %s job",
			message.ResultID, message.Type,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "lease not acquired")
		return err
	}

	candidate, err := models.ByID[models.Candidate](ctx, db, result.CandidateID)
	if err != nil {
		return g.fail(ctx, span, result, message.Type, err)
	}

	var exam models.Exam
	if err := db.First(&exam, result.ExamID).Error; err != nil {
		return g.fail(ctx, span, result, message.Type,
			fmt.Errorf("failed to load exam: %w", err))
	}

	path, err := g.generate(ctx, result, candidate, &exam, message)
	if err != nil {
		failure := g.fail(ctx, span, result, message.Type, err)
		return g.notifyAndReturn(ctx, message, types.PDFStatusError, nil, failure)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "generated artifact")
	return g.notifyAndReturn(ctx, message, types.PDFStatusCompleted, &path, nil)
}

// generate is the render/store/record pipeline; returns the stored path.
func (g *Generator) generate(
	ctx context.Context,
	result *models.Result,
	candidate *models.Candidate,
	exam *models.Exam,
	message types.ArtifactJobMessage,
) (string, error) {
	doc := buildDocument(message.Type, result, candidate, exam)

	content, err := g.renderer.Render(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to render artifact: %w", err)
	}

	path := artifactPath(message.Type, result, exam)

	uploaded, err := g.store.Upload(
		ctx, bytes.NewReader(content), int64(len(content)), path,
	)
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact: %w", err)
	}

	db := g.db.WithContext(ctx)

	blob := models.CertificateBlob{
		Path:         uploaded.Path,
		Tier:         string(artifactstore.TierCool),
		SHA256:       uploaded.SHA256,
		ContentType:  artifactstore.ContentTypePDF,
		ArtifactType: message.Type,
		ResultID:     result.ID,
		Size:         uploaded.Size,
		Verified:     true,
	}
	if err := models.UpsertCertificateBlob(ctx, db, &blob); err != nil {
		return "", err
	}

	if err := models.CompletePDF(ctx, db, result.ID, message.Type, uploaded.Path); err != nil {
		return "", err
	}

	storeName, err := g.store.StoreIdentifier(ctx)
	if err != nil {
		storeName = "unknown"
	}

	audit.LogArtifactStored(
		auditContext(result),
		result.ID.String(),
		message.Type,
		storeName,
		uploaded.Path,
		uploaded.SHA256,
		uploaded.Size,
	)

	return uploaded.Path, nil
}

// fail marks the result errored and logs; the queue's redelivery budget
// decides whether it is retried.
func (g *Generator) fail(
	ctx context.Context,
	span trace.Span,
	result *models.Result,
	artifactType types.ArtifactType,
	cause error,
) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, "artifact generation failed")

	if err := models.MarkPDFError(ctx, g.db.WithContext(ctx), result.ID); err != nil {
		logger.Logger.ErrorContext(ctx, "failed to mark pdf error",
			"resultID", result.ID,
			"error", err,
		)
	}

	audit.LogArtifactFailed(auditContext(result), result.ID.String(), artifactType, cause)

	return cause
}

// notifyAndReturn fires the optional callback with the terminal outcome.
// Callback trouble never changes the job's outcome; the retrying transport
// already absorbed transient failures.
func (g *Generator) notifyAndReturn(
	ctx context.Context,
	message types.ArtifactJobMessage,
	status types.PDFStatus,
	path *string,
	outcome error,
) error {
	if message.CallbackURL == nil || g.notifier == nil {
		return outcome
	}

	notification := callback.Notification{
		ResultID:     message.ResultID,
		ArtifactType: message.Type,
		PDFStatus:    status,
		ArtifactPath: path,
	}
	if err := g.notifier.Notify(ctx, *message.CallbackURL, notification); err != nil {
		logger.Logger.ErrorContext(ctx, "failed to deliver artifact callback",
			"resultID", message.ResultID,
			"callbackURL", *message.CallbackURL,
			"error", err,
		)
	}

	return outcome
}

// buildDocument shapes what the artifact shows. Reports carry no certificate
// code; codes appear only on certificates.
func buildDocument(
	artifactType types.ArtifactType,
	result *models.Result,
	candidate *models.Candidate,
	exam *models.Exam,
) render.Document {
	doc := render.Document{
		Type:          artifactType,
		CandidateName: candidate.Name,
		ExamTitle:     exam.Title,
		Score:         int(result.Score.V),
		Verdict:       types.Verdict(result.Verdict.V),
		IssuedAt:      issuedAt(result).Format("2006-01-02"),
	}

	if artifactType == types.ArtifactTypeCertificate {
		doc.CertificateCode = result.CertificateCode
	}

	return doc
}

// artifactPath fixes each artifact's storage location. Deterministic per
// result and type so redelivered jobs overwrite instead of duplicating.
func artifactPath(
	artifactType types.ArtifactType,
	result *models.Result,
	exam *models.Exam,
) string {
	if artifactType == types.ArtifactTypeCertificate {
		return artifactstore.CertificatePath(
			issuedAt(result),
			result.CandidateID.String(),
			exam.ClassCode,
			result.ID.String(),
		)
	}

	return artifactstore.ReportPath(artifactType, result.ID.String())
}

// issuedAt anchors certificate paths and document dates to grading time, not
// generation time, so retries months later land on the same path.
func issuedAt(result *models.Result) time.Time {
	if result.EndedAt.Valid {
		return result.EndedAt.V.UTC()
	}
	return result.StartedAt.UTC()
}

func auditContext(result *models.Result) audit.Context {
	candidate := result.CandidateID.String()
	exam := result.ExamID.String()
	return audit.Context{CandidateID: &candidate, ExamID: &exam}
}
