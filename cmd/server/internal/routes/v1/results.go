package v1

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/credexam/certification-api/cmd/server/internal/attempts"
	servermiddleware "github.com/credexam/certification-api/cmd/server/internal/middleware"
	"github.com/credexam/certification-api/cmd/server/internal/response"
	"github.com/credexam/certification-api/internal/models"
	"github.com/credexam/certification-api/internal/types"
)

func (h *Handler) ResultStatus(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ResultStatus")
	defer span.End()

	span.AddEvent("received result status request")

	auth, ok := servermiddleware.AuthFromContext(c)
	if !ok {
		span.RecordError(nil)
		span.SetStatus(codes.Error, "auth missing from context")
		return response.InternalServerError
	}

	resultID, err := uuid.Parse(c.Param("result_id"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Ok, "result id is not a uuid")
		return response.NotFoundError
	}

	span.SetAttributes(
		attribute.String("candidate.id", auth.CandidateID.String()),
		attribute.String("result.id", resultID.String()),
	)

	db := h.DB.WithContext(ctx)

	result, err := models.ByID[models.Result](ctx, db, resultID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Ok, "result not found")
			return response.NotFoundError
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load result")
		return response.InternalServerError
	}

	span.AddEvent("checking user can perform this operation")
	if result.CandidateID != auth.CandidateID {
		span.SetStatus(codes.Ok, "result candidate ID did not match auth candidate ID")
		span.RecordError(nil)
		return response.NotFoundError
	}

	resp := types.ResultResponse{
		ResultID:        result.ID.String(),
		Status:          result.Status,
		PDFStatus:       result.PDFStatus,
		Score:           models.PtrFromNull(result.Score),
		Verdict:         models.PtrFromNull(result.Verdict),
		ReportPath:      models.PtrFromNull(result.ReportURL),
		CertificatePath: models.PtrFromNull(result.CertificateURL),
		StartedAt:       result.StartedAt,
		EndedAt:         models.PtrFromNull(result.EndedAt),
		Deadline:        result.Deadline,
	}

	// The code is meaningful only once a passing attempt has a certificate
	if result.Passed() {
		resp.CertificateCode = &result.CertificateCode
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) RetryArtifacts(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "RetryArtifacts")
	defer span.End()

	span.AddEvent("received artifact retry request")

	auth, ok := servermiddleware.AuthFromContext(c)
	if !ok {
		span.RecordError(nil)
		span.SetStatus(codes.Error, "auth missing from context")
		return response.InternalServerError
	}

	resultID, err := uuid.Parse(c.Param("result_id"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Ok, "result id is not a uuid")
		return response.NotFoundError
	}

	span.SetAttributes(
		attribute.String("candidate.id", auth.CandidateID.String()),
		attribute.String("result.id", resultID.String()),
	)

	retried, err := h.attempts.RetryArtifacts(ctx, auth.CandidateID, resultID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, attempts.ErrNotOwned) {
			span.RecordError(err)
			span.SetStatus(codes.Ok, "result not found for caller")
			return response.NotFoundError
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to retry artifacts")
		return response.InternalServerError
	}

	if !retried {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "result was not in error")
		return echo.NewHTTPError(
			http.StatusConflict,
			types.StringError("artifact generation is not in the error state"),
		)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusAccepted, types.RetryArtifactsResponse{
		ResultID: resultID.String(),
		Retried:  true,
	})
}
