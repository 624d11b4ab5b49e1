package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/credexam/certification-api/cmd/server/internal/attempts"
	servermiddleware "github.com/credexam/certification-api/cmd/server/internal/middleware"
	"github.com/credexam/certification-api/cmd/server/internal/response"
	"github.com/credexam/certification-api/internal/grading"
	"github.com/credexam/certification-api/internal/types"
	"github.com/credexam/certification-api/internal/voucher"
)

func (h *Handler) StartAttempt(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "StartAttempt")
	defer span.End()

	span.AddEvent("received start attempt request")

	auth, ok := servermiddleware.AuthFromContext(c)
	if !ok {
		span.RecordError(nil)
		span.SetStatus(codes.Error, "auth missing from context")
		return response.InternalServerError
	}

	requestTime, ok := c.Get("time").(time.Time)
	if !ok {
		span.RecordError(nil)
		span.SetStatus(codes.Error, "time missing from context")
		return response.InternalServerError
	}

	span.SetAttributes(
		attribute.String("auth.note", auth.Note),
		attribute.String("candidate.id", auth.CandidateID.String()),
		attribute.Int64("request.timestamp_ms", requestTime.UnixMilli()),
	)

	var rdata types.StartAttemptRequest

	span.AddEvent("parsing request body")
	err := c.Bind(&rdata)
	if err != nil {
		span.SetStatus(codes.Ok, "failed to parse request data")
		span.RecordError(err)
		return echo.NewHTTPError(
			http.StatusBadRequest,
			types.StringError("failed to parse request data"),
		)
	}

	span.AddEvent("validating request body")
	err = c.Validate(rdata)
	if err != nil {
		span.SetStatus(codes.Ok, "failed to validate request data")
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusBadRequest, types.ValidationError(err))
	}

	voucherID, err := uuid.Parse(rdata.VoucherID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Ok, "voucher id is not a uuid")
		return echo.NewHTTPError(http.StatusBadRequest, types.ValidationError(err))
	}

	result, err := h.attempts.Start(ctx, auth.CandidateID, voucherID, requestTime)
	if err != nil {
		return h.startError(c, span, err)
	}

	span.SetAttributes(attribute.String("result.id", result.ID.String()))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")

	return c.JSON(http.StatusCreated, types.StartAttemptResponse{
		ResultID:  result.ID.String(),
		Status:    result.Status,
		StartedAt: result.StartedAt,
		Deadline:  result.Deadline,
	})
}

func (h *Handler) startError(c echo.Context, span trace.Span, err error) error {
	var invalid *voucher.InvalidError
	if errors.As(err, &invalid) {
		span.RecordError(err)
		span.SetStatus(codes.Ok, "voucher rejected")
		return c.JSON(http.StatusForbidden, types.Error{
			Message: "voucher is not valid for an attempt",
			Fields:  &map[string]string{"reason": string(invalid.Reason)},
		})
	}

	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, attempts.ErrNotOwned) {
		span.RecordError(err)
		span.SetStatus(codes.Ok, "voucher not found for caller")
		return response.NotFoundError
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "failed to start attempt")
	return response.InternalServerError
}

func (h *Handler) SubmitAttempt(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "SubmitAttempt")
	defer span.End()

	span.AddEvent("received attempt submission request")

	auth, ok := servermiddleware.AuthFromContext(c)
	if !ok {
		span.RecordError(nil)
		span.SetStatus(codes.Error, "auth missing from context")
		return response.InternalServerError
	}

	requestTime, ok := c.Get("time").(time.Time)
	if !ok {
		span.RecordError(nil)
		span.SetStatus(codes.Error, "time missing from context")
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
		attribute.Int64("request.timestamp_ms", requestTime.UnixMilli()),
	)

	type requestData struct {
		Answers     map[string]grading.Answer `json:"answers"      validate:"required"`
		CallbackURL *string                   `json:"callback_url" validate:"omitempty,url"`
	}
	var rdata requestData

	span.AddEvent("parsing request body")
	err = c.Bind(&rdata)
	if err != nil {
		span.SetStatus(codes.Ok, "failed to parse request data")
		span.RecordError(err)
		return echo.NewHTTPError(
			http.StatusBadRequest,
			types.StringError("failed to parse request data"),
		)
	}

	span.AddEvent("validating request body")
	err = c.Validate(rdata)
	if err != nil {
		span.SetStatus(codes.Ok, "failed to validate request data")
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusBadRequest, types.ValidationError(err))
	}

	result, err := h.attempts.Submit(
		ctx,
		auth.CandidateID,
		resultID,
		attempts.SubmittedAnswers(rdata.Answers),
		rdata.CallbackURL,
		requestTime,
	)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, attempts.ErrNotOwned):
			span.RecordError(err)
			span.SetStatus(codes.Ok, "result not found for caller")
			return response.NotFoundError
		case errors.Is(err, attempts.ErrNotInProgress):
			span.RecordError(err)
			span.SetStatus(codes.Ok, "result is not submittable")
			return echo.NewHTTPError(
				http.StatusConflict,
				types.StringError("attempt is not in progress"),
			)
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to submit attempt")
			return response.InternalServerError
		}
	}

	span.SetAttributes(
		attribute.Int64("score", result.Score.V),
		attribute.String("verdict", result.Verdict.V),
	)
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")

	return c.JSON(http.StatusOK, types.SubmitAttemptResponse{
		ResultID:  result.ID.String(),
		Status:    result.Status,
		Score:     result.Score.V,
		Verdict:   types.Verdict(result.Verdict.V),
		PDFStatus: result.PDFStatus,
	})
}
