package v1

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	servermiddleware "github.com/credexam/certification-api/cmd/server/internal/middleware"
	"github.com/credexam/certification-api/cmd/server/internal/response"
	"github.com/credexam/certification-api/internal/artifactstore"
	"github.com/credexam/certification-api/internal/models"
	"github.com/credexam/certification-api/internal/types"
)

// Reports are short-lived downloads; certificates may be linked from a
// candidate's profile for years.
const (
	defaultSignedURLTTLHours   = 1
	maxReportSignedURLTTLHours = 24
	maxCertSignedURLTTLHours   = 10 * 365 * 24
)

func maxTTLHours(artifactType types.ArtifactType) int64 {
	if artifactType == types.ArtifactTypeCertificate {
		return maxCertSignedURLTTLHours
	}
	return maxReportSignedURLTTLHours
}

// resolveOwnedBlob loads the metadata row for `path` and enforces that the
// artifact belongs to one of the caller's results. Unknown paths and other
// candidates' paths are indistinguishable to the caller.
func (h *Handler) resolveOwnedBlob(
	c echo.Context,
	span trace.Span,
	path string,
) (*models.CertificateBlob, error) {
	ctx := c.Request().Context()
	db := h.DB.WithContext(ctx)

	auth, ok := servermiddleware.AuthFromContext(c)
	if !ok {
		span.RecordError(nil)
		span.SetStatus(codes.Error, "auth missing from context")
		return nil, response.InternalServerError
	}

	blob, err := models.BlobByPath(ctx, db, path)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Ok, "no artifact at path")
			return nil, response.NotFoundError
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load blob record")
		return nil, response.InternalServerError
	}

	result, err := models.ByID[models.Result](ctx, db, blob.ResultID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load owning result")
		return nil, response.InternalServerError
	}

	span.AddEvent("checking user can perform this operation")
	if result.CandidateID != auth.CandidateID {
		span.SetStatus(codes.Ok, "artifact candidate ID did not match auth candidate ID")
		span.RecordError(nil)
		return nil, response.NotFoundError
	}

	return blob, nil
}

func (h *Handler) ArtifactSignedURL(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ArtifactSignedURL")
	defer span.End()

	span.AddEvent("received signed url request")

	path := c.QueryParam("path")
	if path == "" {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "missing path parameter")
		return echo.NewHTTPError(
			http.StatusBadRequest,
			types.StringError("path query parameter is required"),
		)
	}

	ttlHours := int64(defaultSignedURLTTLHours)
	if raw := c.QueryParam("ttl_hours"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 {
			span.RecordError(err)
			span.SetStatus(codes.Ok, "invalid ttl_hours parameter")
			return echo.NewHTTPError(
				http.StatusBadRequest,
				types.Error{Message: "validation error", Fields: &map[string]string{
					"ttl_hours": "must be a positive integer",
				}},
			)
		}
		ttlHours = parsed
	}

	span.SetAttributes(
		attribute.String("path", path),
		attribute.Int64("ttl_hours", ttlHours),
	)

	blob, err := h.resolveOwnedBlob(c, span, path)
	if err != nil {
		return err
	}

	if limit := maxTTLHours(blob.ArtifactType); ttlHours > limit {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "ttl_hours over the cap for this artifact type")
		return echo.NewHTTPError(
			http.StatusBadRequest,
			types.Error{Message: "validation error", Fields: &map[string]string{
				"ttl_hours": fmt.Sprintf("must be at most %d for this artifact", limit),
			}},
		)
	}

	ttl := time.Duration(ttlHours) * time.Hour

	url, err := h.store.SignedURL(ctx, blob.Path, ttl)
	if err != nil {
		if archived, ok := artifactstore.AsArchived(err); ok {
			return h.archivePending(c, span, blob.Path, archived)
		}

		if errors.Is(err, artifactstore.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Ok, "artifact missing from store")
			return response.NotFoundError
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to sign url")
		return response.InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, types.SignedURLResponse{
		URL:       url,
		ExpiresAt: time.Now().UTC().Add(ttl),
	})
}

// archivePending starts rehydration and answers 202: the artifact exists but
// is not readable yet.
func (h *Handler) archivePending(
	c echo.Context,
	span trace.Span,
	path string,
	archived *artifactstore.ArchivedError,
) error {
	ctx := c.Request().Context()

	estimated := archived.EstimatedWait
	rehydrating := archived.Rehydrating

	if !rehydrating {
		span.AddEvent("requesting rehydration")
		status, err := h.store.RequestRehydration(ctx, path, artifactstore.PriorityStandard)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to request rehydration")
			return response.InternalServerError
		}

		rehydrating = status.Requested || status.InProgress
		if status.EstimatedWait > 0 {
			estimated = status.EstimatedWait
		}
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "artifact is archived")
	return c.JSON(http.StatusAccepted, types.ArchivePendingResponse{
		Status:        "rehydrating",
		Rehydrating:   rehydrating,
		EstimatedTime: estimated.String(),
	})
}

func (h *Handler) ArtifactStatus(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ArtifactStatus")
	defer span.End()

	span.AddEvent("received artifact status request")

	path := c.QueryParam("path")
	if path == "" {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "missing path parameter")
		return echo.NewHTTPError(
			http.StatusBadRequest,
			types.StringError("path query parameter is required"),
		)
	}

	span.SetAttributes(attribute.String("path", path))

	blob, err := h.resolveOwnedBlob(c, span, path)
	if err != nil {
		return err
	}

	status, err := h.store.Status(ctx, blob.Path)
	if err != nil {
		if errors.Is(err, artifactstore.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Ok, "artifact missing from store")
			return c.JSON(http.StatusOK, types.ArtifactStatusResponse{
				Path:   blob.Path,
				Exists: false,
			})
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to stat artifact")
		return response.InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	resp := types.ArtifactStatusResponse{
		Path:          blob.Path,
		Exists:        status.Exists,
		Tier:          string(status.Tier),
		Rehydrating:   status.Rehydrating,
		ArchiveStatus: status.ArchiveStatus,
		Available:     status.IsAvailable(),
		Size:          status.Size,
		ContentType:   status.ContentType,
	}
	if !status.LastModified.IsZero() {
		resp.LastModified = &status.LastModified
	}

	return c.JSON(http.StatusOK, resp)
}
