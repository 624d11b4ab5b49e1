package response

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/credexam/certification-api/internal/types"
)

// Shared terminal responses. Not-found doubles as the answer for resources
// owned by someone else, so callers cannot probe for other candidates'
// results or artifacts.
var (
	InternalServerError = echo.NewHTTPError(
		http.StatusInternalServerError,
		types.StringError("internal error"),
	)
	NotFoundError = echo.NewHTTPError(http.StatusNotFound, types.StringError("not found"))
)
