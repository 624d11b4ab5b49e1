package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/credexam/certification-api/cmd/server/internal/attempts"
	servermiddleware "github.com/credexam/certification-api/cmd/server/internal/middleware"
	"github.com/credexam/certification-api/cmd/server/internal/ratelimit"
	"github.com/credexam/certification-api/internal/artifactstore"
	"github.com/credexam/certification-api/internal/config"
	"github.com/credexam/certification-api/internal/logger"
	"github.com/credexam/certification-api/internal/types"
)

const name = "github.com/credexam/certification-api/cmd/server/internal/routes/v1"

var tracer = otel.Tracer(name)

type Handler struct {
	DB       *gorm.DB
	attempts *attempts.Service
	store    artifactstore.Store
	config   *config.Config
}

func NewHandler(
	db *gorm.DB,
	attemptService *attempts.Service,
	store artifactstore.Store,
	cfg *config.Config,
) Handler {
	return Handler{
		DB:       db,
		attempts: attemptService,
		store:    store,
		config:   cfg,
	}
}

func NewRedisLimiter(
	redisHost string,
	limiterKey string,
	perMinute int64,
	failOpen bool,
	onlyMethod *string,
) middleware.RateLimiterConfig {
	l := logger.Logger

	redisAddr := redisHost + ":6379"
	l.Debug("Setting up rate limiter with Redis", "redis", redisAddr)
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	store := ratelimit.NewRedisLimitStore(ratelimit.RedisLimiterConfig{
		PerMinute:   perMinute,
		RedisClient: rdb,
		LimiterKey:  limiterKey,
		FailOpen:    failOpen,
	})

	skipper := middleware.DefaultSkipper
	if onlyMethod != nil {
		skipper = func(c echo.Context) bool {
			return c.Request().Method != *onlyMethod
		}
	}

	return middleware.RateLimiterConfig{
		Skipper: skipper,
		Store:   store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			auth, ok := servermiddleware.AuthFromContext(c)
			if !ok {
				return "", echo.NewHTTPError(
					http.StatusInternalServerError,
					types.StringError("something went wrong"),
				)
			}
			return auth.ID.String(), nil
		},
		ErrorHandler: func(context echo.Context, _ error) error {
			return context.JSON(http.StatusForbidden, nil)
		},
		DenyHandler: func(context echo.Context, _ string, _ error) error {
			return context.JSON(http.StatusTooManyRequests, nil)
		},
	}
}

func (h *Handler) AddRoutes(e *echo.Echo, middlewareHandler *servermiddleware.Handler) {
	l := logger.Logger

	v1Group := e.Group("/v1", middleware.BasicAuth(middlewareHandler.BasicAuthValidator))

	attemptGroup := v1Group.Group("/attempts")
	resultGroup := v1Group.Group("/results")
	artifactGroup := v1Group.Group("/artifacts")

	if h.config.RateLimit != nil && h.config.RateLimit.SubmitPerMinute > 0 {
		post := http.MethodPost

		attemptGroup.Use(
			middleware.RateLimiterWithConfig(
				NewRedisLimiter(
					h.config.RateLimit.RedisHost,
					"submit",
					h.config.RateLimit.SubmitPerMinute,
					h.config.RateLimit.FailOpen,
					&post,
				),
			),
		)
	} else {
		l.Warn("not configured to have a submit rate limit")
	}

	attemptGroup.POST("/", h.StartAttempt)
	attemptGroup.POST("/:result_id/submit/", h.SubmitAttempt)

	resultGroup.GET("/:result_id/", h.ResultStatus)
	resultGroup.POST("/:result_id/artifacts/retry/", h.RetryArtifacts)

	artifactGroup.GET("/signed-url/", h.ArtifactSignedURL)
	artifactGroup.GET("/status/", h.ArtifactStatus)
}
