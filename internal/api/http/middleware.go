package http

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	"github.com/repairdesk/repairdesk/internal/observability"
	apperrors "github.com/repairdesk/repairdesk/pkg/util/errorutil"
)

// MiddlewareConfig configures the global middleware chain.
type MiddlewareConfig struct {
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Timeout     time.Duration
	CORSOrigins string
}

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, cfg MiddlewareConfig) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CORSOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Line-User-Id",
			AllowCredentials: cfg.CORSOrigins != "*",
		}))
	}
	if cfg.Timeout > 0 {
		app.Use(requestTimeoutMiddleware(cfg.Timeout))
	}
	app.Use(observability.RequestLogger(logger, cfg.Metrics))
	app.Use(errorHandlingMiddleware(logger, cfg.Metrics))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				domainErr := toDomainError(err)
				metrics.RecordError(c.Path(), c.Method(), domainErr.Code)
				response := fiber.Map{"error": fiber.Map{
					"code":    domainErr.Code,
					"message": domainErr.Message,
				}}
				if len(domainErr.Details) > 0 {
					response["error"].(fiber.Map)["details"] = domainErr.Details
				}
				if domainErr.HTTPStatus >= 500 {
					logger.Error("request failed", zap.String("path", c.Path()), zap.Error(domainErr))
				}
				c.Status(domainErr.HTTPStatus)
				_ = c.JSON(response)
				err = nil
			}
		}()
		return c.Next()
	}
}

// toDomainError also translates fiber's own errors (unknown route, body too large).
func toDomainError(err error) *apperrors.DomainError {
	var fiberErr *fiber.Error
	if !errors.As(err, &fiberErr) {
		return apperrors.ToDomainError(err)
	}
	code := apperrors.CodeInternal
	switch fiberErr.Code {
	case http.StatusNotFound:
		code = apperrors.CodeNotFound
	case http.StatusUnauthorized:
		code = apperrors.CodeUnauthorized
	case http.StatusForbidden:
		code = apperrors.CodeForbidden
	case http.StatusConflict:
		code = apperrors.CodeConflict
	default:
		if fiberErr.Code >= 400 && fiberErr.Code < 500 {
			code = apperrors.CodeValidation
		}
	}
	return apperrors.NewDomainError(code, fiberErr.Message, fiberErr.Code, nil)
}
