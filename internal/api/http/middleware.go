package http

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/attendance-hub/internal/auth"
	"github.com/spec-kit/attendance-hub/internal/kv"
	"github.com/spec-kit/attendance-hub/internal/notification"
	"github.com/spec-kit/attendance-hub/internal/observability"
	"github.com/spec-kit/attendance-hub/internal/service"
	"github.com/spec-kit/attendance-hub/internal/userdata"
	apperrors "github.com/spec-kit/attendance-hub/pkg/util/errorutil"
)

var errorMappings = []apperrors.Mapping{
	{Target: userdata.ErrNoSession, Code: "NO_SESSION", Status: http.StatusConflict},
	{Target: userdata.ErrUserExists, Code: "CONFLICT", Status: http.StatusConflict},
	{Target: userdata.ErrUserNotFound, Code: "NOT_FOUND", Status: http.StatusNotFound},
	{Target: userdata.ErrInvalidImage, Code: "VALIDATION_FAILED", Status: http.StatusBadRequest},
	{Target: notification.ErrNotFound, Code: "NOT_FOUND", Status: http.StatusNotFound},
	{Target: auth.ErrInvalidCredentials, Code: "UNAUTHORIZED", Status: http.StatusUnauthorized},
	{Target: auth.ErrWeakPassword, Code: "VALIDATION_FAILED", Status: http.StatusBadRequest},
	{Target: service.ErrInvalidInput, Code: "VALIDATION_FAILED", Status: http.StatusBadRequest},
	{Target: kv.ErrClosed, Code: "STORAGE_UNAVAILABLE", Status: http.StatusServiceUnavailable},
	{Target: context.DeadlineExceeded, Code: "TIMEOUT", Status: http.StatusGatewayTimeout},
}

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(errorHandlingMiddleware(logger, metrics))
	app.Use(observability.RequestLogger(logger, metrics))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// toDomainError also translates fiber's own errors (unknown routes, bad
// methods, fiber.NewError from handlers).
func toDomainError(err error) *apperrors.DomainError {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := strings.ToUpper(strings.ReplaceAll(http.StatusText(fe.Code), " ", "_"))
		switch fe.Code {
		case http.StatusBadRequest:
			code = "VALIDATION_FAILED"
		case http.StatusNotFound:
			code = "NOT_FOUND"
		}
		return apperrors.NewDomainError(code, fe.Message, fe.Code, nil)
	}
	return apperrors.ToDomainError(err, errorMappings...)
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
