package http

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/attendance-hub/internal/config"
	"github.com/spec-kit/attendance-hub/internal/observability"
)

// NewApp builds the fiber app with middlewares and routes registered.
func NewApp(cfg config.AppConfig, logger *zap.Logger, metrics *observability.Metrics, routes RouteConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.Name,
		DisableStartupMessage: true,
		BodyLimit:             8 * 1024 * 1024,
	})
	RegisterMiddlewares(app, logger, metrics, cfg.RequestTimeout())
	RegisterRoutes(app, routes)
	return app
}
