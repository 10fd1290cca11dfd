package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/attendance-hub/internal/api/http/handlers"
	"github.com/spec-kit/attendance-hub/internal/auth"
	"github.com/spec-kit/attendance-hub/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Profile        *handlers.ProfileHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Post("/logout", cfg.AuthMiddleware.Handle, cfg.Users.Logout)

	profile := app.Group("/profile", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	profile.Get("", cfg.Profile.Get)
	profile.Patch("", cfg.Profile.Update)
	profile.Get("/image", cfg.Profile.GetImage)
	profile.Put("/image", cfg.Profile.PutImage)

	n := cfg.Notifications
	notifications := app.Group("/notifications", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	notifications.Get("", n.List)
	notifications.Delete("", n.Clear)
	notifications.Post("", auth.RequireRole(domain.RoleAdmin, domain.RoleManager), n.Send)
	notifications.Get("/unread-count", n.UnreadCount)
	notifications.Post("/read-all", n.MarkAllRead)
	notifications.Get("/preferences", n.Preferences)
	notifications.Put("/preferences", n.SavePreferences)
	notifications.Post("/push-permission", n.RequestPushPermission)
	notifications.Post("/:id/read", n.MarkRead)
	notifications.Delete("/:id", n.Delete)
}
