package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/attendance-hub/internal/api/dto"
	"github.com/spec-kit/attendance-hub/internal/domain"
	"github.com/spec-kit/attendance-hub/internal/notification"
	"github.com/spec-kit/attendance-hub/internal/service"
)

// NotificationsHandler exposes the inbox, preferences and dispatch.
type NotificationsHandler struct {
	dispatcher *notification.Dispatcher
	service    *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(dispatcher *notification.Dispatcher, svc *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{dispatcher: dispatcher, service: svc}
}

// List handles GET /notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()
	return c.JSON(fiber.Map{"data": dto.NotificationListResponse{
		Notifications: h.dispatcher.List(ctx),
		UnreadCount:   h.dispatcher.UnreadCount(ctx),
	}})
}

// UnreadCount handles GET /notifications/unread-count.
func (h *NotificationsHandler) UnreadCount(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": dto.UnreadCountResponse{UnreadCount: h.dispatcher.UnreadCount(c.UserContext())}})
}

// MarkRead handles POST /notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	if err := h.dispatcher.MarkRead(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return h.UnreadCount(c)
}

// MarkAllRead handles POST /notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	if err := h.dispatcher.MarkAllRead(c.UserContext()); err != nil {
		return err
	}
	return h.UnreadCount(c)
}

// Delete handles DELETE /notifications/:id.
func (h *NotificationsHandler) Delete(c *fiber.Ctx) error {
	if err := h.dispatcher.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Clear handles DELETE /notifications.
func (h *NotificationsHandler) Clear(c *fiber.Ctx) error {
	if err := h.dispatcher.Clear(c.UserContext()); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Preferences handles GET /notifications/preferences.
func (h *NotificationsHandler) Preferences(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.dispatcher.Preferences(c.UserContext())})
}

// SavePreferences handles PUT /notifications/preferences. Flags missing
// from the body are enabled.
func (h *NotificationsHandler) SavePreferences(c *fiber.Ctx) error {
	var prefs domain.NotificationPreferences
	if err := c.BodyParser(&prefs); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if err := h.dispatcher.SavePreferences(c.UserContext(), prefs); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": prefs})
}

// RequestPushPermission handles POST /notifications/push-permission.
func (h *NotificationsHandler) RequestPushPermission(c *fiber.Ctx) error {
	granted, err := h.dispatcher.RequestPushPermission(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.PushPermissionResponse{Granted: granted}})
}

// Send handles POST /notifications.
func (h *NotificationsHandler) Send(c *fiber.Ctx) error {
	var req dto.SendNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	res, err := h.service.Send(c.UserContext(), service.SendRequest{
		Kind:           req.Type,
		RecipientEmail: req.To,
		RecipientName:  req.Name,
		Payload:        req.Payload(),
	})
	if err != nil {
		return err
	}
	status := http.StatusOK
	if res.Sent {
		status = http.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": res})
}
