package dto

import (
	"github.com/spec-kit/attendance-hub/internal/domain"
	"github.com/spec-kit/attendance-hub/internal/notification"
)

// SendNotificationRequest dispatches one notification. A blank To targets
// the session user.
type SendNotificationRequest struct {
	Type       domain.NotificationKind     `json:"type"`
	To         string                      `json:"to"`
	Name       string                      `json:"name"`
	ReportName string                      `json:"reportName"`
	Message    string                      `json:"message"`
	Summary    *notification.WeeklySummary `json:"summary"`
}

// Payload extracts the template inputs.
func (r SendNotificationRequest) Payload() notification.Payload {
	return notification.Payload{ReportName: r.ReportName, Message: r.Message, Summary: r.Summary}
}

// NotificationListResponse is the inbox with its counter.
type NotificationListResponse struct {
	Notifications []domain.NotificationRecord `json:"notifications"`
	UnreadCount   int                         `json:"unreadCount"`
}

// UnreadCountResponse carries the unread counter.
type UnreadCountResponse struct {
	UnreadCount int `json:"unreadCount"`
}

// PushPermissionResponse reports the permission outcome.
type PushPermissionResponse struct {
	Granted bool `json:"granted"`
}
