package events

import (
	"time"

	"github.com/spec-kit/attendance-hub/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserDataChanged      EventType = "user_data_changed"
	EventNotificationsChanged EventType = "notifications_changed"
	EventProfileImageChanged  EventType = "profile_image_changed"
)

// Event is one broadcast published by a store.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// UserDataChangedPayload carries the merged profile after an update.
type UserDataChangedPayload struct {
	Profile domain.UserProfile `json:"profile"`
}

// NotificationsChangedPayload carries the recomputed unread counter.
type NotificationsChangedPayload struct {
	UnreadCount int `json:"unreadCount"`
}

// ProfileImageChangedPayload is scoped to one user. Legacy listeners that
// only understand a bare data URL read ImageDataURL.
type ProfileImageChangedPayload struct {
	UserEmail    string `json:"userEmail"`
	ImageDataURL string `json:"imageDataUrl"`
}
