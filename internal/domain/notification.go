package domain

import (
	"encoding/json"
	"time"
)

// NotificationKind names one notification template.
type NotificationKind string

const (
	KindAttendanceReminder NotificationKind = "attendance-reminder"
	KindReportReady        NotificationKind = "report-ready"
	KindSystemUpdate       NotificationKind = "system-update"
	KindWeeklySummary      NotificationKind = "weekly-summary"
)

// Valid reports whether the kind is a known template.
func (k NotificationKind) Valid() bool {
	switch k {
	case KindAttendanceReminder, KindReportReady, KindSystemUpdate, KindWeeklySummary:
		return true
	}
	return false
}

// NotificationRecord is one in-app notification entry.
type NotificationRecord struct {
	ID        string           `json:"id"`
	Type      NotificationKind `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Icon      string           `json:"icon"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
	Data      map[string]any   `json:"data,omitempty"`
}

// NotificationPreferences gates categories and channels. Push is read from
// two flag names; either one enables the channel.
type NotificationPreferences struct {
	Email               bool `json:"email"`
	Push                bool `json:"push"`
	PushNotifications   bool `json:"pushNotifications"`
	AttendanceReminders bool `json:"attendanceReminders"`
	ReportAlerts        bool `json:"reportAlerts"`
	SystemUpdates       bool `json:"systemUpdates"`
	WeeklySummary       bool `json:"weeklySummary"`
}

// DefaultPreferences enables everything.
func DefaultPreferences() NotificationPreferences {
	return NotificationPreferences{
		Email:               true,
		Push:                true,
		PushNotifications:   true,
		AttendanceReminders: true,
		ReportAlerts:        true,
		SystemUpdates:       true,
		WeeklySummary:       true,
	}
}

// UnmarshalJSON defaults missing flags to true. A missing push flag takes
// the value of the other push flag when that one is present.
func (p *NotificationPreferences) UnmarshalJSON(data []byte) error {
	type plain NotificationPreferences
	decoded := plain(DefaultPreferences())
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	var present map[string]json.RawMessage
	if err := json.Unmarshal(data, &present); err != nil {
		return err
	}
	_, hasPush := present["push"]
	_, hasLegacy := present["pushNotifications"]
	switch {
	case hasPush && !hasLegacy:
		decoded.PushNotifications = decoded.Push
	case hasLegacy && !hasPush:
		decoded.Push = decoded.PushNotifications
	}
	*p = NotificationPreferences(decoded)
	return nil
}

// Allows reports whether the category of kind is enabled.
func (p NotificationPreferences) Allows(kind NotificationKind) bool {
	switch kind {
	case KindAttendanceReminder:
		return p.AttendanceReminders
	case KindReportReady:
		return p.ReportAlerts
	case KindSystemUpdate:
		return p.SystemUpdates
	case KindWeeklySummary:
		return p.WeeklySummary
	}
	return false
}

// PushEnabled reports whether either push flag is set.
func (p NotificationPreferences) PushEnabled() bool {
	return p.Push || p.PushNotifications
}
