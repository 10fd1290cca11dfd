package notification

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spec-kit/attendance-hub/internal/domain"
)

var (
	// ErrUnknownKind indicates a kind without a template.
	ErrUnknownKind = errors.New("unknown notification kind")
	// ErrInvalidPayload indicates the payload lacks what the kind's template needs.
	ErrInvalidPayload = errors.New("invalid notification payload")
)

// Payload carries the per-kind template inputs. report-ready needs
// ReportName, system-update needs Message, weekly-summary needs Summary.
type Payload struct {
	ReportName string         `json:"reportName,omitempty"`
	Message    string         `json:"message,omitempty"`
	Summary    *WeeklySummary `json:"summary,omitempty"`
}

// WeeklySummary is the attendance digest sent every week.
type WeeklySummary struct {
	PresentDays int     `json:"presentDays"`
	LateDays    int     `json:"lateDays"`
	AbsentDays  int     `json:"absentDays"`
	HoursWorked float64 `json:"hoursWorked"`
}

type rendered struct {
	title   string
	message string
	icon    string
	data    map[string]any
}

func render(kind domain.NotificationKind, recipientName string, payload Payload) (rendered, error) {
	name := strings.TrimSpace(recipientName)
	switch kind {
	case domain.KindAttendanceReminder:
		msg := "N'oubliez pas d'enregistrer votre présence aujourd'hui."
		if name != "" {
			msg = fmt.Sprintf("Bonjour %s, n'oubliez pas d'enregistrer votre présence aujourd'hui.", name)
		}
		return rendered{title: "Rappel de pointage", message: msg, icon: "clock"}, nil

	case domain.KindReportReady:
		report := strings.TrimSpace(payload.ReportName)
		if report == "" {
			return rendered{}, fmt.Errorf("%w: report name is required", ErrInvalidPayload)
		}
		return rendered{
			title:   "Nouveau rapport disponible",
			message: fmt.Sprintf("Le rapport \"%s\" est prêt à être consulté.", report),
			icon:    "file-text",
			data:    map[string]any{"reportName": report},
		}, nil

	case domain.KindSystemUpdate:
		msg := strings.TrimSpace(payload.Message)
		if msg == "" {
			return rendered{}, fmt.Errorf("%w: message is required", ErrInvalidPayload)
		}
		return rendered{title: "Mise à jour du système", message: msg, icon: "info"}, nil

	case domain.KindWeeklySummary:
		s := payload.Summary
		if s == nil {
			return rendered{}, fmt.Errorf("%w: summary is required", ErrInvalidPayload)
		}
		return rendered{
			title: "Votre résumé hebdomadaire",
			message: fmt.Sprintf("Cette semaine : %d jour(s) de présence, %d retard(s), %d absence(s), %.1f h travaillées.",
				s.PresentDays, s.LateDays, s.AbsentDays, s.HoursWorked),
			icon: "calendar",
			data: map[string]any{
				"presentDays": s.PresentDays,
				"lateDays":    s.LateDays,
				"absentDays":  s.AbsentDays,
				"hoursWorked": s.HoursWorked,
			},
		}, nil
	}
	return rendered{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}
