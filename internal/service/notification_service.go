package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/attendance-hub/internal/domain"
	"github.com/spec-kit/attendance-hub/internal/notification"
	"github.com/spec-kit/attendance-hub/internal/userdata"
)

// ErrInvalidInput indicates a request the services cannot act on.
var ErrInvalidInput = errors.New("invalid input")

// SendRequest asks for one notification. A blank recipient means the
// session user.
type SendRequest struct {
	Kind           domain.NotificationKind
	RecipientEmail string
	RecipientName  string
	Payload        notification.Payload
}

// NotificationService resolves recipients from the profile store and
// hands notifications to the dispatcher.
type NotificationService struct {
	dispatcher *notification.Dispatcher
	profiles   *userdata.Store
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher *notification.Dispatcher, profiles *userdata.Store, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		profiles:   profiles,
		logger:     logger.Named("notification_service"),
	}
}

// Send fills in the recipient and dispatches.
func (n *NotificationService) Send(ctx context.Context, req SendRequest) (notification.SendResult, error) {
	if !req.Kind.Valid() {
		return notification.SendResult{}, ErrInvalidInput
	}
	email := strings.TrimSpace(req.RecipientEmail)
	name := strings.TrimSpace(req.RecipientName)
	if email == "" {
		profile, ok := n.profiles.Get(ctx)
		if !ok {
			return notification.SendResult{}, userdata.ErrNoSession
		}
		email = profile.Email
		if name == "" {
			name = profile.FullName
		}
	}
	res := n.dispatcher.Send(ctx, req.Kind, email, name, req.Payload)
	if !res.Sent {
		n.logger.Info("notification not sent", zap.String("kind", string(req.Kind)), zap.String("reason", res.Reason))
	}
	return res, nil
}

// RemindCurrentUser sends the attendance reminder to the session user.
func (n *NotificationService) RemindCurrentUser(ctx context.Context) error {
	_, err := n.Send(ctx, SendRequest{Kind: domain.KindAttendanceReminder})
	return err
}
