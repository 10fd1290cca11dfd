// Package notification renders, stores and fans out user notifications.
// Every accepted notification lands in the in-app inbox first; email and
// push are best effort on top of that.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/attendance-hub/internal/domain"
	"github.com/spec-kit/attendance-hub/internal/events"
	"github.com/spec-kit/attendance-hub/internal/kv"
	"github.com/spec-kit/attendance-hub/internal/observability"
	"github.com/spec-kit/attendance-hub/internal/push"
)

// Reasons reported in SendResult when nothing was sent.
const (
	ReasonCategoryDisabled = "category disabled"
	ReasonInvalid          = "invalid notification"
	ReasonStorage          = "in-app record not stored"
)

// DeliveryAttempt records one channel outcome.
type DeliveryAttempt struct {
	Channel string         `json:"channel"`
	Status  DeliveryStatus `json:"status"`
	Error   string         `json:"error,omitempty"`
}

// SendResult describes what Send did. Sent is true once the in-app record
// is stored, whatever happened on the external channels.
type SendResult struct {
	Sent         bool                      `json:"sent"`
	Reason       string                    `json:"reason,omitempty"`
	Notification domain.NotificationRecord `json:"notification"`
	UnreadCount  int                       `json:"unreadCount"`
	Attempts     []DeliveryAttempt         `json:"attempts,omitempty"`
}

// Dependencies groups the collaborators of a Dispatcher.
type Dependencies struct {
	Store       kv.Store
	Events      events.Dispatcher
	Permissions push.Host
	Email       Channel
	Push        Channel
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// Dispatcher sends notifications and manages the inbox.
type Dispatcher struct {
	kv          kv.Store
	bus         events.Dispatcher
	permissions push.Host
	email       Channel
	push        Channel
	metrics     *observability.Metrics
	logger      *zap.Logger
	clock       func() time.Time
	newID       func() (string, error)
}

// NewDispatcher wires a Dispatcher. A nil Events gets a private bus; nil
// channels are simply not used.
func NewDispatcher(deps Dependencies) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := deps.Events
	if bus == nil {
		bus = events.NewInMemoryDispatcher()
	}
	return &Dispatcher{
		kv:          deps.Store,
		bus:         bus,
		permissions: deps.Permissions,
		email:       deps.Email,
		push:        deps.Push,
		metrics:     deps.Metrics,
		logger:      logger.Named("notification"),
		clock:       time.Now,
		newID:       newID,
	}
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Send renders kind for the recipient and delivers it. It never fails:
// problems are reported through the result and the log.
func (d *Dispatcher) Send(ctx context.Context, kind domain.NotificationKind, recipientEmail, recipientName string, payload Payload) SendResult {
	log := d.logger.With(zap.String("kind", string(kind)), zap.String("email", recipientEmail))

	if !kind.Valid() {
		log.Warn("unknown notification kind")
		return SendResult{Reason: ReasonInvalid}
	}

	prefs := d.Preferences(ctx)
	if !prefs.Allows(kind) {
		log.Debug("notification category disabled")
		return SendResult{Reason: ReasonCategoryDisabled}
	}

	content, err := render(kind, recipientName, payload)
	if err != nil {
		log.Warn("notification not rendered", zap.Error(err))
		return SendResult{Reason: ReasonInvalid}
	}

	id, err := d.newID()
	if err != nil {
		log.Error("notification id", zap.Error(err))
		return SendResult{Reason: ReasonStorage}
	}
	rec := domain.NotificationRecord{
		ID:        id,
		Type:      kind,
		Title:     content.title,
		Message:   content.message,
		Icon:      content.icon,
		CreatedAt: d.clock().UTC(),
		Data:      content.data,
	}

	count, err := d.mutate(ctx, func(b *inbox) error {
		return b.prepend(rec)
	})
	if err != nil {
		log.Error("store notification failed", zap.Error(err))
		return SendResult{Reason: ReasonStorage}
	}

	result := SendResult{Sent: true, Notification: rec, UnreadCount: count}
	msg := Message{
		NotificationID: rec.ID,
		Kind:           kind,
		RecipientEmail: recipientEmail,
		RecipientName:  recipientName,
		Title:          rec.Title,
		Body:           rec.Message,
		Icon:           rec.Icon,
	}
	if prefs.Email && d.email != nil {
		result.Attempts = append(result.Attempts, d.deliver(ctx, d.email, msg, log))
	}
	if prefs.PushEnabled() && d.push != nil {
		result.Attempts = append(result.Attempts, d.deliver(ctx, d.push, msg, log))
	}
	return result
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, msg Message, log *zap.Logger) (attempt DeliveryAttempt) {
	attempt.Channel = ch.Name()
	defer func() {
		if r := recover(); r != nil {
			attempt.Status = StatusFailed
			attempt.Error = fmt.Sprint(r)
			log.Error("channel panicked", zap.String("channel", attempt.Channel), zap.Any("panic", r))
		}
		d.metrics.RecordDelivery(attempt.Channel, string(attempt.Status))
	}()

	status, err := ch.Deliver(ctx, msg)
	attempt.Status = status
	if err != nil {
		if status != StatusFailed {
			attempt.Status = StatusFailed
		}
		attempt.Error = err.Error()
		log.Warn("channel delivery failed", zap.String("channel", attempt.Channel), zap.Error(err))
	}
	return attempt
}

// RequestPushPermission asks the host for push permission and reports
// whether it is granted. A decided state is returned without prompting.
func (d *Dispatcher) RequestPushPermission(ctx context.Context) (bool, error) {
	if d.permissions == nil {
		return false, nil
	}
	state, err := d.permissions.Request(ctx)
	if err != nil {
		d.logger.Warn("push permission request failed", zap.Error(err))
		return false, err
	}
	return state == push.Granted, nil
}

// Wait blocks until background channel deliveries finish.
func (d *Dispatcher) Wait() {
	for _, ch := range []Channel{d.email, d.push} {
		if w, ok := ch.(waiter); ok {
			w.Wait()
		}
	}
}
