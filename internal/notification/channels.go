package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/attendance-hub/internal/domain"
	"github.com/spec-kit/attendance-hub/internal/observability"
	"github.com/spec-kit/attendance-hub/internal/push"
)

const webhookTimeout = 5 * time.Second

// DeliveryStatus is the outcome of one channel attempt.
type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
	StatusSkipped   DeliveryStatus = "skipped"
	// StatusPending means delivery continues in the background.
	StatusPending DeliveryStatus = "pending"
)

// Message is what channels deliver.
type Message struct {
	NotificationID string                  `json:"notificationId"`
	Kind           domain.NotificationKind `json:"kind"`
	RecipientEmail string                  `json:"recipientEmail"`
	RecipientName  string                  `json:"recipientName"`
	Title          string                  `json:"title"`
	Body           string                  `json:"body"`
	Icon           string                  `json:"icon"`
}

// Channel is one external delivery route.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, msg Message) (DeliveryStatus, error)
}

// waiter is implemented by channels that deliver in the background.
type waiter interface {
	Wait()
}

// EmailChannel simulates email delivery by logging the intent.
type EmailChannel struct {
	from   string
	logger *zap.Logger
}

// DefaultEmailFrom is the sender used when none is configured.
const DefaultEmailFrom = "noreply@example.com"

// NewEmailChannel builds the simulated email channel. A blank sender falls
// back to DefaultEmailFrom.
func NewEmailChannel(from string, logger *zap.Logger) *EmailChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(from) == "" {
		from = DefaultEmailFrom
	}
	return &EmailChannel{from: from, logger: logger.Named("email")}
}

// Name implements Channel.
func (c *EmailChannel) Name() string { return "email" }

// Deliver implements Channel. Sending is simulated by a log line and always
// succeeds.
func (c *EmailChannel) Deliver(_ context.Context, msg Message) (DeliveryStatus, error) {
	c.logger.Info("sendEmailNotification",
		zap.String("from", c.from),
		zap.String("to", msg.RecipientEmail),
		zap.String("kind", string(msg.Kind)),
		zap.String("subject", msg.Title))
	return StatusDelivered, nil
}

// PushSender shows a push notification once permission is granted.
type PushSender interface {
	Show(ctx context.Context, msg Message) error
}

// LogSender logs instead of showing anything.
type LogSender struct {
	Logger *zap.Logger
}

// Show implements PushSender.
func (s LogSender) Show(_ context.Context, msg Message) error {
	if s.Logger != nil {
		s.Logger.Info("showPushNotification",
			zap.String("to", msg.RecipientEmail),
			zap.String("title", msg.Title))
	}
	return nil
}

// WebhookSender posts the message as JSON to a URL.
type WebhookSender struct {
	URL string
}

// Show implements PushSender.
func (s WebhookSender) Show(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	agent := fiber.Post(s.URL)
	agent.JSON(msg)
	agent.Timeout(webhookTimeout)
	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("push webhook: %w", errors.Join(errs...))
	}
	if code >= 300 {
		return fmt.Errorf("push webhook: unexpected status %d", code)
	}
	return nil
}

// PushChannel delivers through a PushSender subject to the host permission.
// With an undecided permission it asks in the background and returns
// StatusPending; the caller never learns the outcome.
type PushChannel struct {
	host    push.Host
	sender  PushSender
	metrics *observability.Metrics
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewPushChannel builds the push channel.
func NewPushChannel(host push.Host, sender PushSender, metrics *observability.Metrics, logger *zap.Logger) *PushChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = LogSender{Logger: logger}
	}
	return &PushChannel{host: host, sender: sender, metrics: metrics, logger: logger.Named("push")}
}

// Name implements Channel.
func (c *PushChannel) Name() string { return "push" }

// Deliver implements Channel.
func (c *PushChannel) Deliver(ctx context.Context, msg Message) (DeliveryStatus, error) {
	switch c.host.State(ctx) {
	case push.Granted:
		if err := c.sender.Show(ctx, msg); err != nil {
			return StatusFailed, err
		}
		return StatusDelivered, nil
	case push.Denied:
		return StatusSkipped, nil
	}

	bg := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.deliverAfterPrompt(bg, msg)
	}()
	return StatusPending, nil
}

func (c *PushChannel) deliverAfterPrompt(ctx context.Context, msg Message) {
	state, err := c.host.Request(ctx)
	if err != nil {
		c.logger.Warn("push permission request failed", zap.Error(err))
		c.metrics.RecordDelivery(c.Name(), string(StatusFailed))
		return
	}
	if state != push.Granted {
		c.logger.Debug("push not delivered", zap.String("permission", string(state)))
		c.metrics.RecordDelivery(c.Name(), string(StatusSkipped))
		return
	}
	if err := c.sender.Show(ctx, msg); err != nil {
		c.logger.Warn("push delivery failed", zap.String("notification_id", msg.NotificationID), zap.Error(err))
		c.metrics.RecordDelivery(c.Name(), string(StatusFailed))
		return
	}
	c.metrics.RecordDelivery(c.Name(), string(StatusDelivered))
}

// Wait blocks until background deliveries finish.
func (c *PushChannel) Wait() {
	c.wg.Wait()
}
