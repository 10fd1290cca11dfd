package notification

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/attendance-hub/internal/domain"
	"github.com/spec-kit/attendance-hub/internal/kv"
	"github.com/spec-kit/attendance-hub/internal/observability"
	"github.com/spec-kit/attendance-hub/internal/push"
)

type recordingSender struct {
	mu    sync.Mutex
	shown []Message
	err   error
}

func (s *recordingSender) Show(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, msg)
	return s.err
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shown)
}

func newPushChannel(t *testing.T, initial push.PermissionState, answer push.PermissionState) (*PushChannel, *recordingSender, kv.Store, *observability.Metrics) {
	t.Helper()
	store := kv.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	sender := &recordingSender{}
	metrics := observability.NewMetrics()
	host := push.NewStoredHost(store, initial, push.FixedAnswer(answer), zap.NewNop())
	return NewPushChannel(host, sender, metrics, zap.NewNop()), sender, store, metrics
}

func TestPushChannelGranted(t *testing.T) {
	ch, sender, _, _ := newPushChannel(t, push.Granted, push.Denied)
	status, err := ch.Deliver(context.Background(), Message{Title: "t"})
	if err != nil || status != StatusDelivered {
		t.Fatalf("expected delivered, got %s (%v)", status, err)
	}
	if sender.count() != 1 {
		t.Fatalf("expected one push, got %d", sender.count())
	}
}

func TestPushChannelGrantedSenderError(t *testing.T) {
	ch, sender, _, _ := newPushChannel(t, push.Granted, push.Denied)
	sender.err = errors.New("gone")
	if status, err := ch.Deliver(context.Background(), Message{}); err == nil || status != StatusFailed {
		t.Fatalf("expected failure, got %s (%v)", status, err)
	}
}

func TestPushChannelDenied(t *testing.T) {
	ch, sender, _, _ := newPushChannel(t, push.Denied, push.Granted)
	status, err := ch.Deliver(context.Background(), Message{})
	if err != nil || status != StatusSkipped {
		t.Fatalf("expected skipped, got %s (%v)", status, err)
	}
	ch.Wait()
	if sender.count() != 0 {
		t.Fatal("expected no push when denied")
	}
}

func TestPushChannelDefaultPromptsInBackground(t *testing.T) {
	ch, sender, store, metrics := newPushChannel(t, push.Default, push.Granted)
	ctx, cancel := context.WithCancel(context.Background())
	status, err := ch.Deliver(ctx, Message{NotificationID: "n1"})
	cancel()
	if err != nil || status != StatusPending {
		t.Fatalf("expected pending, got %s (%v)", status, err)
	}
	ch.Wait()

	if sender.count() != 1 {
		t.Fatalf("expected push after grant, got %d", sender.count())
	}
	raw, err := store.Get(context.Background(), push.KeyPermission)
	if err != nil || string(raw) != "granted" {
		t.Fatalf("expected decision stored, got %q (%v)", raw, err)
	}
	if got := metrics.Snapshot().Deliveries["push|delivered"]; got != 1 {
		t.Fatalf("expected background delivery metric, got %d", got)
	}

	if status, _ := ch.Deliver(context.Background(), Message{}); status != StatusDelivered {
		t.Fatalf("expected direct delivery once granted, got %s", status)
	}
}

func TestPushChannelDefaultDismissed(t *testing.T) {
	ch, sender, store, _ := newPushChannel(t, push.Default, push.Default)
	if status, _ := ch.Deliver(context.Background(), Message{}); status != StatusPending {
		t.Fatalf("expected pending, got %s", status)
	}
	ch.Wait()
	if sender.count() != 0 {
		t.Fatal("expected no push after dismissal")
	}
	if _, err := store.Get(context.Background(), push.KeyPermission); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected no stored decision, got %v", err)
	}
}

func TestDispatcherWaitsForPush(t *testing.T) {
	store := kv.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	sender := &recordingSender{}
	host := push.NewStoredHost(store, push.Default, push.FixedAnswer(push.Granted), nil)
	d := NewDispatcher(Dependencies{
		Store:       store,
		Permissions: host,
		Push:        NewPushChannel(host, sender, nil, nil),
	})

	res := d.Send(context.Background(), domain.KindAttendanceReminder, "a@x.com", "A", Payload{})
	if len(res.Attempts) != 1 || res.Attempts[0].Status != StatusPending {
		t.Fatalf("expected pending push, got %+v", res.Attempts)
	}
	d.Wait()
	if sender.count() != 1 || sender.shown[0].NotificationID != res.Notification.ID {
		t.Fatalf("expected push for %s, got %+v", res.Notification.ID, sender.shown)
	}
}

func TestWebhookSender(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	received := make(chan Message, 1)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Post("/push", func(c *fiber.Ctx) error {
		var msg Message
		if err := c.BodyParser(&msg); err != nil {
			return fiber.ErrBadRequest
		}
		received <- msg
		return c.SendStatus(fiber.StatusAccepted)
	})
	app.Post("/broken", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusBadGateway)
	})
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	base := "http://" + ln.Addr().String()
	if err := (WebhookSender{URL: base + "/push"}).Show(context.Background(), Message{Title: "Rappel"}); err != nil {
		t.Fatalf("show: %v", err)
	}
	select {
	case msg := <-received:
		if msg.Title != "Rappel" {
			t.Fatalf("unexpected payload %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not called")
	}

	err = (WebhookSender{URL: base + "/broken"}).Show(context.Background(), Message{})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestRender(t *testing.T) {
	cases := []struct {
		name    string
		kind    domain.NotificationKind
		who     string
		payload Payload
		title   string
		contain string
		err     error
	}{
		{"reminder", domain.KindAttendanceReminder, "Awa", Payload{}, "Rappel de pointage", "Bonjour Awa", nil},
		{"reminder anonymous", domain.KindAttendanceReminder, " ", Payload{}, "Rappel de pointage", "N'oubliez pas", nil},
		{"report", domain.KindReportReady, "", Payload{ReportName: "Février"}, "Nouveau rapport disponible", "Février", nil},
		{"report missing", domain.KindReportReady, "", Payload{}, "", "", ErrInvalidPayload},
		{"system", domain.KindSystemUpdate, "", Payload{Message: "Version 2"}, "Mise à jour du système", "Version 2", nil},
		{"system missing", domain.KindSystemUpdate, "", Payload{}, "", "", ErrInvalidPayload},
		{"weekly", domain.KindWeeklySummary, "", Payload{Summary: &WeeklySummary{PresentDays: 4, LateDays: 1, HoursWorked: 35.5}}, "Votre résumé hebdomadaire", "35.5 h", nil},
		{"weekly missing", domain.KindWeeklySummary, "", Payload{}, "", "", ErrInvalidPayload},
		{"unknown", "holiday", "", Payload{}, "", "", ErrUnknownKind},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := render(tc.kind, tc.who, tc.payload)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("expected %v, got %v", tc.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			if got.title != tc.title || !strings.Contains(got.message, tc.contain) || got.icon == "" {
				t.Fatalf("unexpected rendering %+v", got)
			}
		})
	}
}
