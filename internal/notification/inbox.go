package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/spec-kit/attendance-hub/internal/domain"
	"github.com/spec-kit/attendance-hub/internal/events"
	"github.com/spec-kit/attendance-hub/internal/kv"
)

const (
	KeyNotifications = "notifications"
	KeyUnreadCount   = "unreadNotificationsCount"
	KeyPreferences   = "notificationPreferences"
)

// ErrNotFound indicates no notification has the requested id.
var ErrNotFound = errors.New("notification not found")

// inbox is the raw notifications list. Entries are kept as raw JSON so
// that rewriting the list preserves entries this build cannot decode.
type inbox struct {
	entries []json.RawMessage
}

type entryHeader struct {
	ID     string `json:"id"`
	IsRead bool   `json:"isRead"`
}

func readInbox(ctx context.Context, r kv.Reader, logger *zap.Logger) inbox {
	var entries []json.RawMessage
	if err := kv.GetJSON(ctx, r, KeyNotifications, &entries); err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			logger.Warn("notifications list unreadable, treating as empty", zap.Error(err))
		}
		return inbox{}
	}
	return inbox{entries: entries}
}

func (b inbox) header(i int) (entryHeader, bool) {
	var h entryHeader
	if err := json.Unmarshal(b.entries[i], &h); err != nil {
		return entryHeader{}, false
	}
	return h, true
}

func (b inbox) index(id string) int {
	for i := range b.entries {
		if h, ok := b.header(i); ok && h.ID == id {
			return i
		}
	}
	return -1
}

func (b inbox) unread() int {
	n := 0
	for i := range b.entries {
		if h, ok := b.header(i); ok && !h.IsRead {
			n++
		}
	}
	return n
}

func (b inbox) records(logger *zap.Logger) []domain.NotificationRecord {
	out := make([]domain.NotificationRecord, 0, len(b.entries))
	for _, raw := range b.entries {
		var rec domain.NotificationRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			logger.Debug("skipping malformed notification", zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (b *inbox) prepend(rec domain.NotificationRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b.entries = append([]json.RawMessage{raw}, b.entries...)
	return nil
}

// markRead sets isRead on entry i, keeping fields it does not model.
func (b *inbox) markRead(i int) (bool, error) {
	var fields map[string]any
	if err := json.Unmarshal(b.entries[i], &fields); err != nil {
		return false, nil
	}
	if read, _ := fields["isRead"].(bool); read {
		return false, nil
	}
	fields["isRead"] = true
	raw, err := json.Marshal(fields)
	if err != nil {
		return false, err
	}
	b.entries[i] = raw
	return true, nil
}

func (b *inbox) remove(i int) {
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
}

// save writes the list and the recomputed counter.
func (b inbox) save(ctx context.Context, w kv.Writer) (int, error) {
	entries := b.entries
	if entries == nil {
		entries = []json.RawMessage{}
	}
	if err := kv.SetJSON(ctx, w, KeyNotifications, entries); err != nil {
		return 0, fmt.Errorf("write %s: %w", KeyNotifications, err)
	}
	count := b.unread()
	if err := w.Set(ctx, KeyUnreadCount, []byte(strconv.Itoa(count))); err != nil {
		return 0, fmt.Errorf("write %s: %w", KeyUnreadCount, err)
	}
	return count, nil
}

// mutate runs fn against the inbox in one transaction, saves the result
// and broadcasts the unread counter.
func (d *Dispatcher) mutate(ctx context.Context, fn func(b *inbox) error) (int, error) {
	var count int
	err := d.kv.Update(ctx, func(tx kv.Tx) error {
		b := readInbox(ctx, tx, d.logger)
		if err := fn(&b); err != nil {
			return err
		}
		var err error
		count, err = b.save(ctx, tx)
		return err
	})
	if err != nil {
		return 0, err
	}
	d.publishUnread(ctx, count)
	return count, nil
}

// List returns the stored notifications, newest first. Entries that
// cannot be decoded are left out.
func (d *Dispatcher) List(ctx context.Context) []domain.NotificationRecord {
	return readInbox(ctx, d.kv, d.logger).records(d.logger)
}

// UnreadCount returns the stored counter, recomputing it from the list
// when the counter is missing or unreadable.
func (d *Dispatcher) UnreadCount(ctx context.Context) int {
	raw, err := d.kv.Get(ctx, KeyUnreadCount)
	if err == nil {
		if n, convErr := strconv.Atoi(string(raw)); convErr == nil && n >= 0 {
			return n
		}
		d.logger.Warn("unread counter unreadable, recomputing", zap.ByteString("value", raw))
	} else if !errors.Is(err, kv.ErrNotFound) {
		d.logger.Warn("read unread counter", zap.Error(err))
	}
	return readInbox(ctx, d.kv, d.logger).unread()
}

// MarkRead flags one notification as read.
func (d *Dispatcher) MarkRead(ctx context.Context, id string) error {
	_, err := d.mutate(ctx, func(b *inbox) error {
		i := b.index(id)
		if i < 0 {
			return ErrNotFound
		}
		_, err := b.markRead(i)
		return err
	})
	return err
}

// MarkAllRead flags every notification as read.
func (d *Dispatcher) MarkAllRead(ctx context.Context) error {
	_, err := d.mutate(ctx, func(b *inbox) error {
		for i := range b.entries {
			if _, err := b.markRead(i); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

// Delete removes one notification.
func (d *Dispatcher) Delete(ctx context.Context, id string) error {
	_, err := d.mutate(ctx, func(b *inbox) error {
		i := b.index(id)
		if i < 0 {
			return ErrNotFound
		}
		b.remove(i)
		return nil
	})
	return err
}

// Clear removes every notification.
func (d *Dispatcher) Clear(ctx context.Context) error {
	_, err := d.mutate(ctx, func(b *inbox) error {
		b.entries = nil
		return nil
	})
	return err
}

// Preferences returns the stored preferences. Missing flags, a missing
// key and an unreadable value all resolve to enabled.
func (d *Dispatcher) Preferences(ctx context.Context) domain.NotificationPreferences {
	prefs := domain.DefaultPreferences()
	if err := kv.GetJSON(ctx, d.kv, KeyPreferences, &prefs); err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			d.logger.Warn("preferences unreadable, using defaults", zap.Error(err))
		}
		return domain.DefaultPreferences()
	}
	return prefs
}

// SavePreferences replaces the stored preferences.
func (d *Dispatcher) SavePreferences(ctx context.Context, prefs domain.NotificationPreferences) error {
	if err := kv.SetJSON(ctx, d.kv, KeyPreferences, prefs); err != nil {
		d.logger.Error("save preferences failed", zap.Error(err))
		return fmt.Errorf("write %s: %w", KeyPreferences, err)
	}
	return nil
}

// SubscribeUnread registers fn for unread counter broadcasts.
func (d *Dispatcher) SubscribeUnread(fn func(count int)) (unsubscribe func()) {
	return d.bus.Subscribe(events.EventNotificationsChanged, func(_ context.Context, e events.Event) error {
		if payload, ok := e.Payload.(events.NotificationsChangedPayload); ok {
			fn(payload.UnreadCount)
		}
		return nil
	})
}

func (d *Dispatcher) publishUnread(ctx context.Context, count int) {
	err := d.bus.Publish(ctx, events.Event{
		Type:      events.EventNotificationsChanged,
		Timestamp: d.clock().UTC(),
		Payload:   events.NotificationsChangedPayload{UnreadCount: count},
	})
	if err != nil {
		d.logger.Warn("unread subscriber failed", zap.Error(err))
	}
}
