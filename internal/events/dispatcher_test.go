package events

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestPublishRegistrationOrder(t *testing.T) {
	d := NewInMemoryDispatcher()
	var got []string
	d.Subscribe(EventUserDataChanged, func(context.Context, Event) error {
		got = append(got, "first")
		return nil
	})
	d.Subscribe(EventUserDataChanged, func(context.Context, Event) error {
		got = append(got, "second")
		return nil
	})
	d.Subscribe(EventNotificationsChanged, func(context.Context, Event) error {
		got = append(got, "other")
		return nil
	})

	if err := d.Publish(context.Background(), Event{Type: EventUserDataChanged}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if want := []string{"first", "second"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	d := NewInMemoryDispatcher()
	calls := 0
	unsubscribe := d.Subscribe(EventUserDataChanged, func(context.Context, Event) error {
		calls++
		return nil
	})
	keep := 0
	d.Subscribe(EventUserDataChanged, func(context.Context, Event) error {
		keep++
		return nil
	})

	unsubscribe()
	unsubscribe()

	_ = d.Publish(context.Background(), Event{Type: EventUserDataChanged})
	if calls != 0 {
		t.Fatalf("expected removed handler not called, got %d", calls)
	}
	if keep != 1 {
		t.Fatalf("expected remaining handler called once, got %d", keep)
	}
}

func TestPublishContinuesAfterHandlerError(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("boom")
	reached := false
	d.Subscribe(EventNotificationsChanged, func(context.Context, Event) error { return boom })
	d.Subscribe(EventNotificationsChanged, func(context.Context, Event) error {
		reached = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventNotificationsChanged})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined handler error, got %v", err)
	}
	if !reached {
		t.Fatal("expected second handler to run")
	}
}
