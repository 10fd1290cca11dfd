// Package userdata reconciles the session user's profile from the
// currentUser, users and employees namespaces and writes edits back to all
// of them.
package userdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/attendance-hub/internal/domain"
	"github.com/spec-kit/attendance-hub/internal/events"
	"github.com/spec-kit/attendance-hub/internal/kv"
)

// ErrNoSession indicates there is no currentUser baseline to read or update.
var ErrNoSession = errors.New("no active session")

// Store is the profile view over the three namespaces.
type Store struct {
	kv         kv.Store
	dispatcher events.Dispatcher
	logger     *zap.Logger
	clock      func() time.Time
}

// NewStore creates the store. A nil dispatcher gets a private one.
func NewStore(backend kv.Store, dispatcher events.Dispatcher, logger *zap.Logger) *Store {
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		kv:         backend,
		dispatcher: dispatcher,
		logger:     logger.Named("userdata"),
		clock:      time.Now,
	}
}

// Get returns the merged profile, or false when no session baseline exists.
// Read failures are logged and never returned.
func (s *Store) Get(ctx context.Context) (domain.UserProfile, bool) {
	snap, ok := loadSnapshot(ctx, s.kv, s.logger)
	if !ok {
		return domain.UserProfile{}, false
	}
	return snap.merged(), true
}

// Update writes fields through to the baseline, the users list (appending a
// record when the email is absent) and the employee list (only when the
// email is already there), in one storage transaction. Alias spellings are
// accepted; email cannot be changed. Subscribers receive the merged profile
// once the transaction commits.
func (s *Store) Update(ctx context.Context, fields map[string]any) (domain.UserProfile, error) {
	patch := domain.NormalizeFields(fields)
	delete(patch, domain.FieldEmail)
	delete(patch, domain.FieldPasswordHash)

	var updated domain.UserProfile
	err := s.kv.Update(ctx, func(tx kv.Tx) error {
		snap, ok := loadSnapshot(ctx, tx, s.logger)
		if !ok {
			return ErrNoSession
		}

		baseline := snap.baseline.Clone()
		domain.ApplyPatch(baseline, patch)
		if err := kv.SetJSON(ctx, tx, KeyCurrentUser, baseline); err != nil {
			return fmt.Errorf("write %s: %w", KeyCurrentUser, err)
		}
		snap.baseline = baseline

		user := domain.Record{domain.FieldEmail: snap.email()}
		if snap.userIdx >= 0 {
			user = snap.user.Clone()
		}
		domain.ApplyPatch(user, patch)
		if err := snap.users.put(snap.userIdx, user); err != nil {
			return fmt.Errorf("encode user record: %w", err)
		}
		if err := snap.users.save(ctx, tx); err != nil {
			return fmt.Errorf("write %s: %w", KeyUsers, err)
		}
		snap.user = user

		if snap.empIdx >= 0 {
			employee := snap.employee.Clone()
			domain.ApplyPatch(employee, patch)
			if err := snap.employees.put(snap.empIdx, employee); err != nil {
				return fmt.Errorf("encode employee record: %w", err)
			}
			if err := snap.employees.save(ctx, tx); err != nil {
				return fmt.Errorf("write %s: %w", snap.employees.key, err)
			}
			snap.employee = employee
		}

		updated = snap.merged()
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			s.logger.Error("profile update failed", zap.Error(err))
		}
		return domain.UserProfile{}, err
	}

	s.publish(ctx, events.EventUserDataChanged, events.UserDataChangedPayload{Profile: updated})
	return updated, nil
}

// Subscribe registers fn for merged profiles published by Update. Delivery
// is synchronous and in registration order.
func (s *Store) Subscribe(fn func(domain.UserProfile)) (unsubscribe func()) {
	return s.dispatcher.Subscribe(events.EventUserDataChanged, func(_ context.Context, e events.Event) error {
		if payload, ok := e.Payload.(events.UserDataChangedPayload); ok {
			fn(payload.Profile)
		}
		return nil
	})
}

func (s *Store) publish(ctx context.Context, eventType events.EventType, payload interface{}) {
	err := s.dispatcher.Publish(ctx, events.Event{
		Type:      eventType,
		Timestamp: s.clock().UTC(),
		Payload:   payload,
	})
	if err != nil {
		s.logger.Warn("subscriber failed", zap.String("event", string(eventType)), zap.Error(err))
	}
}
