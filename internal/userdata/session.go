package userdata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/attendance-hub/internal/domain"
	"github.com/spec-kit/attendance-hub/internal/events"
	"github.com/spec-kit/attendance-hub/internal/kv"
)

var (
	// ErrUserExists indicates the email is already registered in the users list.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound indicates the email is not in the users list.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidImage indicates a profile image that is not an image data URL.
	ErrInvalidImage = errors.New("profile image must be an image data URL")
)

// StartSession makes rec the session baseline. Credentials are not copied.
func (s *Store) StartSession(ctx context.Context, rec domain.Record) error {
	if strings.TrimSpace(rec.Email()) == "" {
		return fmt.Errorf("session record requires an email")
	}
	baseline := rec.Clone()
	delete(baseline, domain.FieldPasswordHash)
	delete(baseline, "password")
	if err := kv.SetJSON(ctx, s.kv, KeyCurrentUser, baseline); err != nil {
		return fmt.Errorf("write %s: %w", KeyCurrentUser, err)
	}
	s.logger.Info("session started", zap.String("email", rec.Email()))
	return nil
}

// EndSession removes the session baseline.
func (s *Store) EndSession(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyCurrentUser); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("delete %s: %w", KeyCurrentUser, err)
	}
	return nil
}

// FindUser returns the users-list record for email, credentials included.
func (s *Store) FindUser(ctx context.Context, email string) (domain.Record, error) {
	users := readList(ctx, s.kv, KeyUsers, s.logger)
	idx, rec := users.find(email, s.logger)
	if idx < 0 {
		return nil, ErrUserNotFound
	}
	return rec, nil
}

// RegisterUser appends rec to the users list unless its email is taken.
func (s *Store) RegisterUser(ctx context.Context, rec domain.Record) error {
	email := rec.Email()
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("user record requires an email")
	}
	return s.kv.Update(ctx, func(tx kv.Tx) error {
		users := readList(ctx, tx, KeyUsers, s.logger)
		if idx, _ := users.find(email, s.logger); idx >= 0 {
			return ErrUserExists
		}
		if err := users.put(-1, rec); err != nil {
			return err
		}
		return users.save(ctx, tx)
	})
}

// PutEmployee inserts or replaces the employee record for rec's email in
// the company namespace.
func (s *Store) PutEmployee(ctx context.Context, companyID string, rec domain.Record) error {
	email := rec.Email()
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("employee record requires an email")
	}
	key := EmployeesKey(companyID, email)
	return s.kv.Update(ctx, func(tx kv.Tx) error {
		list := readList(ctx, tx, key, s.logger)
		idx, _ := list.find(email, s.logger)
		if err := list.put(idx, rec); err != nil {
			return err
		}
		return list.save(ctx, tx)
	})
}

// ProfileImage returns the stored avatar data URL for email.
func (s *Store) ProfileImage(ctx context.Context, email string) (string, bool) {
	raw, err := s.kv.Get(ctx, ProfileImageKey(email))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Warn("unable to read profile image", zap.String("email", email), zap.Error(err))
		}
		return "", false
	}
	return string(raw), true
}

// SetProfileImage stores the avatar for email and notifies image
// subscribers. An empty dataURL removes the image.
func (s *Store) SetProfileImage(ctx context.Context, email, dataURL string) error {
	key := ProfileImageKey(email)
	if dataURL == "" {
		if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, kv.ErrNotFound) {
			return err
		}
	} else {
		if !strings.HasPrefix(dataURL, "data:image/") {
			return ErrInvalidImage
		}
		if err := s.kv.Set(ctx, key, []byte(dataURL)); err != nil {
			return err
		}
	}
	s.publish(ctx, events.EventProfileImageChanged, events.ProfileImageChangedPayload{
		UserEmail:    email,
		ImageDataURL: dataURL,
	})
	return nil
}

// SubscribeProfileImage registers fn for avatar changes of any user.
func (s *Store) SubscribeProfileImage(fn func(events.ProfileImageChangedPayload)) (unsubscribe func()) {
	return s.dispatcher.Subscribe(events.EventProfileImageChanged, func(_ context.Context, e events.Event) error {
		if payload, ok := e.Payload.(events.ProfileImageChangedPayload); ok {
			fn(payload)
		}
		return nil
	})
}
