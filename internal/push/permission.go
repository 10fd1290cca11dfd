// Package push models the host's notification permission: a three-valued
// state and an explicit asynchronous request.
package push

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/attendance-hub/internal/kv"
)

// KeyPermission stores the decided permission state.
const KeyPermission = "pushPermission"

// PermissionState is the host permission for push notifications.
type PermissionState string

const (
	Granted PermissionState = "granted"
	Denied  PermissionState = "denied"
	// Default means the user has not decided yet.
	Default PermissionState = "default"
)

// Decided reports whether the state is final.
func (s PermissionState) Decided() bool {
	return s == Granted || s == Denied
}

// ParsePermissionState parses granted, denied or default.
func ParsePermissionState(s string) (PermissionState, error) {
	switch PermissionState(strings.ToLower(strings.TrimSpace(s))) {
	case Granted:
		return Granted, nil
	case Denied:
		return Denied, nil
	case Default, "":
		return Default, nil
	}
	return "", fmt.Errorf("invalid permission state %q", s)
}

// Host exposes the permission state and the prompt.
type Host interface {
	State(ctx context.Context) PermissionState
	Request(ctx context.Context) (PermissionState, error)
}

// Prompter asks the user. Returning Default means the prompt was dismissed.
type Prompter interface {
	Prompt(ctx context.Context) (PermissionState, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context) (PermissionState, error)

// Prompt calls f.
func (f PrompterFunc) Prompt(ctx context.Context) (PermissionState, error) {
	return f(ctx)
}

// FixedAnswer always answers with state.
func FixedAnswer(state PermissionState) Prompter {
	return PrompterFunc(func(ctx context.Context) (PermissionState, error) {
		if err := ctx.Err(); err != nil {
			return Default, err
		}
		return state, nil
	})
}

// StoredHost keeps the decided state in the key-value store so every
// process sharing the store sees the same answer.
type StoredHost struct {
	mu       sync.Mutex
	kv       kv.Store
	initial  PermissionState
	prompter Prompter
	logger   *zap.Logger
}

// NewStoredHost builds a host whose undecided state is initial.
func NewStoredHost(store kv.Store, initial PermissionState, prompter Prompter, logger *zap.Logger) *StoredHost {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prompter == nil {
		prompter = FixedAnswer(Default)
	}
	return &StoredHost{
		kv:       store,
		initial:  initial,
		prompter: prompter,
		logger:   logger.Named("push"),
	}
}

// State returns the stored decision, or the initial state when none exists.
func (h *StoredHost) State(ctx context.Context) PermissionState {
	raw, err := h.kv.Get(ctx, KeyPermission)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			h.logger.Warn("unable to read push permission", zap.Error(err))
		}
		return h.initial
	}
	state, err := ParsePermissionState(string(raw))
	if err != nil {
		h.logger.Warn("ignoring malformed push permission", zap.Error(err))
		return h.initial
	}
	if state == Default {
		return h.initial
	}
	return state
}

// Request prompts when the state is undecided and stores a decided answer.
// Decided states are returned without prompting.
func (h *StoredHost) Request(ctx context.Context) (PermissionState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if state := h.State(ctx); state.Decided() {
		return state, nil
	}
	answer, err := h.prompter.Prompt(ctx)
	if err != nil {
		return Default, fmt.Errorf("permission prompt: %w", err)
	}
	if !answer.Decided() {
		return Default, nil
	}
	if err := h.kv.Set(ctx, KeyPermission, []byte(answer)); err != nil {
		return answer, fmt.Errorf("store push permission: %w", err)
	}
	h.logger.Info("push permission decided", zap.String("state", string(answer)))
	return answer, nil
}
