package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/attendance-hub/internal/auth"
	"github.com/spec-kit/attendance-hub/internal/config"
	"github.com/spec-kit/attendance-hub/internal/domain"
	"github.com/spec-kit/attendance-hub/internal/kv"
	"github.com/spec-kit/attendance-hub/internal/notification"
	"github.com/spec-kit/attendance-hub/internal/userdata"
)

func newServices(t *testing.T) (*AuthService, *NotificationService, *userdata.Store, *notification.Dispatcher) {
	t.Helper()
	store := kv.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	var cfg config.Config
	cfg.Auth = config.AuthConfig{JWTSecret: "test", AccessTokenTTLMinutes: 5, BcryptCost: bcrypt.MinCost}

	profiles := userdata.NewStore(store, nil, zap.NewNop())
	dispatcher := notification.NewDispatcher(notification.Dependencies{Store: store})
	authSvc := NewAuthService(cfg, AuthDependencies{Profiles: profiles})
	return authSvc, NewNotificationService(dispatcher, profiles, nil), profiles, dispatcher
}

func TestRegisterLoginLogout(t *testing.T) {
	authSvc, _, profiles, _ := newServices(t)
	ctx := context.Background()

	res, err := authSvc.Register(ctx, RegisterInput{
		Name: "Awa Diop", Email: "Awa@X.com", Password: "motdepasse", CompanyID: "co1", Department: "RH",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.Profile.Email != "awa@x.com" || res.Profile.FullName != "Awa Diop" || res.Profile.Role != "employee" {
		t.Fatalf("unexpected profile %+v", res.Profile)
	}
	claims, err := authSvc.TokenManager().ParseToken(res.Token)
	if err != nil || claims.Email() != "awa@x.com" {
		t.Fatalf("unexpected token claims %+v (%v)", claims, err)
	}

	if _, err := authSvc.Register(ctx, RegisterInput{Name: "Dup", Email: "awa@x.com", Password: "motdepasse"}); !errors.Is(err, userdata.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	if err := authSvc.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := profiles.Get(ctx); ok {
		t.Fatal("expected no session after logout")
	}

	if _, err := authSvc.Login(ctx, "awa@x.com", "wrong-password"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := authSvc.Login(ctx, "nobody@x.com", "motdepasse"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}

	res, err = authSvc.Login(ctx, "awa@x.com", "motdepasse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Profile.Department != "RH" || res.Profile.CompanyID != "co1" {
		t.Fatalf("expected merged profile, got %+v", res.Profile)
	}
	if _, hidden := res.Profile.Extra[domain.FieldPasswordHash]; hidden {
		t.Fatal("password hash leaked into profile")
	}
}

func TestLoginMatchesRegisteredEmailCaseInsensitively(t *testing.T) {
	authSvc, _, _, _ := newServices(t)
	ctx := context.Background()

	if _, err := authSvc.Register(ctx, RegisterInput{Name: "Awa", Email: "Awa@X.com", Password: "motdepasse"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, email := range []string{"Awa@X.com", " AWA@x.COM ", "awa@x.com"} {
		res, err := authSvc.Login(ctx, email, "motdepasse")
		if err != nil {
			t.Fatalf("login as %q: expected success, got %v", email, err)
		}
		if res.Profile.Email != "awa@x.com" {
			t.Fatalf("expected awa@x.com, got %q", res.Profile.Email)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	authSvc, _, _, _ := newServices(t)
	if _, err := authSvc.Register(context.Background(), RegisterInput{Email: "a@x.com", Password: "motdepasse"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := authSvc.Register(context.Background(), RegisterInput{Name: "A", Email: "a@x.com", Password: "court"}); !errors.Is(err, auth.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestNotificationServiceDefaultsToSessionUser(t *testing.T) {
	authSvc, notifySvc, _, dispatcher := newServices(t)
	ctx := context.Background()

	if err := notifySvc.RemindCurrentUser(ctx); !errors.Is(err, userdata.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	if _, err := authSvc.Register(ctx, RegisterInput{Name: "Awa", Email: "awa@x.com", Password: "motdepasse"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := notifySvc.RemindCurrentUser(ctx); err != nil {
		t.Fatalf("remind: %v", err)
	}
	list := dispatcher.List(ctx)
	if len(list) != 1 || list[0].Type != domain.KindAttendanceReminder {
		t.Fatalf("expected reminder stored, got %+v", list)
	}

	res, err := notifySvc.Send(ctx, SendRequest{Kind: domain.KindReportReady, RecipientEmail: "other@x.com", Payload: notification.Payload{ReportName: "Mars"}})
	if err != nil || !res.Sent {
		t.Fatalf("expected explicit recipient sent, got %+v (%v)", res, err)
	}

	if _, err := notifySvc.Send(ctx, SendRequest{Kind: "party"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
