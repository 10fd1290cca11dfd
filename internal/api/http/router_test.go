package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/attendance-hub/internal/api/http/handlers"
	"github.com/spec-kit/attendance-hub/internal/auth"
	"github.com/spec-kit/attendance-hub/internal/config"
	"github.com/spec-kit/attendance-hub/internal/domain"
	"github.com/spec-kit/attendance-hub/internal/events"
	"github.com/spec-kit/attendance-hub/internal/kv"
	"github.com/spec-kit/attendance-hub/internal/notification"
	"github.com/spec-kit/attendance-hub/internal/observability"
	"github.com/spec-kit/attendance-hub/internal/push"
	"github.com/spec-kit/attendance-hub/internal/service"
	"github.com/spec-kit/attendance-hub/internal/userdata"
)

func newTestApp(t *testing.T) (*fiber.App, *service.AuthService) {
	t.Helper()
	store := kv.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Config{
		App:  config.AppConfig{Name: "attendance-hub", Version: "test", RequestTimeoutSeconds: 5},
		Auth: config.AuthConfig{JWTSecret: "test", AccessTokenTTLMinutes: 5, BcryptCost: bcrypt.MinCost},
	}
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	bus := events.NewInMemoryDispatcher()

	profiles := userdata.NewStore(store, bus, logger)
	host := push.NewStoredHost(store, push.Default, push.FixedAnswer(push.Granted), logger)
	dispatcher := notification.NewDispatcher(notification.Dependencies{
		Store:       store,
		Events:      bus,
		Permissions: host,
		Email:       notification.NewEmailChannel("noreply@example.com", logger),
		Metrics:     metrics,
		Logger:      logger,
	})
	authSvc := service.NewAuthService(cfg, service.AuthDependencies{Profiles: profiles, Logger: logger})

	app := NewApp(cfg.App, logger, metrics, RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, "memory", store, metrics),
		Users:          handlers.NewUsersHandler(authSvc),
		Profile:        handlers.NewProfileHandler(profiles),
		Notifications:  handlers.NewNotificationsHandler(dispatcher, service.NewNotificationService(dispatcher, profiles, logger)),
		AuthMiddleware: auth.NewAuthMiddleware(authSvc.TokenManager()),
	})
	return app, authSvc
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func call(t *testing.T, app *fiber.App, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &env)
	}
	return resp.StatusCode, env
}

func register(t *testing.T, app *fiber.App, name, email string) string {
	t.Helper()
	status, env := call(t, app, http.MethodPost, "/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "motdepasse", "companyId": "co1",
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d %+v", email, status, env.Error)
	}
	var data struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Auth.Token == "" {
		t.Fatalf("register %s: no token (%v)", email, err)
	}
	return data.Auth.Token
}

func TestHealthAndMetrics(t *testing.T) {
	app, _ := newTestApp(t)
	if status, _ := call(t, app, http.MethodGet, "/health/live", "", nil); status != http.StatusOK {
		t.Fatalf("live: %d", status)
	}
	if status, _ := call(t, app, http.MethodGet, "/health/ready", "", nil); status != http.StatusOK {
		t.Fatalf("ready: %d", status)
	}
	status, env := call(t, app, http.MethodGet, "/nowhere", "", nil)
	if status != http.StatusNotFound || env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %d %+v", status, env.Error)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	var snap observability.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if len(snap.Requests) == 0 || snap.Errors["/nowhere|GET|NOT_FOUND"] != 1 {
		t.Fatalf("expected requests and the 404 counted, got %+v", snap)
	}
}

func TestProfileFlow(t *testing.T) {
	app, _ := newTestApp(t)
	token := register(t, app, "Awa Diop", "awa@x.com")

	status, env := call(t, app, http.MethodGet, "/profile", token, nil)
	if status != http.StatusOK {
		t.Fatalf("get profile: %d", status)
	}
	var profile map[string]any
	_ = json.Unmarshal(env.Data, &profile)
	if profile["nomComplet"] != "Awa Diop" || profile["email"] != "awa@x.com" {
		t.Fatalf("unexpected profile %v", profile)
	}

	status, env = call(t, app, http.MethodPatch, "/profile", token, map[string]any{"phone": "0600000000", "workLocation": "Dakar"})
	if status != http.StatusOK {
		t.Fatalf("patch profile: %d %+v", status, env.Error)
	}
	_ = json.Unmarshal(env.Data, &profile)
	if profile["telephone"] != "0600000000" || profile["phone"] != "0600000000" || profile["lieuDeTravail"] != "Dakar" {
		t.Fatalf("unexpected patched profile %v", profile)
	}

	if status, _ := call(t, app, http.MethodPatch, "/profile", token, map[string]any{"role": "admin"}); status != http.StatusForbidden {
		t.Fatalf("expected employee role change forbidden, got %d", status)
	}

	if status, _ := call(t, app, http.MethodGet, "/profile/image", token, nil); status != http.StatusNotFound {
		t.Fatalf("expected no image, got %d", status)
	}
	if status, env := call(t, app, http.MethodPut, "/profile/image", token, map[string]string{"image": "https://x"}); status != http.StatusBadRequest {
		t.Fatalf("expected invalid image rejected, got %d %+v", status, env.Error)
	}
	if status, _ := call(t, app, http.MethodPut, "/profile/image", token, map[string]string{"image": "data:image/png;base64,AAAA"}); status != http.StatusOK {
		t.Fatalf("put image: %d", status)
	}
	if status, _ := call(t, app, http.MethodGet, "/profile/image", token, nil); status != http.StatusOK {
		t.Fatalf("get image: %d", status)
	}

	if status, _ := call(t, app, http.MethodGet, "/profile", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", status)
	}

	if status, _ := call(t, app, http.MethodPost, "/auth/logout", token, nil); status != http.StatusNoContent {
		t.Fatalf("logout: %d", status)
	}
	status, env = call(t, app, http.MethodPatch, "/profile", token, map[string]any{"phone": "1"})
	if status != http.StatusConflict || env.Error == nil || env.Error.Code != "NO_SESSION" {
		t.Fatalf("expected NO_SESSION, got %d %+v", status, env.Error)
	}
}

func TestNotificationFlow(t *testing.T) {
	app, authSvc := newTestApp(t)
	employee := register(t, app, "Awa", "awa@x.com")

	status, _ := call(t, app, http.MethodPost, "/notifications", employee, map[string]any{"type": "system-update", "message": "v2"})
	if status != http.StatusForbidden {
		t.Fatalf("expected employee forbidden, got %d", status)
	}

	seeded, err := authSvc.Register(context.Background(), service.RegisterInput{
		Name: "Moussa", Email: "moussa@x.com", Password: "motdepasse", Role: domain.RoleManager, CompanyID: "co1",
	})
	if err != nil {
		t.Fatalf("seed manager: %v", err)
	}
	manager := seeded.Token
	if status, _ := call(t, app, http.MethodGet, "/profile", employee, nil); status != http.StatusForbidden {
		t.Fatalf("expected session owned by manager, got %d", status)
	}

	status, env := call(t, app, http.MethodPost, "/notifications", manager, map[string]any{
		"type": "report-ready", "to": "awa@x.com", "name": "Awa", "reportName": "Mars",
	})
	if status != http.StatusCreated {
		t.Fatalf("send: %d %+v", status, env.Error)
	}
	var sent notification.SendResult
	_ = json.Unmarshal(env.Data, &sent)
	if !sent.Sent || sent.Notification.Title != "Nouveau rapport disponible" {
		t.Fatalf("unexpected send result %+v", sent)
	}

	status, env = call(t, app, http.MethodPut, "/notifications/preferences", manager, map[string]bool{"reportAlerts": false})
	if status != http.StatusOK {
		t.Fatalf("save preferences: %d", status)
	}
	status, env = call(t, app, http.MethodPost, "/notifications", manager, map[string]any{"type": "report-ready", "reportName": "Avril"})
	if status != http.StatusOK {
		t.Fatalf("expected gated send to return 200, got %d", status)
	}
	_ = json.Unmarshal(env.Data, &sent)
	if sent.Sent {
		t.Fatal("expected gated notification not sent")
	}

	status, env = call(t, app, http.MethodGet, "/notifications", employee, nil)
	if status != http.StatusOK {
		t.Fatalf("list: %d", status)
	}
	var inbox struct {
		Notifications []struct {
			ID string `json:"id"`
		} `json:"notifications"`
		UnreadCount int `json:"unreadCount"`
	}
	_ = json.Unmarshal(env.Data, &inbox)
	if len(inbox.Notifications) != 1 || inbox.UnreadCount != 1 {
		t.Fatalf("unexpected inbox %+v", inbox)
	}

	id := inbox.Notifications[0].ID
	status, env = call(t, app, http.MethodPost, "/notifications/"+id+"/read", employee, nil)
	if status != http.StatusOK {
		t.Fatalf("mark read: %d", status)
	}
	var count struct {
		UnreadCount int `json:"unreadCount"`
	}
	_ = json.Unmarshal(env.Data, &count)
	if count.UnreadCount != 0 {
		t.Fatalf("expected 0 unread, got %d", count.UnreadCount)
	}

	if status, env := call(t, app, http.MethodPost, "/notifications/missing/read", employee, nil); status != http.StatusNotFound {
		t.Fatalf("expected not found, got %d %+v", status, env.Error)
	}

	status, env = call(t, app, http.MethodPost, "/notifications/push-permission", employee, nil)
	var perm struct {
		Granted bool `json:"granted"`
	}
	_ = json.Unmarshal(env.Data, &perm)
	if status != http.StatusOK || !perm.Granted {
		t.Fatalf("expected granted permission, got %d %+v", status, perm)
	}

	if status, _ := call(t, app, http.MethodDelete, "/notifications/"+id, employee, nil); status != http.StatusNoContent {
		t.Fatalf("delete: %d", status)
	}
	if status, _ := call(t, app, http.MethodDelete, "/notifications", employee, nil); status != http.StatusNoContent {
		t.Fatalf("clear: %d", status)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	app, _ := newTestApp(t)
	register(t, app, "Awa", "awa@x.com")

	status, env := call(t, app, http.MethodPost, "/auth/login", "", map[string]string{"email": "awa@x.com", "password": "nope-nope"})
	if status != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("expected unauthorized, got %d %+v", status, env.Error)
	}
	status, _ = call(t, app, http.MethodPost, "/auth/login", "", map[string]string{"email": "awa@x.com", "password": "motdepasse"})
	if status != http.StatusOK {
		t.Fatalf("login: %d", status)
	}
	status, env = call(t, app, http.MethodPost, "/auth/register", "", map[string]string{"name": "Awa", "email": "awa@x.com", "password": "motdepasse"})
	if status != http.StatusConflict {
		t.Fatalf("expected conflict, got %d %+v", status, env.Error)
	}
}

func TestRegisterIgnoresRequestedRole(t *testing.T) {
	app, _ := newTestApp(t)
	status, env := call(t, app, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Eve", "email": "eve@x.com", "password": "motdepasse", "role": "admin",
	})
	if status != http.StatusCreated {
		t.Fatalf("register: %d %+v", status, env.Error)
	}
	var data struct {
		User struct {
			Role string `json:"role"`
		} `json:"user"`
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.User.Role != string(domain.RoleEmployee) {
		t.Fatalf("expected employee role, got %q", data.User.Role)
	}
	status, _ = call(t, app, http.MethodPost, "/notifications", data.Auth.Token, map[string]any{"type": "system-update", "message": "v2"})
	if status != http.StatusForbidden {
		t.Fatalf("expected self-registered user forbidden, got %d", status)
	}
}
