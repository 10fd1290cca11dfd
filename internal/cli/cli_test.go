package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/attendance-hub/internal/domain"
	"github.com/spec-kit/attendance-hub/internal/kv"
	"github.com/spec-kit/attendance-hub/internal/push"
	"github.com/spec-kit/attendance-hub/internal/userdata"
)

func seedUser(t *testing.T, path string) {
	t.Helper()
	store, err := kv.OpenFileStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	profiles := userdata.NewStore(store, nil, zap.NewNop())
	rec := domain.Record{"email": "awa@x.com", "nomComplet": "Awa Diop", "companyId": "co1"}
	if err := profiles.RegisterUser(context.Background(), rec); err != nil {
		t.Fatalf("register: %v", err)
	}
}

func run(t *testing.T, path string, args ...string) (string, error) {
	t.Helper()
	flagDriver, flagPath = "", ""
	notifyTo, notifyName, notifyReport, notifyMessage = "", "", "", ""
	notifyPresent, notifyLate, notifyAbsent, notifyHours = 0, 0, 0, 0
	readAll = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--driver", "file", "--path", path}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func setupEnv(t *testing.T) string {
	t.Helper()
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("NOTIFY_PUSH_PERMISSION", "granted")
	t.Setenv("NOTIFY_WEBHOOK_URL", "")
	path := filepath.Join(t.TempDir(), "local-storage.json")
	seedUser(t, path)
	return path
}

func TestSessionAndProfileCommands(t *testing.T) {
	path := setupEnv(t)

	if _, err := run(t, path, "profile", "show"); !errors.Is(err, userdata.ErrNoSession) {
		t.Fatalf("expected no session, got %v", err)
	}
	if _, err := run(t, path, "session", "start", "nobody@x.com"); err == nil {
		t.Fatal("expected unknown user rejected")
	}
	out, err := run(t, path, "session", "start", " Awa@X.com ")
	if err != nil || !strings.Contains(out, "awa@x.com") {
		t.Fatalf("session start: %q (%v)", out, err)
	}

	out, err = run(t, path, "profile", "set", "phone=0600000000", "workLocation=Dakar")
	if err != nil {
		t.Fatalf("profile set: %v", err)
	}
	if !strings.Contains(out, "telephone") || !strings.Contains(out, "0600000000") || !strings.Contains(out, "lieuDeTravail") {
		t.Fatalf("unexpected profile output %q", out)
	}
	if _, err := run(t, path, "profile", "set", "novalue"); err == nil {
		t.Fatal("expected malformed assignment rejected")
	}

	out, err = run(t, path, "profile", "show")
	if err != nil || !strings.Contains(out, "Awa Diop") || !strings.Contains(out, "Dakar") {
		t.Fatalf("profile show: %q (%v)", out, err)
	}

	out, err = run(t, path, "profile", "set", "role=manager")
	if err != nil || !strings.Contains(out, "manager") {
		t.Fatalf("grant role: %q (%v)", out, err)
	}

	if _, err := run(t, path, "session", "end"); err != nil {
		t.Fatalf("session end: %v", err)
	}
	if _, err := run(t, path, "profile", "show"); !errors.Is(err, userdata.ErrNoSession) {
		t.Fatalf("expected no session after end, got %v", err)
	}
}

func TestNotificationCommands(t *testing.T) {
	path := setupEnv(t)
	if _, err := run(t, path, "session", "start", "awa@x.com"); err != nil {
		t.Fatalf("session start: %v", err)
	}

	out, err := run(t, path, "notify", "report-ready", "--report", "Mars")
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(out, "Nouveau rapport disponible") || !strings.Contains(out, "[push]") || !strings.Contains(out, "1 unread") {
		t.Fatalf("unexpected notify output %q", out)
	}
	if _, err := run(t, path, "notify", "birthday"); err == nil {
		t.Fatal("expected unknown kind rejected")
	}

	out, err = run(t, path, "notifications", "list")
	if err != nil || !strings.Contains(out, "Mars") || !strings.Contains(out, "1 unread") {
		t.Fatalf("list: %q (%v)", out, err)
	}
	if _, err := run(t, path, "notifications", "read"); err == nil {
		t.Fatal("expected id or --all required")
	}
	out, err = run(t, path, "notifications", "read", "--all")
	if err != nil || !strings.Contains(out, "0 unread") {
		t.Fatalf("read all: %q (%v)", out, err)
	}

	out, err = run(t, path, "prefs", "set", "reportAlerts=false", "push=false")
	if err != nil || !strings.Contains(out, "pushNotifications") {
		t.Fatalf("prefs set: %q (%v)", out, err)
	}
	out, err = run(t, path, "notify", "report-ready", "--report", "Avril")
	if err != nil || !strings.Contains(out, "Not sent") {
		t.Fatalf("expected gated notification, got %q (%v)", out, err)
	}
	if _, err := run(t, path, "prefs", "set", "sms=true"); err == nil {
		t.Fatal("expected unknown preference rejected")
	}

	if _, err := run(t, path, "notifications", "clear"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	out, _ = run(t, path, "notifications", "list")
	if !strings.Contains(out, "No notifications") {
		t.Fatalf("expected empty inbox, got %q", out)
	}
}

func TestApplyPreferenceFlags(t *testing.T) {
	prefs, err := applyPreferenceFlags(domain.DefaultPreferences(), map[string]string{"push": "false"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if prefs.Push || prefs.PushNotifications {
		t.Fatalf("expected both push flags off, got %+v", prefs)
	}
	prefs, err = applyPreferenceFlags(prefs, map[string]string{"pushNotifications": "true", "email": "0"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !prefs.Push || !prefs.PushNotifications || prefs.Email {
		t.Fatalf("unexpected flags %+v", prefs)
	}
	if _, err := applyPreferenceFlags(prefs, map[string]string{"email": "maybe"}); err == nil {
		t.Fatal("expected invalid bool rejected")
	}
}

func TestPrompter(t *testing.T) {
	var out bytes.Buffer
	p, err := newPrompter("ask", strings.NewReader("oui\n"), &out)
	if err != nil {
		t.Fatalf("prompter: %v", err)
	}
	if state, _ := p.Prompt(context.Background()); state != push.Granted {
		t.Fatalf("expected granted, got %s", state)
	}
	p, _ = newPrompter("ask", strings.NewReader(""), &out)
	if state, _ := p.Prompt(context.Background()); state != push.Default {
		t.Fatalf("expected dismissed prompt, got %s", state)
	}
	p, _ = newPrompter("denied", nil, &out)
	if state, _ := p.Prompt(context.Background()); state != push.Denied {
		t.Fatalf("expected fixed denied, got %s", state)
	}
	if _, err := newPrompter("perhaps", nil, &out); err == nil {
		t.Fatal("expected invalid answer rejected")
	}
}
