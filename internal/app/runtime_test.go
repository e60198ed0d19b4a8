package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/remote/memremote"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

type harness struct {
	rt      *Runtime
	st      *store.Store
	rs      *memremote.Remote
	machine *status.Machine
	opts    Options
}

func newHarness(t *testing.T, rs *memremote.Remote, dir string) *harness {
	t.Helper()
	db, err := store.Open(filepath.Join(dir, "chatsync.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	st := store.New(db, zap.NewNop())
	b := bus.New()
	m := status.NewMachine(b)
	opts := Options{
		SessionName:     "test",
		SettingsPath:    filepath.Join(dir, "settings.toml"),
		CredentialsPath: filepath.Join(dir, "credentials.toml"),
		MediaDir:        filepath.Join(dir, "media"),
		Remote:          rs,
	}
	rt, err := New(opts, st, b, m, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		rt.Stop()
		_ = st.Close()
	})
	return &harness{rt: rt, st: st, rs: rs, machine: m, opts: opts}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartWithoutCredentialsIsLoggedOut(t *testing.T) {
	h := newHarness(t, memremote.New(), t.TempDir())
	if err := h.rt.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.machine.Current(); got != status.LoggedOut {
		t.Errorf("state = %s, want %s", got, status.LoggedOut)
	}
	if _, err := h.rt.Active(); !errors.Is(err, ErrLoggedOut) {
		t.Errorf("Active err = %v, want ErrLoggedOut", err)
	}
}

func TestLoginCreatesPersonAndGoesOnline(t *testing.T) {
	h := newHarness(t, memremote.New(), t.TempDir())
	ctx := context.Background()
	if err := h.rt.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.rt.Login(ctx, config.Credentials{UserID: "u1", Email: "u1@example.com"}); err != nil {
		t.Fatal(err)
	}
	if got := h.machine.Current(); got != status.Online {
		t.Errorf("state = %s, want %s", got, status.Online)
	}
	s, err := h.rt.Active()
	if err != nil {
		t.Fatal(err)
	}
	if s.UserID != "u1" {
		t.Errorf("user = %q", s.UserID)
	}

	waitFor(t, "person uploaded", func() bool {
		doc, ok := h.rs.Doc(model.Persons.Collection, "u1")
		return ok && doc["email"].AsString() == "u1@example.com"
	})

	if err := h.rt.Login(ctx, config.Credentials{UserID: "u2"}); err == nil {
		t.Error("second login succeeded")
	}
	creds, err := config.LoadCredentials(h.opts.CredentialsPath)
	if err != nil || creds == nil || creds.UserID != "u1" {
		t.Errorf("stored credentials = %+v, %v", creds, err)
	}
}

func TestLogoutWipesLocalState(t *testing.T) {
	h := newHarness(t, memremote.New(), t.TempDir())
	ctx := context.Background()
	if err := h.rt.Login(ctx, config.Credentials{UserID: "u1", Email: "u1@example.com"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "person stored", func() bool {
		p, _ := store.Get(ctx, h.st, model.Persons, "u1")
		return p != nil
	})

	if err := h.rt.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if got := h.machine.Current(); got != status.LoggedOut {
		t.Errorf("state = %s, want %s", got, status.LoggedOut)
	}
	if p, _ := store.Get(ctx, h.st, model.Persons, "u1"); p != nil {
		t.Error("person survived logout")
	}
	if creds, _ := config.LoadCredentials(h.opts.CredentialsPath); creds != nil {
		t.Errorf("credentials survived logout: %+v", creds)
	}
	if err := h.rt.Logout(ctx); !errors.Is(err, ErrLoggedOut) {
		t.Errorf("second logout err = %v, want ErrLoggedOut", err)
	}
}

func TestStartResumesStoredLogin(t *testing.T) {
	dir := t.TempDir()
	rs := memremote.New()
	if err := config.SaveCredentials(filepath.Join(dir, "credentials.toml"), &config.Credentials{UserID: "u1"}); err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, rs, dir)
	if err := h.rt.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	s, err := h.rt.Active()
	if err != nil {
		t.Fatal(err)
	}
	if s.UserID != "u1" || !s.Monitor.IsOnline() {
		t.Errorf("session = %s online=%v", s.UserID, s.Monitor.IsOnline())
	}
}

func TestSetWifiPersists(t *testing.T) {
	h := newHarness(t, memremote.New(), t.TempDir())
	if err := h.rt.Login(context.Background(), config.Credentials{UserID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if err := h.rt.SetWifi(false); err != nil {
		t.Fatal(err)
	}
	s, _ := h.rt.Active()
	if s.Monitor.IsOnWifi() {
		t.Error("monitor still on wifi")
	}
	settings, err := config.LoadSettings(h.opts.SettingsPath)
	if err != nil {
		t.Fatal(err)
	}
	if settings.Network.Wifi {
		t.Error("wifi setting not saved")
	}
}
