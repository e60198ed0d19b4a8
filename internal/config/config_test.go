package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{DefaultSession: "work"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "session.toml"))
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if s.Sync.UploadInterval.Duration != 250*time.Millisecond {
		t.Errorf("UploadInterval = %v, want 250ms", s.Sync.UploadInterval)
	}
	if s.Media.CleanupSchedule != "@daily" || !s.Network.Wifi {
		t.Errorf("defaults = %+v", s)
	}
}

func TestLoadSettingsOverridesKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	data := `
[remote]
url = "https://relay.example.com"

[sync]
upload_interval = "1s"

[network]
wifi = false
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Remote.URL != "https://relay.example.com" || s.Sync.UploadInterval.Duration != time.Second || s.Network.Wifi {
		t.Errorf("settings = %+v", s)
	}
	if s.Network.ProbeInterval.Duration != 15*time.Second {
		t.Errorf("ProbeInterval = %v, want default 15s", s.Network.ProbeInterval)
	}

	if err := SaveSettings(path, s); err != nil {
		t.Fatal(err)
	}
	again, err := LoadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if again != s {
		t.Errorf("saved settings = %+v, want %+v", again, s)
	}
}

func TestLoadSettingsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	if err := os.WriteFile(path, []byte("[sync]\nupload_interval = \"soon\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSettings(path); err == nil {
		t.Error("LoadSettings() accepted a bad duration")
	}
}

func TestCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")

	c, err := LoadCredentials(path)
	if err != nil || c != nil {
		t.Fatalf("missing credentials = %v, %v; want nil, nil", c, err)
	}
	if err := SaveCredentials(path, &Credentials{UserID: "u1", Token: "tok"}); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("file permission = %o, want 0600", info.Mode().Perm())
	}
	c, err = LoadCredentials(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.UserID != "u1" || c.Token != "tok" {
		t.Errorf("credentials = %+v", c)
	}

	if err := RemoveCredentials(path); err != nil {
		t.Fatal(err)
	}
	if err := RemoveCredentials(path); err != nil {
		t.Errorf("second remove: %v", err)
	}
}
