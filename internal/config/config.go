// Package config reads and writes the TOML files under ~/.chatsync: the
// global config, per-session settings and per-session credentials.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	return write(path, cfg)
}

// Duration decodes TOML strings such as "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Settings is a session's session.toml.
type Settings struct {
	Remote  RemoteSettings  `toml:"remote"`
	Sync    SyncSettings    `toml:"sync"`
	Media   MediaSettings   `toml:"media"`
	Network NetworkSettings `toml:"network"`
}

// RemoteSettings selects the relay. An empty URL runs against an
// in-process remote.
type RemoteSettings struct {
	URL string `toml:"url"`
}

type SyncSettings struct {
	UploadInterval Duration `toml:"upload_interval"`
}

// MediaSettings holds the media encryption secret (base64) and the
// retention cron schedule.
type MediaSettings struct {
	Key             string `toml:"key"`
	CleanupSchedule string `toml:"cleanup_schedule"`
}

// NetworkSettings: Wi-Fi is declared by the user, not detected.
type NetworkSettings struct {
	Wifi          bool     `toml:"wifi"`
	ProbeInterval Duration `toml:"probe_interval"`
}

// DefaultSettings are used for missing files and missing keys.
func DefaultSettings() Settings {
	return Settings{
		Sync:    SyncSettings{UploadInterval: Duration{250 * time.Millisecond}},
		Media:   MediaSettings{CleanupSchedule: "@daily"},
		Network: NetworkSettings{Wifi: true, ProbeInterval: Duration{15 * time.Second}},
	}
}

// LoadSettings reads path over the defaults. A missing file yields the
// defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if _, err := toml.DecodeFile(path, &s); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return s, fmt.Errorf("read %s: %w", path, err)
	}
	return s, nil
}

func SaveSettings(path string, s Settings) error {
	return write(path, s)
}

// Credentials is a session's credentials.toml. It is written 0600.
type Credentials struct {
	UserID string `toml:"user_id"`
	Email  string `toml:"email,omitempty"`
	Token  string `toml:"token"`
}

// LoadCredentials returns nil credentials when the file does not exist,
// meaning the session is logged out.
func LoadCredentials(path string) (*Credentials, error) {
	var c Credentials
	if _, err := toml.DecodeFile(path, &c); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if c.UserID == "" {
		return nil, fmt.Errorf("%s: user_id is empty", path)
	}
	return &c, nil
}

func SaveCredentials(path string, c *Credentials) error {
	return write(path, c)
}

// RemoveCredentials logs the session out. A missing file is not an error.
func RemoveCredentials(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func write(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
