package session

import (
	"os"

	"github.com/matheus3301/chatsync/internal/config"
)

const (
	DefaultSessionName = "main"
	// EnvSession names the session when no flag is given.
	EnvSession = "CHATSYNC_SESSION"
)

// Resolve picks the session name: the --session flag, then $CHATSYNC_SESSION,
// then default_session in config.toml, then "main".
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if env := os.Getenv(EnvSession); env != "" {
		return env
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
