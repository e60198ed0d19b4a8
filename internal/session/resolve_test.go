package session

import (
	"os"
	"testing"
)

func TestResolvePrecedence(t *testing.T) {
	t.Setenv("CHATSYNC_HOME", t.TempDir())
	t.Setenv(EnvSession, "")

	if got := Resolve(""); got != DefaultSessionName {
		t.Errorf("no config: %q", got)
	}

	if err := os.WriteFile(ConfigPath(), []byte("default_session = \"work\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "work" {
		t.Errorf("config: %q", got)
	}

	t.Setenv(EnvSession, "phone")
	if got := Resolve(""); got != "phone" {
		t.Errorf("env: %q", got)
	}
	if got := Resolve("flag"); got != "flag" {
		t.Errorf("flag: %q", got)
	}
}
