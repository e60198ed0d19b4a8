// Package relay is the reference remote: a JSON document store with live
// queries over websockets and a blob store, behind JWT bearer auth.
package relay

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is read from RELAY_* environment variables.
type Config struct {
	Addr      string
	DBDriver  string
	DBDSN     string
	BlobDir   string
	JWTSecret string
	TokenTTL  time.Duration
	RateRPS   float64
	RateBurst int
	MaxBlob   int64
}

// ErrNoSecret is returned when RELAY_JWT_SECRET is unset.
var ErrNoSecret = errors.New("RELAY_JWT_SECRET must be set")

// LoadConfig reads the environment. Call godotenv.Load first to honour a
// .env file.
func LoadConfig() (Config, error) {
	cfg := Config{
		Addr:      getEnv("RELAY_ADDR", ":8420"),
		DBDriver:  getEnv("RELAY_DB_DRIVER", "sqlite3"),
		DBDSN:     getEnv("RELAY_DB_DSN", "relay.db"),
		BlobDir:   getEnv("RELAY_BLOB_DIR", "blobs"),
		JWTSecret: os.Getenv("RELAY_JWT_SECRET"),
		TokenTTL:  30 * 24 * time.Hour,
		RateRPS:   50,
		RateBurst: 100,
		MaxBlob:   64 << 20,
	}
	if cfg.JWTSecret == "" {
		return cfg, ErrNoSecret
	}
	if cfg.DBDriver != "sqlite3" && cfg.DBDriver != "mysql" {
		return cfg, fmt.Errorf("RELAY_DB_DRIVER %q: want sqlite3 or mysql", cfg.DBDriver)
	}

	var err error
	if v := os.Getenv("RELAY_TOKEN_TTL"); v != "" {
		if cfg.TokenTTL, err = time.ParseDuration(v); err != nil {
			return cfg, fmt.Errorf("RELAY_TOKEN_TTL: %w", err)
		}
	}
	if v := os.Getenv("RELAY_RATE_RPS"); v != "" {
		if cfg.RateRPS, err = strconv.ParseFloat(v, 64); err != nil {
			return cfg, fmt.Errorf("RELAY_RATE_RPS: %w", err)
		}
	}
	if v := os.Getenv("RELAY_RATE_BURST"); v != "" {
		if cfg.RateBurst, err = strconv.Atoi(v); err != nil {
			return cfg, fmt.Errorf("RELAY_RATE_BURST: %w", err)
		}
	}
	if v := os.Getenv("RELAY_MAX_BLOB"); v != "" {
		if cfg.MaxBlob, err = strconv.ParseInt(v, 10, 64); err != nil {
			return cfg, fmt.Errorf("RELAY_MAX_BLOB: %w", err)
		}
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
