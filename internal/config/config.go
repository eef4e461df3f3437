// Package config loads server configuration from the environment.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the process-wide configuration.
type Config struct {
	Port       string        `env:"PORT" envDefault:"8000"`
	DBPath     string        `env:"DB_PATH" envDefault:"expenses.db"`
	SecretKey  string        `env:"SECRET_KEY"`
	SecretFile string        `env:"SECRET_FILE" envDefault:"secret.key"`
	TokenTTL   time.Duration `env:"TOKEN_TTL" envDefault:"30m"`

	// Optional bootstrap admin account, created on startup if the user
	// table is empty.
	AdminUser     string `env:"ADMIN_USER"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

// Load parses the environment into a Config. If SECRET_KEY is unset, the
// signing secret is read from SecretFile, generated and persisted there on
// first run. Persisting keeps tokens issued before a restart valid after
// it; deployments wanting rotation must supply SECRET_KEY themselves.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.SecretKey == "" {
		key, err := loadOrCreateSecret(cfg.SecretFile)
		if err != nil {
			return nil, fmt.Errorf("signing secret: %w", err)
		}
		cfg.SecretKey = key
	}

	return &cfg, nil
}

func loadOrCreateSecret(path string) (string, error) {
	if data, err := os.ReadFile(path); err == nil {
		if key := strings.TrimSpace(string(data)); key != "" {
			return key, nil
		}
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	key := base64.RawURLEncoding.EncodeToString(raw)

	if err := os.WriteFile(path, []byte(key+"\n"), 0o600); err != nil {
		return "", err
	}
	return key, nil
}
