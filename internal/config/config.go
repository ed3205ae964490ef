// Package config loads the admin panel settings from the environment.
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every environment-driven setting of the server.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL" envDefault:"sqlite://quill.db"`
	LogSQL      bool   `env:"DB_LOG_SQL" envDefault:"false"`

	StorageRoot    string `env:"STORAGE_ROOT" envDefault:"./storage/public"`
	StorageURL     string `env:"STORAGE_URL" envDefault:"/storage"`
	PruneReplaced  bool   `env:"PRUNE_REPLACED_UPLOADS" envDefault:"false"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"8388608"`

	SessionCookie   string        `env:"SESSION_COOKIE" envDefault:"quill_session"`
	SessionLifetime time.Duration `env:"SESSION_LIFETIME" envDefault:"24h"`
	SecureCookies   bool          `env:"SECURE_COOKIES" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	CORSOrigin string `env:"CORS_ORIGIN" envDefault:"*"`

	AdminName     string `env:"ADMIN_NAME" envDefault:"Administrator"`
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

// Load reads an optional .env file and parses the environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		// Production sets env vars directly, a missing .env is fine.
		log.Println("No .env file found, reading from environment")
	}
	return Parse()
}

// Parse parses the current environment without touching .env files.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.SessionLifetime <= 0 {
		return Config{}, fmt.Errorf("parse env: SESSION_LIFETIME must be positive, got %s", cfg.SessionLifetime)
	}
	return cfg, nil
}

// Addr is the listen address derived from Port.
func (c Config) Addr() string {
	return ":" + c.Port
}
