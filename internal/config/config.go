// internal/config/config.go
//
// Environment-driven configuration for the Guess Who backend.
// Loaded once at boot (after godotenv has populated the environment in dev).

package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every recognized option.
type Config struct {
	Port       string `envconfig:"PORT" default:"5180"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"./data/guesswho.db"`

	// Oracle (model gateway) settings.
	OracleProvider string        `envconfig:"ORACLE_PROVIDER" default:"ollama"` // ollama | openai
	OracleModel    string        `envconfig:"ORACLE_MODEL" default:"llama3.1:8b"`
	OracleBaseURL  string        `envconfig:"ORACLE_BASE_URL" default:"http://localhost:11434"`
	OracleAPIKey   string        `envconfig:"ORACLE_API_KEY"`
	OracleTimeout  time.Duration `envconfig:"ORACLE_TIMEOUT" default:"120s"`
	OracleRetries  int           `envconfig:"ORACLE_RETRIES" default:"2"`

	// Game settings.
	GuessBudget    int `envconfig:"GAME_GUESS_BUDGET" default:"3"`
	GuessBudgetCap int `envconfig:"GAME_GUESS_BUDGET_CAP" default:"10"`

	// Auth / web settings.
	JWTSecret     string `envconfig:"JWT_SECRET" default:"dev_secret_change_me"`
	JWTExpireDays int    `envconfig:"JWT_EXPIRES_DAYS" default:"14"`
	CookieName    string `envconfig:"COOKIE_NAME" default:"guesswho_token"`
	ClientOrigin  string `envconfig:"CLIENT_ORIGIN" default:"http://localhost:5173"`
	Production    bool   `envconfig:"PRODUCTION" default:"false"`

	// Daily challenge settings.
	DailySalt string `envconfig:"DAILY_SALT" default:"local_dev_salt"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.GuessBudget <= 0 {
		return nil, fmt.Errorf("GAME_GUESS_BUDGET must be > 0, got %d", cfg.GuessBudget)
	}
	if cfg.OracleRetries < 0 {
		return nil, fmt.Errorf("ORACLE_RETRIES must be >= 0, got %d", cfg.OracleRetries)
	}
	switch cfg.OracleProvider {
	case "ollama", "openai":
	default:
		return nil, fmt.Errorf("ORACLE_PROVIDER must be ollama or openai, got %q", cfg.OracleProvider)
	}
	return &cfg, nil
}
