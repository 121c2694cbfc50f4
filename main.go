package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/guesswho/internal/config"
	"github.com/robalobadob/guesswho/internal/httpserver"
	"github.com/robalobadob/guesswho/internal/oracle"
	"github.com/robalobadob/guesswho/internal/roster"
	"github.com/robalobadob/guesswho/internal/session"
	"github.com/robalobadob/guesswho/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := roster.Init(); err != nil {
		log.Fatal().Err(err).Msg("failed to load identity roster")
	}

	db, err := openDB(cfg.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if err := migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	backend, err := newBackend(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build oracle backend")
	}
	orc := oracle.New(backend, cfg.OracleRetries)

	mem := store.NewMemoryStore()
	srv := httpserver.New(cfg, mem, db, orc)
	log.Info().
		Str("port", cfg.Port).
		Str("provider", cfg.OracleProvider).
		Str("model", cfg.OracleModel).
		Msg("starting guesswho server")
	if err := srv.Start(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

// newBackend selects the oracle backend from configuration.
func newBackend(cfg *config.Config) (oracle.Backend, error) {
	switch cfg.OracleProvider {
	case "openai":
		return oracle.NewOpenAIBackend(cfg.OracleAPIKey, cfg.OracleBaseURL, cfg.OracleModel, cfg.OracleTimeout)
	default:
		return oracle.NewOllamaBackend(cfg.OracleBaseURL, cfg.OracleModel, cfg.OracleTimeout)
	}
}

var _ session.Oracle = (*oracle.Oracle)(nil)
