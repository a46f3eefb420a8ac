package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"prestige/internal/logging"
	"prestige/internal/store"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logging.SetGlobalLogger(logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}))

	ctx := context.Background()

	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer db.Close()

	dataStore := store.New(db, cfg.SessionTTL)

	if err := bootstrapDefaults(ctx, db, dataStore); err != nil {
		log.Fatal().Err(err).Msg("bootstrap defaults")
	}

	catalog, err := loadCatalog(ctx, dataStore)
	if err != nil {
		log.Fatal().Err(err).Msg("load category catalog")
	}

	handler, err := newHTTPHandler(cfg, dataStore, catalog)
	if err != nil {
		log.Fatal().Err(err).Msg("configure http handler")
	}

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: handler,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("API server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
