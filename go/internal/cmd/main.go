package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	envErr := godotenv.Load()
	setupLogging()
	if envErr != nil {
		log.Warn().Err(envErr).Msg("could not load .env file")
	}

	config, err := loadConfig(getEnv("EDUHUB_CONFIG", "eduhub.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := setupDatabase(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup database")
	}
	if pool != nil {
		defer pool.Close()
	}

	services, err := setupServices(ctx, config, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup services")
	}
	services.Start()

	server := setupServer(services)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Dur("demo_duration", config.Demo.Duration).
			Dur("expiring_window", config.Demo.ExpiringWindow).
			Msg("starting EduHub gateway")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	services.Shutdown(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
