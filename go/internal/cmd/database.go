package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/eduhub/go/internal/ledger"
	"github.com/rs/zerolog/log"
)

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func databaseConfigFromEnv() DatabaseConfig {
	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		Database: getEnv("DB_NAME", "eduhub"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

// DSN returns the ledger connection URL with credentials escaped
func (c DatabaseConfig) DSN() string {
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return dsn.String()
}

// setupDatabase connects the ledger pool. It returns nil when DB_HOST is unset.
func setupDatabase(ctx context.Context) (*pgxpool.Pool, error) {
	if getEnv("DB_HOST", "") == "" {
		log.Info().Msg("DB_HOST not set, demo ledger disabled")
		return nil, nil
	}

	dbConfig := databaseConfigFromEnv()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := ledger.Connect(connectCtx, dbConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect ledger database: %w", err)
	}

	if err := ledger.NewRepository(pool).EnsureSchema(connectCtx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Str("user", dbConfig.User).
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("connected to database")
	return pool, nil
}
