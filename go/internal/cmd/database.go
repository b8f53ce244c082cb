package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/dbconfig"
	"github.com/mcdev12/gambit/go/internal/migrations"
)

// setupDatabase connects to Postgres and applies the schema. It returns a nil
// handle without error when no database is configured, which selects
// in-memory storage.
func setupDatabase(ctx context.Context) (*sql.DB, error) {
	if !dbconfig.Configured() {
		return nil, nil
	}
	dbConfig := dbconfig.NewConfigFromEnv()

	database, err := sql.Open("pgx", dbConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrations.Apply(ctx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Info().Str("dsn", dbConfig.Redacted()).Msg("connected to database")
	return database, nil
}
