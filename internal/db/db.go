package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/unclebandit/smsleopard-dashboard/internal/config"
)

// Open connects to Postgres and verifies the connection.
func Open(cfg *config.Server) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName,
	)

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}

	if err = conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	return conn, nil
}
