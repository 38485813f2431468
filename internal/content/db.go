package content

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectDB opens the pgx pool for the postgres content source from
// POSTGRES_USER, POSTGRES_PASSWORD, PG_HOST, PG_PORT and PG_DATABASE.
//
// Expected schema:
//
//	CREATE TABLE words (word TEXT PRIMARY KEY);
//	CREATE TABLE quiz_questions (
//	    id       SERIAL PRIMARY KEY,
//	    question TEXT NOT NULL,
//	    answer   TEXT NOT NULL,
//	    extra    TEXT
//	);
func ConnectDB(ctx context.Context) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		os.Getenv("PG_HOST"),
		os.Getenv("PG_PORT"),
		os.Getenv("PG_DATABASE"),
	)

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return pool, nil
}
