package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// Querier is the part of a pgx pool the stores need.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

var DB *pgxpool.Pool

// ConnectDB opens the shared pool and verifies it with a ping.
func ConnectDB(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
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

	DB = pool
	log.Infof("connected to database at %s:%d", config.ConnConfig.Host, config.ConnConfig.Port)
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id       UUID PRIMARY KEY,
	username TEXT UNIQUE NOT NULL,
	avatar   TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS game_results (
	id          UUID PRIMARY KEY,
	game_type   TEXT NOT NULL,
	winner_side TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS game_result_players (
	result_id UUID NOT NULL REFERENCES game_results(id) ON DELETE CASCADE,
	user_id   UUID NOT NULL,
	username  TEXT NOT NULL,
	side      TEXT NOT NULL,
	did_win   BOOLEAN NOT NULL,
	PRIMARY KEY (result_id, side)
);
CREATE TABLE IF NOT EXISTS move_history (
	room_id   BIGINT NOT NULL,
	seq       INT NOT NULL,
	actor_id  UUID NOT NULL,
	side      TEXT NOT NULL,
	game_type TEXT NOT NULL,
	payload   JSONB NOT NULL,
	ts        BIGINT NOT NULL,
	PRIMARY KEY (room_id, seq, ts)
);
`

// EnsureSchema creates the arena tables if they are missing.
func EnsureSchema(ctx context.Context, q Querier) error {
	if _, err := q.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
