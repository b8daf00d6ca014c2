package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `CREATE TABLE IF NOT EXISTS occupancy_txn (
	txn_id BIGINT NOT NULL,
	board_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	q INTEGER NOT NULL,
	r INTEGER NOT NULL,
	facing INTEGER NOT NULL,
	version BIGINT NOT NULL,
	at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (board_id, txn_id)
)`

// PostgresSink appends entries to a shared PostgreSQL database.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and ensures the audit table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse audit dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect audit db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping audit db: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

// Append inserts the entry.
func (p *PostgresSink) Append(ctx context.Context, e Entry) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO occupancy_txn (txn_id, board_id, kind, actor_id, q, r, facing, version, at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		int64(e.TxnID), e.BoardID, e.Kind, e.ActorID, e.Q, e.R, e.Facing, int64(e.Version), e.At)
	if err != nil {
		return fmt.Errorf("append audit entry %d: %w", e.TxnID, err)
	}
	return nil
}

// Close releases the pool.
func (p *PostgresSink) Close() error {
	p.pool.Close()
	return nil
}
