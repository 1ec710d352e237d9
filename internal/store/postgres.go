package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists session summaries in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS coaching_sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			product_id TEXT,
			customer JSONB,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			duration_ms BIGINT NOT NULL,
			total_segments BIGINT NOT NULL,
			interest_score INT NOT NULL,
			pain_points JSONB,
			objections JSONB,
			tips_issued INT NOT NULL DEFAULT 0,
			compactions INT NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_coaching_sessions_user_started ON coaching_sessions (user_id, started_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, record SessionRecord) error {
	customer, err := json.Marshal(record.Customer)
	if err != nil {
		return fmt.Errorf("marshal customer: %w", err)
	}
	painPoints, err := json.Marshal(record.PainPoints)
	if err != nil {
		return fmt.Errorf("marshal pain points: %w", err)
	}
	objections, err := json.Marshal(record.Objections)
	if err != nil {
		return fmt.Errorf("marshal objections: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO coaching_sessions
		 (session_id, user_id, mode, product_id, customer, started_at, ended_at,
		  duration_ms, total_segments, interest_score, pain_points, objections,
		  tips_issued, compactions)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (session_id) DO NOTHING`,
		record.SessionID,
		record.UserID,
		record.Mode,
		record.ProductID,
		customer,
		record.StartedAt,
		record.EndedAt,
		record.DurationMs,
		record.TotalSegments,
		record.InterestScore,
		painPoints,
		objections,
		record.TipsIssued,
		record.Compactions,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
