package account

import (
	"context"
	stderrors "errors"
	"fmt"

	"missioncontrol/internal/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    identity_id TEXT PRIMARY KEY,
    email       TEXT NOT NULL DEFAULT '',
    credits     INTEGER NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS missions (
    id           UUID PRIMARY KEY,
    identity_id  TEXT NOT NULL REFERENCES accounts(identity_id),
    type         TEXT NOT NULL,
    resume_id    TEXT NOT NULL,
    score_before DOUBLE PRECISION,
    score_after  DOUBLE PRECISION,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS missions_identity_created ON missions (identity_id, created_at DESC);
`

// PostgresStore keeps accounts in PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool and makes sure the schema exists
func OpenPostgres(ctx context.Context, databaseURL string, maxConns int32, logger *errors.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid postgres url", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, storeFailed("failed to connect to database", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storeFailed("failed to ping database", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, storeFailed("failed to apply schema", err)
	}

	logger.Info("Account store connected", "driver", "postgres", "max_conns", poolCfg.MaxConns)
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Ensure(ctx context.Context, id Identity, startingCredits int) (*Account, error) {
	var acc Account
	err := s.pool.QueryRow(ctx,
		`INSERT INTO accounts (identity_id, email, credits)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (identity_id) DO UPDATE SET
		     email = COALESCE(NULLIF($2, ''), accounts.email),
		     updated_at = NOW()
		 RETURNING identity_id, email, credits, created_at, updated_at`,
		id.ID, id.Email, startingCredits,
	).Scan(&acc.IdentityID, &acc.Email, &acc.Credits, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return nil, storeFailed("failed to upsert account", err)
	}
	return &acc, nil
}

func (s *PostgresStore) Get(ctx context.Context, identityID string) (*Account, error) {
	var acc Account
	err := s.pool.QueryRow(ctx,
		`SELECT identity_id, email, credits, created_at, updated_at
		 FROM accounts WHERE identity_id = $1`,
		identityID,
	).Scan(&acc.IdentityID, &acc.Email, &acc.Credits, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(identityID)
		}
		return nil, storeFailed("failed to read account", err)
	}
	return &acc, nil
}

func (s *PostgresStore) RecordMission(ctx context.Context, m Mission) (*Account, error) {
	m = newMission(m)
	var acc Account

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE accounts SET credits = GREATEST(credits - 1, 0), updated_at = NOW()
			 WHERE identity_id = $1
			 RETURNING identity_id, email, credits, created_at, updated_at`,
			m.IdentityID,
		).Scan(&acc.IdentityID, &acc.Email, &acc.Credits, &acc.CreatedAt, &acc.UpdatedAt)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO missions (id, identity_id, type, resume_id, score_before, score_after, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			m.ID, m.IdentityID, m.Type, m.ResumeID, m.ScoreBefore, m.ScoreAfter, m.CreatedAt,
		)
		return err
	})
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(m.IdentityID)
		}
		return nil, storeFailed(fmt.Sprintf("failed to record mission %s", m.ID), err)
	}
	return &acc, nil
}

func (s *PostgresStore) Missions(ctx context.Context, identityID string, limit int) ([]Mission, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, identity_id, type, resume_id, score_before, score_after, created_at
		 FROM missions WHERE identity_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		identityID, limit,
	)
	if err != nil {
		return nil, storeFailed("failed to list missions", err)
	}
	defer rows.Close()

	var missions []Mission
	for rows.Next() {
		var m Mission
		if err := rows.Scan(&m.ID, &m.IdentityID, &m.Type, &m.ResumeID, &m.ScoreBefore, &m.ScoreAfter, &m.CreatedAt); err != nil {
			return nil, storeFailed("failed to scan mission", err)
		}
		missions = append(missions, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeFailed("failed to list missions", err)
	}
	return missions, nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
