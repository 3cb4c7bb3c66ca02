package account

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"missioncontrol/internal/errors"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    identity_id TEXT PRIMARY KEY,
    email       TEXT NOT NULL DEFAULT '',
    credits     INTEGER NOT NULL,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS missions (
    id           TEXT PRIMARY KEY,
    identity_id  TEXT NOT NULL REFERENCES accounts(identity_id),
    type         TEXT NOT NULL,
    resume_id    TEXT NOT NULL,
    score_before REAL,
    score_after  REAL,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS missions_identity_created ON missions (identity_id, created_at DESC);
`

var sqlitePragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

// SQLiteStore keeps accounts in a local SQLite file
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database file and applies the schema
func OpenSQLite(ctx context.Context, path string, logger *errors.Logger) (*SQLiteStore, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, storeFailed("failed to create database directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storeFailed("failed to open sqlite database", err)
	}
	// SQLite serialises writers; a single connection also keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	for _, pragma := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, storeFailed(fmt.Sprintf("failed to apply %q", pragma), err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, storeFailed("failed to apply schema", err)
	}

	logger.Info("Account store connected", "driver", "sqlite", "path", path)
	return &SQLiteStore{db: db}, nil
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var (
		acc              Account
		created, updated int64
	)
	if err := row.Scan(&acc.IdentityID, &acc.Email, &acc.Credits, &created, &updated); err != nil {
		return nil, err
	}
	acc.CreatedAt = fromMillis(created)
	acc.UpdatedAt = fromMillis(updated)
	return &acc, nil
}

func (s *SQLiteStore) Ensure(ctx context.Context, id Identity, startingCredits int) (*Account, error) {
	now := millis(time.Now())
	acc, err := scanAccount(s.db.QueryRowContext(ctx,
		`INSERT INTO accounts (identity_id, email, credits, created_at, updated_at)
		 VALUES (?1, ?2, ?3, ?4, ?4)
		 ON CONFLICT (identity_id) DO UPDATE SET
		     email = COALESCE(NULLIF(?2, ''), accounts.email),
		     updated_at = ?4
		 RETURNING identity_id, email, credits, created_at, updated_at`,
		id.ID, id.Email, startingCredits, now,
	))
	if err != nil {
		return nil, storeFailed("failed to upsert account", err)
	}
	return acc, nil
}

func (s *SQLiteStore) Get(ctx context.Context, identityID string) (*Account, error) {
	acc, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT identity_id, email, credits, created_at, updated_at
		 FROM accounts WHERE identity_id = ?1`,
		identityID,
	))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, notFound(identityID)
		}
		return nil, storeFailed("failed to read account", err)
	}
	return acc, nil
}

func (s *SQLiteStore) RecordMission(ctx context.Context, m Mission) (*Account, error) {
	m = newMission(m)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeFailed("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	acc, err := scanAccount(tx.QueryRowContext(ctx,
		`UPDATE accounts SET credits = MAX(credits - 1, 0), updated_at = ?2
		 WHERE identity_id = ?1
		 RETURNING identity_id, email, credits, created_at, updated_at`,
		m.IdentityID, millis(m.CreatedAt),
	))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, notFound(m.IdentityID)
		}
		return nil, storeFailed("failed to spend credit", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO missions (id, identity_id, type, resume_id, score_before, score_after, created_at)
		 VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7)`,
		m.ID.String(), m.IdentityID, m.Type, m.ResumeID, m.ScoreBefore, m.ScoreAfter, millis(m.CreatedAt),
	); err != nil {
		return nil, storeFailed(fmt.Sprintf("failed to record mission %s", m.ID), err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeFailed("failed to commit mission", err)
	}
	return acc, nil
}

func (s *SQLiteStore) Missions(ctx context.Context, identityID string, limit int) ([]Mission, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, identity_id, type, resume_id, score_before, score_after, created_at
		 FROM missions WHERE identity_id = ?1
		 ORDER BY created_at DESC
		 LIMIT ?2`,
		identityID, limit,
	)
	if err != nil {
		return nil, storeFailed("failed to list missions", err)
	}
	defer func() { _ = rows.Close() }()

	var missions []Mission
	for rows.Next() {
		var (
			m         Mission
			id        string
			before    sql.NullFloat64
			after     sql.NullFloat64
			createdMs int64
		)
		if err := rows.Scan(&id, &m.IdentityID, &m.Type, &m.ResumeID, &before, &after, &createdMs); err != nil {
			return nil, storeFailed("failed to scan mission", err)
		}
		if m.ID, err = uuid.Parse(id); err != nil {
			return nil, storeFailed("corrupt mission id", err)
		}
		if before.Valid {
			m.ScoreBefore = &before.Float64
		}
		if after.Valid {
			m.ScoreAfter = &after.Float64
		}
		m.CreatedAt = fromMillis(createdMs)
		missions = append(missions, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeFailed("failed to list missions", err)
	}
	return missions, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
