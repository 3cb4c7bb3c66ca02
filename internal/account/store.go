// Package account is the session and credit gate: it verifies identities, keeps
// one account row per identity and exposes the credit balance that gates optimize.
//
// The stored balance is authoritative. A Session holds a display copy that is
// decremented optimistically after an optimize and reconciled from the store.
package account

import (
	"context"
	"slices"
	"sync"
	"time"

	"missioncontrol/internal/config"
	"missioncontrol/internal/errors"

	"github.com/google/uuid"
)

// MissionTypeOptimization is the only mission type the dashboard records
const MissionTypeOptimization = "FULL_OPTIMIZATION"

// Account is the persisted record for one identity
type Account struct {
	IdentityID string    `json:"identity_id"`
	Email      string    `json:"email"`
	Credits    int       `json:"credits"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Mission is one completed optimization, kept for the history view
type Mission struct {
	ID          uuid.UUID `json:"id"`
	IdentityID  string    `json:"identity_id"`
	Type        string    `json:"type"`
	ResumeID    string    `json:"resume_id"`
	ScoreBefore *float64  `json:"score_before,omitempty"`
	ScoreAfter  *float64  `json:"score_after,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Delta is the score gain, when both scores are known
func (m Mission) Delta() (float64, bool) {
	if m.ScoreBefore == nil || m.ScoreAfter == nil {
		return 0, false
	}
	return *m.ScoreAfter - *m.ScoreBefore, true
}

// Store persists accounts and mission history
type Store interface {
	// Ensure returns the account for id, creating it with startingCredits on first sight
	Ensure(ctx context.Context, id Identity, startingCredits int) (*Account, error)
	Get(ctx context.Context, identityID string) (*Account, error)
	// RecordMission stores m and spends one credit, never going below zero
	RecordMission(ctx context.Context, m Mission) (*Account, error)
	Missions(ctx context.Context, identityID string, limit int) ([]Mission, error)
	Close() error
}

// Open selects a store implementation from the database URL
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *errors.Logger) (Store, error) {
	driver, err := cfg.Driver()
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid database url", err)
	}

	switch driver {
	case "postgres":
		return OpenPostgres(ctx, cfg.URL, cfg.MaxConns, logger)
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath(), logger)
	default:
		logger.Warn("No database configured, accounts are kept in memory")
		return NewMemoryStore(), nil
	}
}

func newMission(m Mission) Mission {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Type == "" {
		m.Type = MissionTypeOptimization
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return m
}

func notFound(identityID string) error {
	return errors.NewValidationError(errors.ErrCodeNotFound, "account not found", nil).
		WithContext("identity_id", identityID)
}

func storeFailed(message string, err error) error {
	return errors.NewIOError(errors.ErrCodeStoreFailed, message, err)
}

// MemoryStore keeps accounts in process memory
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	missions map[string][]Mission
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		missions: make(map[string][]Mission),
	}
}

func (s *MemoryStore) Ensure(_ context.Context, id Identity, startingCredits int) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	acc, ok := s.accounts[id.ID]
	if !ok {
		acc = &Account{IdentityID: id.ID, Email: id.Email, Credits: startingCredits, CreatedAt: now}
		s.accounts[id.ID] = acc
	} else if id.Email != "" {
		acc.Email = id.Email
	}
	acc.UpdatedAt = now

	out := *acc
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, identityID string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[identityID]
	if !ok {
		return nil, notFound(identityID)
	}
	out := *acc
	return &out, nil
}

func (s *MemoryStore) RecordMission(_ context.Context, m Mission) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[m.IdentityID]
	if !ok {
		return nil, notFound(m.IdentityID)
	}
	m = newMission(m)
	s.missions[m.IdentityID] = append(s.missions[m.IdentityID], m)
	acc.Credits = max(0, acc.Credits-1)
	acc.UpdatedAt = m.CreatedAt

	out := *acc
	return &out, nil
}

func (s *MemoryStore) Missions(_ context.Context, identityID string, limit int) ([]Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := slices.Clone(s.missions[identityID])
	slices.Reverse(list)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *MemoryStore) Close() error { return nil }
