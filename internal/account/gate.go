package account

import (
	"context"
	"sync"
	"time"

	"missioncontrol/internal/cache"
	"missioncontrol/internal/config"
	"missioncontrol/internal/errors"
	"missioncontrol/internal/types"
)

const creditKeyPrefix = "missioncontrol:credits:"

type cachedBalance struct {
	Credits int       `json:"credits"`
	At      time.Time `json:"at"`
}

// Gate resolves identities to accounts and serves credit balances
type Gate struct {
	store           Store
	cache           cache.JSON
	ttl             time.Duration
	startingCredits int
	logger          *errors.Logger
}

// NewGate creates a gate. A nil cache reads every balance from the store.
func NewGate(store Store, c cache.JSON, cfg *config.Config, logger *errors.Logger) *Gate {
	return &Gate{
		store:           store,
		cache:           c,
		ttl:             cfg.Redis.CreditTTL,
		startingCredits: cfg.Mission.StartingCredits,
		logger:          logger,
	}
}

// Resolve ensures an account exists for id and opens a display session for it
func (g *Gate) Resolve(ctx context.Context, id Identity) (*Session, error) {
	if id.ID == "" {
		return nil, unauthorized("no signed-in identity", nil)
	}
	acc, err := g.store.Ensure(ctx, id, g.startingCredits)
	if err != nil {
		return nil, err
	}
	g.remember(ctx, acc.IdentityID, acc.Credits)

	g.logger.Debug("Account resolved", "identity_id", acc.IdentityID, "credits", acc.Credits)
	return &Session{gate: g, identity: id, balance: acc.Credits}, nil
}

// Account returns the stored record for id, creating it on first sight
func (g *Gate) Account(ctx context.Context, id Identity) (*Account, error) {
	if id.ID == "" {
		return nil, unauthorized("no signed-in identity", nil)
	}
	acc, err := g.store.Ensure(ctx, id, g.startingCredits)
	if err != nil {
		return nil, err
	}
	g.remember(ctx, acc.IdentityID, acc.Credits)
	return acc, nil
}

// Balance returns the credit balance, from cache when it is fresh
func (g *Gate) Balance(ctx context.Context, id Identity) (int, error) {
	if id.ID == "" {
		return 0, unauthorized("no signed-in identity", nil)
	}
	if g.cache != nil {
		var cached cachedBalance
		hit, err := g.cache.GetJSON(ctx, creditKeyPrefix+id.ID, &cached)
		if err != nil {
			g.logger.Warn("Credit cache read failed", "identity_id", id.ID, "error", err.Error())
		} else if hit {
			return cached.Credits, nil
		}
	}

	acc, err := g.store.Ensure(ctx, id, g.startingCredits)
	if err != nil {
		return 0, err
	}
	g.remember(ctx, acc.IdentityID, acc.Credits)
	return acc.Credits, nil
}

// Reconcile drops any cached balance and re-reads the authoritative one
func (g *Gate) Reconcile(ctx context.Context, identityID string) (int, error) {
	if g.cache != nil {
		if err := g.cache.Del(ctx, creditKeyPrefix+identityID); err != nil {
			g.logger.Warn("Credit cache invalidation failed", "identity_id", identityID, "error", err.Error())
		}
	}
	acc, err := g.store.Get(ctx, identityID)
	if err != nil {
		return 0, err
	}
	g.remember(ctx, identityID, acc.Credits)
	return acc.Credits, nil
}

// RecordMission stores a completed mission and spends its credit
func (g *Gate) RecordMission(ctx context.Context, m Mission) (*Account, error) {
	acc, err := g.store.RecordMission(ctx, m)
	if err != nil {
		return nil, err
	}
	g.remember(ctx, acc.IdentityID, acc.Credits)
	g.logger.Info("Mission recorded",
		"identity_id", acc.IdentityID,
		"resume_id", m.ResumeID,
		"credits_left", acc.Credits)
	return acc, nil
}

func (g *Gate) remember(ctx context.Context, identityID string, credits int) {
	if g.cache == nil {
		return
	}
	err := g.cache.SetJSON(ctx, creditKeyPrefix+identityID, cachedBalance{Credits: credits, At: time.Now().UTC()}, g.ttl)
	if err != nil {
		g.logger.Warn("Credit cache write failed", "identity_id", identityID, "error", err.Error())
	}
}

// Analytics summarises an identity's mission history
type Analytics struct {
	TotalMissions int        `json:"total_missions"`
	CreditsBurned int        `json:"credits_burned"`
	BestDelta     *float64   `json:"best_delta,omitempty"`
	AverageAfter  *float64   `json:"average_score_after,omitempty"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`
}

// History is the mission log with its summary
type History struct {
	Missions  []Mission `json:"missions"`
	Analytics Analytics `json:"analytics"`
}

// History lists the most recent missions, newest first, with analytics over them
func (g *Gate) History(ctx context.Context, identityID string, limit int) (*History, error) {
	missions, err := g.store.Missions(ctx, identityID, limit)
	if err != nil {
		return nil, err
	}
	return &History{Missions: missions, Analytics: Summarize(missions)}, nil
}

// Summarize computes analytics over missions ordered newest first
func Summarize(missions []Mission) Analytics {
	a := Analytics{TotalMissions: len(missions), CreditsBurned: len(missions)}
	if len(missions) == 0 {
		return a
	}
	last := missions[0].CreatedAt
	a.LastActivity = &last

	var (
		sumAfter float64
		nAfter   int
	)
	for _, m := range missions {
		if d, ok := m.Delta(); ok && (a.BestDelta == nil || d > *a.BestDelta) {
			a.BestDelta = types.Float(d)
		}
		if m.ScoreAfter != nil {
			sumAfter += *m.ScoreAfter
			nAfter++
		}
	}
	if nAfter > 0 {
		a.AverageAfter = types.Float(sumAfter / float64(nAfter))
	}
	return a
}

// Session is one identity's credit display. The balance it shows is decremented
// locally after an optimize and corrected on Reconcile.
type Session struct {
	gate     *Gate
	identity Identity

	mu      sync.Mutex
	balance int
	pending []Mission
}

// Identity returns the signed-in identity
func (s *Session) Identity() Identity {
	return s.identity
}

// Balance returns the displayed balance
func (s *Session) Balance() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// CanOptimize reports whether the displayed balance allows another optimize
func (s *Session) CanOptimize() bool {
	return s.Balance() > 0
}

// Decrement lowers the displayed balance by one, never below zero
func (s *Session) Decrement() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = max(0, s.balance-1)
	return s.balance
}

// Complete queues a mission record for the next Reconcile
func (s *Session) Complete(resumeID string, result *types.OptimizationResult) {
	m := Mission{
		IdentityID: s.identity.ID,
		Type:       MissionTypeOptimization,
		ResumeID:   resumeID,
		CreatedAt:  time.Now().UTC(),
	}
	if gap := result.Gap(); gap != nil {
		m.ScoreBefore, m.ScoreAfter = gap.ATSScoreBefore, gap.ATSScoreAfter
	}
	if result != nil && result.Summary != nil {
		if m.ScoreBefore == nil {
			m.ScoreBefore = result.Summary.ScoreBefore
		}
		if m.ScoreAfter == nil {
			m.ScoreAfter = result.Summary.ScoreAfter
		}
	}

	s.mu.Lock()
	s.pending = append(s.pending, newMission(m))
	s.mu.Unlock()
}

// Pending returns how many mission records await Reconcile
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Reconcile writes queued missions and replaces the displayed balance with the stored one.
// Missions that fail to write stay queued.
func (s *Session) Reconcile(ctx context.Context) (int, error) {
	s.mu.Lock()
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()

	for i, m := range queued {
		if _, err := s.gate.RecordMission(ctx, m); err != nil {
			s.mu.Lock()
			s.pending = append(queued[i:], s.pending...)
			s.mu.Unlock()
			return s.Balance(), err
		}
	}

	credits, err := s.gate.Reconcile(ctx, s.identity.ID)
	if err != nil {
		return s.Balance(), err
	}

	s.mu.Lock()
	s.balance = credits
	s.mu.Unlock()
	return credits, nil
}
