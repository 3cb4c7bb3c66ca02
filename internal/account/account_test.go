package account

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"missioncontrol/internal/cache"
	"missioncontrol/internal/config"
	"missioncontrol/internal/errors"
	"missioncontrol/internal/types"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier(t *testing.T) {
	v := NewVerifier(config.AuthConfig{JWTSecret: "secret", Issuer: "https://auth.example.com", Audience: "authenticated"})
	id := Identity{ID: "user_1", Email: "jane@example.com", Name: "Jane Doe"}

	token, err := v.Issue(id, time.Hour)
	require.NoError(t, err)

	got, err := v.VerifyHeader("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewVerifier(config.AuthConfig{JWTSecret: "other", Issuer: "https://auth.example.com", Audience: "authenticated"})
		_, err := other.Verify(token)
		assert.True(t, errors.IsType(err, errors.ErrorTypeUnauthorized))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewVerifier(config.AuthConfig{JWTSecret: "secret", Issuer: "https://evil.example.com"})
		_, err := other.Verify(token)
		assert.ErrorContains(t, err, "invalid token issuer")
	})

	t.Run("wrong audience", func(t *testing.T) {
		other := NewVerifier(config.AuthConfig{JWTSecret: "secret", Audience: "service_role"})
		_, err := other.Verify(token)
		assert.ErrorContains(t, err, "invalid token audience")
	})

	t.Run("expired", func(t *testing.T) {
		expired, err := v.Issue(id, -time.Minute)
		require.NoError(t, err)
		_, err = v.Verify(expired)
		assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))
	})

	t.Run("unsigned", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user_1"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = v.Verify(raw)
		assert.True(t, errors.IsType(err, errors.ErrorTypeUnauthorized))
	})

	t.Run("missing subject", func(t *testing.T) {
		raw, err := v.Issue(Identity{Email: "x@example.com"}, time.Hour)
		require.NoError(t, err)
		_, err = v.Verify(raw)
		assert.ErrorContains(t, err, "missing subject")
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := v.VerifyHeader("")
		assert.ErrorContains(t, err, "missing bearer token")
	})
}

func TestVerifierDevIdentity(t *testing.T) {
	v := NewVerifier(config.AuthConfig{DevIdentity: "dev", DevEmail: "dev@example.com"})
	id, ok := v.DevIdentity()
	require.True(t, ok)
	assert.Equal(t, "dev", id.ID)

	_, ok = NewVerifier(config.AuthConfig{}).DevIdentity()
	assert.False(t, ok)
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{ID: "u1"})
	id, ok := IdentityFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", id.ID)
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	id := Identity{ID: "user_1", Email: "jane@example.com"}

	_, err := store.Get(ctx, id.ID)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))

	acc, err := store.Ensure(ctx, id, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, acc.Credits)
	assert.Equal(t, "jane@example.com", acc.Email)

	// A second sign-in keeps the balance and the known email
	acc, err = store.Ensure(ctx, Identity{ID: id.ID}, 99)
	require.NoError(t, err)
	assert.Equal(t, 10, acc.Credits)
	assert.Equal(t, "jane@example.com", acc.Email)

	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	acc, err = store.RecordMission(ctx, Mission{IdentityID: id.ID, ResumeID: "r1",
		ScoreBefore: types.Float(42), ScoreAfter: types.Float(81), CreatedAt: first})
	require.NoError(t, err)
	assert.Equal(t, 9, acc.Credits)

	acc, err = store.RecordMission(ctx, Mission{IdentityID: id.ID, ResumeID: "r2", CreatedAt: first.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 8, acc.Credits)

	missions, err := store.Missions(ctx, id.ID, 10)
	require.NoError(t, err)
	require.Len(t, missions, 2)
	assert.Equal(t, "r2", missions[0].ResumeID)
	assert.Nil(t, missions[0].ScoreBefore)
	assert.Equal(t, "r1", missions[1].ResumeID)
	assert.Equal(t, 81.0, *missions[1].ScoreAfter)
	assert.Equal(t, MissionTypeOptimization, missions[1].Type)

	_, err = store.RecordMission(ctx, Mission{IdentityID: "nobody", ResumeID: "r"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "data", "accounts.db"), errors.Nop())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	exerciseStore(t, store)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	store, err := OpenPostgres(context.Background(), url, 2, errors.Nop())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, _ = store.pool.Exec(context.Background(), `DELETE FROM missions; DELETE FROM accounts;`)
	exerciseStore(t, store)
}

func TestOpenSelectsDriver(t *testing.T) {
	store, err := Open(context.Background(), config.DatabaseConfig{}, errors.Nop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = Open(context.Background(), config.DatabaseConfig{URL: "sqlite://" + filepath.Join(t.TempDir(), "a.db")}, errors.Nop())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open(context.Background(), config.DatabaseConfig{URL: "mysql://localhost/db"}, errors.Nop())
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func newTestGate(store Store, starting int) *Gate {
	cfg := &config.Config{
		Mission: config.MissionConfig{StartingCredits: starting},
		Redis:   config.RedisConfig{CreditTTL: time.Minute},
	}
	return NewGate(store, cache.NewMemory(), cfg, errors.Nop())
}

func TestGateSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	gate := newTestGate(store, 3)

	_, err := gate.Resolve(ctx, Identity{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnauthorized))

	session, err := gate.Resolve(ctx, Identity{ID: "u1", Email: "u1@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 3, session.Balance())
	assert.True(t, session.CanOptimize())

	result := &types.OptimizationResult{ATS: &types.ATSSection{GapAnalysis: &types.GapAnalysis{
		ATSScoreBefore: types.Float(42), ATSScoreAfter: types.Float(81),
	}}}
	assert.Equal(t, 2, session.Decrement())
	session.Complete("r1", result)
	assert.Equal(t, 1, session.Pending())

	// The stored balance has not moved until the mission is written
	acc, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, acc.Credits)

	credits, err := session.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, credits)
	assert.Equal(t, 0, session.Pending())

	balance, err := gate.Balance(ctx, session.Identity())
	require.NoError(t, err)
	assert.Equal(t, 2, balance)

	history, err := gate.History(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history.Missions, 1)
	assert.Equal(t, 1, history.Analytics.TotalMissions)
	assert.Equal(t, 39.0, *history.Analytics.BestDelta)
}

func TestSessionDecrementFloorsAtZero(t *testing.T) {
	gate := newTestGate(NewMemoryStore(), 0)
	session, err := gate.Resolve(context.Background(), Identity{ID: "u1"})
	require.NoError(t, err)

	assert.False(t, session.CanOptimize())
	assert.Equal(t, 0, session.Decrement())
}

type failingStore struct {
	*MemoryStore
	fail bool
}

func (f *failingStore) RecordMission(ctx context.Context, m Mission) (*Account, error) {
	if f.fail {
		return nil, storeFailed("unavailable", nil)
	}
	return f.MemoryStore.RecordMission(ctx, m)
}

func TestReconcileKeepsMissionsThatFailedToWrite(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: NewMemoryStore(), fail: true}
	gate := newTestGate(store, 5)

	session, err := gate.Resolve(ctx, Identity{ID: "u1"})
	require.NoError(t, err)
	session.Decrement()
	session.Complete("r1", nil)

	_, err = session.Reconcile(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, session.Pending())
	assert.Equal(t, 4, session.Balance())

	store.fail = false
	credits, err := session.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, credits)
	assert.Equal(t, 0, session.Pending())
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Analytics{}, Summarize(nil))

	now := time.Now()
	a := Summarize([]Mission{
		{ScoreBefore: types.Float(50), ScoreAfter: types.Float(60), CreatedAt: now},
		{ScoreBefore: types.Float(42), ScoreAfter: types.Float(81), CreatedAt: now.Add(-time.Hour)},
		{CreatedAt: now.Add(-2 * time.Hour)},
	})
	assert.Equal(t, 3, a.TotalMissions)
	assert.Equal(t, 3, a.CreditsBurned)
	assert.Equal(t, 39.0, *a.BestDelta)
	assert.InDelta(t, 70.5, *a.AverageAfter, 0.001)
	assert.Equal(t, now, *a.LastActivity)
}
