package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"missioncontrol/internal/account"
	"missioncontrol/internal/errors"
	"missioncontrol/internal/mission"
	"missioncontrol/internal/panels"
	"missioncontrol/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestWorkspace(t *testing.T, ts *testServer, owner string) *Workspace {
	t.Helper()
	ws, err := ts.newWorkspace(context.Background(), account.Identity{ID: owner, Email: owner + "@example.com"})
	require.NoError(t, err)
	ts.Workspaces.Add(ws)
	return ws
}

func TestWorkspaceStoreCloseIdle(t *testing.T) {
	ts := newTestServer(t)
	stale := openTestWorkspace(t, ts, "user_1")
	fresh := openTestWorkspace(t, ts, "user_2")

	stale.mu.Lock()
	stale.lastSeen = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	events, _ := stale.Subscribe()

	closed := ts.Workspaces.closeIdle(time.Now().Add(-time.Minute))
	assert.Equal(t, 1, closed)

	_, err := ts.Workspaces.Get(stale.ID, stale.Owner)
	assert.Error(t, err)
	_, err = ts.Workspaces.Get(fresh.ID, fresh.Owner)
	assert.NoError(t, err)

	assert.True(t, stale.Machine.Snapshot().Closed)
	_, open := <-events
	assert.False(t, open, "subscribers are released on close")
}

func TestWorkspaceStoreStats(t *testing.T) {
	ts := newTestServer(t)
	a := openTestWorkspace(t, ts, "user_1")
	openTestWorkspace(t, ts, "user_2")
	require.NoError(t, a.Machine.BindResume(types.ResumeHandle{ResumeID: "r1", TrackingToken: "t1"}))

	stats := ts.Workspaces.Stats()
	assert.Equal(t, 2, stats.Open)
	assert.Equal(t, 1, stats.ByStage[string(mission.StageUpload)])
	assert.Equal(t, 1, stats.ByStage[string(mission.StageReady)])
}

func TestWorkspaceEventsFollowMachine(t *testing.T) {
	ts := newTestServer(t)
	ws := openTestWorkspace(t, ts, "user_1")

	events, unsubscribe := ws.Subscribe()
	defer unsubscribe()

	require.NoError(t, ws.Machine.BindResume(types.ResumeHandle{ResumeID: "r1", TrackingToken: "t1"}))

	// Binding also triggers a spyglass fetch, so events of both kinds may arrive
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			assert.Equal(t, ws.ID, ev.Workspace)
			if ev.Type == string(mission.EventResumeBound) {
				require.NotNil(t, ev.Mission)
				assert.Equal(t, mission.StageReady, ev.Mission.Stage)
				return
			}
		case <-deadline:
			t.Fatal("no resume_bound event")
		}
	}
}

func TestWorkspaceNotifyBroadcastsSpyglass(t *testing.T) {
	ts := newTestServer(t)
	ws := openTestWorkspace(t, ts, "user_1")
	require.NoError(t, ws.Machine.BindResume(types.ResumeHandle{ResumeID: "r1", TrackingToken: "t1"}))

	events, unsubscribe := ws.Subscribe()
	defer unsubscribe()

	_, err := ws.Spyglass.Refresh(context.Background())
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == EventSpyglassUpdated {
				require.NotNil(t, ev.Spyglass)
				assert.Equal(t, "r1", ev.Spyglass.ResumeID)
				return
			}
		case <-deadline:
			t.Fatal("no spyglass_updated event")
		}
	}
}

func TestWorkspaceCloseIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	ws := openTestWorkspace(t, ts, "user_1")

	ws.Close()
	ws.Close()

	events, _ := ws.Subscribe()
	_, open := <-events
	assert.False(t, open)
}

const testJobDescription = "Senior Go engineer, Kubernetes, distributed systems"

func optimizeTestWorkspace(t *testing.T, ws *Workspace) {
	t.Helper()
	require.NoError(t, ws.Machine.BindResume(types.ResumeHandle{ResumeID: "r1", TrackingToken: "t1"}))
	_, err := ws.Optimize(context.Background(), testJobDescription)
	require.NoError(t, err)
	assert.Equal(t, 2, ws.session.Balance())
}

func storedCredits(t *testing.T, store account.Store, id string) int {
	t.Helper()
	acc, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	return acc.Credits
}

func TestOptimizeChargesCreditWhenSpyglassFails(t *testing.T) {
	store := &slowStore{Store: account.NewMemoryStore(), delay: 50 * time.Millisecond}
	ts := newTestServerWithStore(t, store)
	ts.api.spyglassErr = errors.NewNetworkError(errors.ErrCodeBackendUnavailable, "tracking down", nil)
	ws := openTestWorkspace(t, ts, "user_1")

	optimizeTestWorkspace(t, ws)

	require.Eventually(t, func() bool {
		acc, err := store.Get(context.Background(), "user_1")
		return err == nil && acc.Credits == 2
	}, 2*time.Second, 10*time.Millisecond)

	ws.Close()
	assert.Equal(t, 0, ws.session.Pending())
	assert.Equal(t, 1, store.writeCount())
	assert.False(t, ws.Spyglass.HasData())
}

func TestOptimizeHydratesSpyglassWhenCreditWriteFails(t *testing.T) {
	store := &slowStore{Store: account.NewMemoryStore(), failures: 1}
	ts := newTestServerWithStore(t, store)
	ts.api.spyglassDelay = 50 * time.Millisecond
	ws := openTestWorkspace(t, ts, "user_1")

	optimizeTestWorkspace(t, ws)

	require.Eventually(t, ws.Spyglass.HasData, 2*time.Second, 10*time.Millisecond)
	snap := ws.Spyglass.Snapshot()
	assert.Empty(t, snap.Error)
	require.NotNil(t, snap.Stats)
	assert.Equal(t, "r1", snap.Stats.ResumeID)

	require.Eventually(t, func() bool {
		return store.writeCount() == 1 && ws.session.Pending() == 1
	}, 2*time.Second, 10*time.Millisecond, "the failed mission stays queued")
	assert.Equal(t, 3, storedCredits(t, store, "user_1"))
}

func TestCloseFlushesPendingMissions(t *testing.T) {
	store := &slowStore{Store: account.NewMemoryStore(), failures: 1}
	ts := newTestServerWithStore(t, store)
	ws := openTestWorkspace(t, ts, "user_1")

	optimizeTestWorkspace(t, ws)
	ws.Close()

	assert.Equal(t, 2, store.writeCount())
	assert.Equal(t, 0, ws.session.Pending())
	assert.Equal(t, 2, storedCredits(t, store, "user_1"))

	history, err := ts.Gate.History(context.Background(), "user_1", 10)
	require.NoError(t, err)
	require.Len(t, history.Missions, 1)
	assert.Equal(t, "r1", history.Missions[0].ResumeID)
}

func TestOptimizeKeepsResultCourses(t *testing.T) {
	ts := newTestServer(t)
	ws := openTestWorkspace(t, ts, "user_1")

	optimizeTestWorkspace(t, ws)
	ws.Close()

	assert.Equal(t, 0, ts.api.courseCalls(), "courses load only on explicit refresh")
	view, err := ws.Panel(types.AgentAffiliate)
	require.NoError(t, err)
	assert.Equal(t, panels.NewAffiliateView(nil), view)
}

func TestRefreshCoursesReplacesAffiliatePanel(t *testing.T) {
	ts := newTestServer(t)
	ws := openTestWorkspace(t, ts, "user_1")
	optimizeTestWorkspace(t, ws)

	refreshed, err := ws.RefreshCourses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ts.api.courseCalls())

	view, err := ws.Panel(types.AgentAffiliate)
	require.NoError(t, err)
	assert.Equal(t, refreshed, view)
}

// forgettingNotifier records the resumes it is told to forget
type forgettingNotifier struct {
	mu     sync.Mutex
	forgot []string
}

func (n *forgettingNotifier) Notify(context.Context, string, *types.SpyglassStats, *types.SpyglassStats) error {
	return nil
}

func (n *forgettingNotifier) Forget(resumeID string) {
	n.mu.Lock()
	n.forgot = append(n.forgot, resumeID)
	n.mu.Unlock()
}

func (n *forgettingNotifier) forgotten() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.forgot...)
}

func TestWorkspaceForgetsReplacedResumes(t *testing.T) {
	ts := newTestServer(t)
	notifier := &forgettingNotifier{}
	ts.Notifier = notifier
	ws := openTestWorkspace(t, ts, "user_1")

	require.NoError(t, ws.Machine.BindResume(types.ResumeHandle{ResumeID: "r1", TrackingToken: "t1"}))
	require.NoError(t, ws.Machine.BindResume(types.ResumeHandle{ResumeID: "r2", TrackingToken: "t2"}))
	assert.Equal(t, []string{"r1"}, notifier.forgotten())

	ws.Machine.Reset()
	assert.Equal(t, []string{"r1", "r2"}, notifier.forgotten())

	require.NoError(t, ws.Machine.BindResume(types.ResumeHandle{ResumeID: "r3", TrackingToken: "t3"}))
	ws.Close()
	assert.Equal(t, []string{"r1", "r2", "r3"}, notifier.forgotten())
}
