package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"missioncontrol/internal/account"
	"missioncontrol/internal/chat"
	"missioncontrol/internal/errors"
	"missioncontrol/internal/mission"
	"missioncontrol/internal/panels"
	"missioncontrol/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Upload r1/t1, optimize against a Go job, see 42 → 81 and the balance drop from 3 to 2.
func TestMissionFlow(t *testing.T) {
	ts := newTestServer(t)
	jane := account.Identity{ID: "user_1", Email: "jane@example.com", Name: "Jane Doe"}
	tok := ts.token(t, jane)

	info := ts.openWorkspace(t, tok)
	assert.Equal(t, mission.StageUpload, info.Mission.Stage)
	assert.Equal(t, 3, info.Mission.Credits)

	ws := "/api/workspaces/" + info.ID

	// Optimizing before a resume is bound is refused
	rec := ts.do(t, http.MethodPost, ws+"/optimize", tok, OptimizeRequest{JobDescription: "Backend Engineer, Go"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := errorOf(t, rec)
	assert.Equal(t, errors.ErrCodeMissingResume, resp.Error)
	assert.Equal(t, string(errors.ErrorTypeValidation), resp.Type)
	assert.False(t, resp.Recoverable)

	rec = ts.upload(t, info.ID, tok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var uploaded struct {
		Handle  types.ResumeHandle `json:"handle"`
		Mission mission.Snapshot   `json:"mission"`
	}
	decodeBody(t, rec, &uploaded)
	assert.Equal(t, "r1", uploaded.Handle.ResumeID)
	assert.Equal(t, "t1", uploaded.Handle.TrackingToken)
	assert.Equal(t, mission.StageReady, uploaded.Mission.Stage)
	require.Len(t, ts.api.uploads, 1)
	assert.Equal(t, "jane@example.com", ts.api.uploads[0].UserEmail)
	assert.Equal(t, "Jane Doe", ts.api.uploads[0].UserName)

	rec = ts.do(t, http.MethodPost, ws+"/optimize", tok, OptimizeRequest{JobDescription: "Backend Engineer, Go, Kubernetes"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var optimized struct {
		Mission mission.Snapshot         `json:"mission"`
		Result  types.OptimizationResult `json:"result"`
	}
	decodeBody(t, rec, &optimized)
	assert.Equal(t, mission.StageResults, optimized.Mission.Stage)
	assert.Equal(t, 2, optimized.Mission.Credits)
	assert.True(t, optimized.Mission.PDFReady)
	assert.Equal(t, "42", types.FormatScore(optimized.Result.Gap().ATSScoreBefore))
	assert.Equal(t, "81", types.FormatScore(optimized.Result.Gap().ATSScoreAfter))

	rec = ts.do(t, http.MethodGet, ws+"/panels/ats_sentinel", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ats panels.ATSView
	decodeBody(t, rec, &ats)
	assert.Equal(t, "42", ats.ScoreBefore)
	assert.Equal(t, "81", ats.ScoreAfter)
	assert.Equal(t, "https://backend.test/api/resume/r1/pdf", ats.DownloadURL)

	rec = ts.do(t, http.MethodGet, ws+"/ats/source", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `\documentclass{article}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, ws+"/ats/pdf", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/resume/r1/pdf")

	// The post-optimize hydration records the mission and settles the balance
	require.Eventually(t, func() bool {
		rec := ts.do(t, http.MethodGet, "/api/account/missions", tok, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		var history account.History
		if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
			return false
		}
		return len(history.Missions) == 1 && history.Missions[0].ResumeID == "r1"
	}, 2*time.Second, 10*time.Millisecond)

	rec = ts.do(t, http.MethodGet, "/api/account", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var acc account.Account
	decodeBody(t, rec, &acc)
	assert.Equal(t, 2, acc.Credits)

	rec = ts.do(t, http.MethodPost, ws+"/reset", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reset mission.Snapshot
	decodeBody(t, rec, &reset)
	assert.Equal(t, mission.StageUpload, reset.Stage)
	assert.Nil(t, reset.Handle)
	assert.False(t, reset.HasResult)
}

func TestInterviewPanelRoutes(t *testing.T) {
	ts := newTestServer(t, withDevIdentity("dev"))
	info := ts.openWorkspace(t, "")
	ws := "/api/workspaces/" + info.ID

	rec := ts.do(t, http.MethodGet, ws+"/panels/interviewer", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view panels.InterviewView
	decodeBody(t, rec, &view)
	assert.True(t, view.Empty)

	require.Equal(t, http.StatusCreated, ts.upload(t, info.ID, "").Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, ws+"/optimize", "", OptimizeRequest{JobDescription: "Go"}).Code)

	rec = ts.do(t, http.MethodPost, ws+"/interview/select", "", SelectQuestionRequest{Index: 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, ws+"/interview/select", "", SelectQuestionRequest{Index: 0})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, ws+"/interview/model-answer", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &view)
	assert.True(t, view.ShowModelAnswer)
	assert.Equal(t, "Measure first.", view.ModelAnswer)

	rec = ts.do(t, http.MethodPost, ws+"/interview/answer", "", AnswerRequest{Answer: "Benchmark, then cap by CPU."})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, ws+"/interview/submit", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view = panels.InterviewView{}
	decodeBody(t, rec, &view)
	require.NotNil(t, view.Grade)
	assert.Equal(t, "7.5", view.Grade.Score)

	rec = ts.do(t, http.MethodPost, ws+"/interview/regenerate", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view = panels.InterviewView{}
	decodeBody(t, rec, &view)
	require.Len(t, view.Questions, 1)
	assert.Equal(t, "q9", view.Questions[0].ID)
}

func TestGhostwriterAndAffiliateRoutes(t *testing.T) {
	ts := newTestServer(t, withDevIdentity("dev"))
	info := ts.openWorkspace(t, "")
	ws := "/api/workspaces/" + info.ID

	require.Equal(t, http.StatusCreated, ts.upload(t, info.ID, "").Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, ws+"/optimize", "", OptimizeRequest{JobDescription: "Go"}).Code)

	rec := ts.do(t, http.MethodGet, ws+"/ghostwriter/primary_post", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Shipped a thing.", rec.Body.String())

	rec = ts.do(t, http.MethodGet, ws+"/ghostwriter/hashtags", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "#golang")

	rec = ts.do(t, http.MethodPost, ws+"/ghostwriter/regenerate", "", ToneRequest{Tone: "technical"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var post panels.GhostwriterView
	decodeBody(t, rec, &post)
	assert.Equal(t, "Post in tone technical", post.PrimaryPost)

	// The regenerated post now backs the panel
	rec = ts.do(t, http.MethodGet, ws+"/panels/GHOSTWRITER", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	post = panels.GhostwriterView{}
	decodeBody(t, rec, &post)
	assert.Equal(t, "Post in tone technical", post.PrimaryPost)

	rec = ts.do(t, http.MethodPost, ws+"/affiliate/refresh", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var aff panels.AffiliateView
	decodeBody(t, rec, &aff)
	require.Len(t, aff.Courses, 1)
	assert.False(t, aff.Empty)
}

func TestSpyglassRoutes(t *testing.T) {
	ts := newTestServer(t, withDevIdentity("dev"))
	info := ts.openWorkspace(t, "")
	ws := "/api/workspaces/" + info.ID

	rec := ts.do(t, http.MethodPost, ws+"/spyglass/refresh", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no resume bound yet")

	require.Equal(t, http.StatusCreated, ts.upload(t, info.ID, "").Code)

	rec = ts.do(t, http.MethodPost, ws+"/spyglass/refresh", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view panels.SpyglassView
	decodeBody(t, rec, &view)
	assert.False(t, view.Empty)
	assert.GreaterOrEqual(t, view.TotalViews, 1)

	rec = ts.do(t, http.MethodPost, ws+"/spyglass/tab", "", TabRequest{Tab: "GEO"})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &view)
	assert.Equal(t, panels.Tab("geo"), view.Tab)

	rec = ts.do(t, http.MethodPost, ws+"/spyglass/tab", "", TabRequest{Tab: "radar"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatRoutes(t *testing.T) {
	ts := newTestServer(t, withDevIdentity("dev"))
	info := ts.openWorkspace(t, "")
	ws := "/api/workspaces/" + info.ID

	rec := ts.do(t, http.MethodPost, ws+"/chat", "", ChatRequest{Message: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, ws+"/chat", "", ChatRequest{Message: "Quiz me on Go"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sent struct {
		Reply      chat.Message    `json:"reply"`
		Transcript chat.Transcript `json:"transcript"`
	}
	decodeBody(t, rec, &sent)
	assert.Equal(t, types.AgentInterviewer, sent.Reply.Agent)
	assert.Equal(t, "Let's practice.", sent.Reply.Content)
	assert.Equal(t, "s1", sent.Transcript.SessionID)

	rec = ts.do(t, http.MethodPost, ws+"/chat/minimize", "", MinimizeRequest{Minimized: true})
	require.Equal(t, http.StatusOK, rec.Code)
	var transcript chat.Transcript
	decodeBody(t, rec, &transcript)
	assert.True(t, transcript.Minimized)

	rec = ts.do(t, http.MethodGet, ws+"/chat?format=markdown", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Quiz me on Go")
}

func TestPanelFormats(t *testing.T) {
	ts := newTestServer(t, withDevIdentity("dev"))
	info := ts.openWorkspace(t, "")
	ws := "/api/workspaces/" + info.ID
	require.Equal(t, http.StatusCreated, ts.upload(t, info.ID, "").Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, ws+"/optimize", "", OptimizeRequest{JobDescription: "Go"}).Code)

	tests := []struct {
		format      string
		status      int
		contentType string
	}{
		{format: "json", status: http.StatusOK, contentType: "application/json"},
		{format: "markdown", status: http.StatusOK, contentType: "text/markdown; charset=utf-8"},
		{format: "yaml", status: http.StatusOK, contentType: "application/yaml"},
		{format: "text", status: http.StatusOK, contentType: "text/plain; charset=utf-8"},
		{format: "pdf", status: http.StatusBadRequest, contentType: "application/json"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, ws+"/panels/ats_sentinel?format="+tt.format, "", nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.contentType, rec.Header().Get("Content-Type"))
			if tt.status == http.StatusOK {
				assert.Contains(t, rec.Body.String(), "81")
			}
		})
	}
}

func TestUnknownAgentPanel(t *testing.T) {
	ts := newTestServer(t, withDevIdentity("dev"))
	info := ts.openWorkspace(t, "")

	rec := ts.do(t, http.MethodGet, "/api/workspaces/"+info.ID+"/panels/orchestrator", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/workspaces/"+info.ID+"/view/nobody", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRejectsNonPDF(t *testing.T) {
	ts := newTestServer(t, withDevIdentity("dev"))
	info := ts.openWorkspace(t, "")

	rec := ts.do(t, http.MethodPost, "/api/workspaces/"+info.ID+"/upload", "", map[string]string{"file": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.api.uploads)
}

func TestMissionsLimitValidation(t *testing.T) {
	ts := newTestServer(t, withDevIdentity("dev"))

	rec := ts.do(t, http.MethodGet, "/api/account/missions?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/account/missions?limit=500", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history account.History
	decodeBody(t, rec, &history)
	assert.Empty(t, history.Missions)
}

func TestHealthAndStats(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	decodeBody(t, rec, &health)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "test", health["version"])

	ts.api.mu.Lock()
	ts.api.probe = types.ProbeResult{State: types.ProbeOffline, Error: "dial tcp: refused"}
	ts.api.mu.Unlock()

	rec = ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = ts.do(t, http.MethodGet, "/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "workspaces"))
}
