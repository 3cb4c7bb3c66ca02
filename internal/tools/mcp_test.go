package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"missioncontrol/internal/account"
	"missioncontrol/internal/cache"
	"missioncontrol/internal/config"
	"missioncontrol/internal/errors"
	"missioncontrol/internal/panels"
	"missioncontrol/internal/types"
	"missioncontrol/internal/utils"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu        sync.Mutex
	uploads   []types.UploadRequest
	optimized int
}

func (f *fakeAPI) Upload(_ context.Context, file *utils.ResumeFile, req types.UploadRequest) (*types.ResumeHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, req)
	return &types.ResumeHandle{ResumeID: "r1", TrackingToken: "t1", Filename: file.Name}, nil
}

func (f *fakeAPI) Optimize(_ context.Context, req types.OptimizeRequest) (*types.OptimizationResult, error) {
	f.mu.Lock()
	f.optimized++
	f.mu.Unlock()
	return &types.OptimizationResult{
		ATS: &types.ATSSection{GapAnalysis: &types.GapAnalysis{
			ATSScoreBefore: types.Float(42),
			ATSScoreAfter:  types.Float(81),
		}},
		Summary: &types.Summary{ScoreBefore: types.Float(42), ScoreAfter: types.Float(81), PDFReady: true},
	}, nil
}

func (f *fakeAPI) Grade(_ context.Context, req types.GradeRequest) (*types.GradeResult, error) {
	return &types.GradeResult{Score: 6, Verdict: types.VerdictAcceptable, CoachingNote: "Quantify impact."}, nil
}

func (f *fakeAPI) Spyglass(_ context.Context, resumeID string) (*types.SpyglassStats, error) {
	return &types.SpyglassStats{ResumeID: resumeID, TotalViews: 4, UniqueViewers: 2, GeoBreakdown: map[string]int{"Berlin, DE": 3, "Paris, FR": 1}}, nil
}

func (f *fakeAPI) Chat(_ context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	return &types.ChatResponse{SessionID: "s1", Agent: "GHOSTWRITER", Message: "echo: " + req.Message}, nil
}

func (f *fakeAPI) Courses(_ context.Context, resumeID string) (*types.AffiliateSection, error) {
	return &types.AffiliateSection{Courses: []types.Course{
		{Skill: "Docker", CourseTitle: "Containers", Priority: types.PriorityNiceToHave},
		{Skill: "Kubernetes", CourseTitle: "K8s in Anger", Priority: types.PriorityCritical},
	}}, nil
}

func (f *fakeAPI) GenerateQuestions(context.Context, types.QuestionsRequest) (*types.InterviewSection, error) {
	return &types.InterviewSection{}, nil
}

func (f *fakeAPI) LinkedInPost(context.Context, types.LinkedInRequest) (*types.GhostwriterSection, error) {
	return &types.GhostwriterSection{}, nil
}

func (f *fakeAPI) PDFLink(resumeID string) string {
	return "https://backend.test/api/resume/" + resumeID + "/pdf"
}

func (f *fakeAPI) Probe(context.Context) types.ProbeResult {
	return types.ProbeResult{State: types.ProbeOnline, Latency: 12 * time.Millisecond, Version: "1.4.0", Agents: 6}
}

var testImpl = &mcp.Implementation{Name: "missioncontrol-test", Version: "0.1.0"}

func mcpSession(t *testing.T, credits int) (*fakeAPI, *account.Gate, *mcp.ClientSession) {
	t.Helper()
	cfg := &config.Config{
		Mission: config.MissionConfig{StartingCredits: credits, MaxUploadSize: 1 << 20},
		Redis:   config.RedisConfig{CreditTTL: time.Minute},
	}
	logger := errors.Nop()
	api := &fakeAPI{}
	gate := account.NewGate(account.NewMemoryStore(), cache.NewMemory(), cfg, logger)
	tb := New(api, gate, account.Identity{ID: "user_1", Email: "jane@example.com"}, cfg, logger)

	srv := tb.NewServer("test")
	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return api, gate, session
}

// callTool returns the text of the first content block and whether the tool reported an error
func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text, result.IsError
}

func TestListTools(t *testing.T) {
	_, _, session := mcpSession(t, 3)

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"mission_upload", "mission_optimize", "mission_grade", "mission_spyglass",
		"mission_chat", "mission_courses", "mission_health",
	}, names)
}

func TestUploadThenOptimize(t *testing.T) {
	api, gate, session := mcpSession(t, 3)

	text, isErr := callTool(t, session, "mission_upload", map[string]any{
		"path": filepath.Join("..", "utils", "testdata", "resume.pdf"),
	})
	require.False(t, isErr, text)
	var handle types.ResumeHandle
	require.NoError(t, json.Unmarshal([]byte(text), &handle))
	assert.Equal(t, "r1", handle.ResumeID)
	require.Len(t, api.uploads, 1)
	assert.Equal(t, "jane@example.com", api.uploads[0].UserEmail)

	text, isErr = callTool(t, session, "mission_optimize", map[string]any{
		"resume_id":       "r1",
		"job_description": "Backend Engineer, Go, Kubernetes",
	})
	require.False(t, isErr, text)
	var out struct {
		Credits int            `json:"credits"`
		ATS     panels.ATSView `json:"ats"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	assert.Equal(t, 2, out.Credits)
	assert.Equal(t, "42", out.ATS.ScoreBefore)
	assert.Equal(t, "81", out.ATS.ScoreAfter)

	history, err := gate.History(context.Background(), "user_1", 10)
	require.NoError(t, err)
	require.Len(t, history.Missions, 1)
	assert.Equal(t, "r1", history.Missions[0].ResumeID)
}

func TestOptimizeRejections(t *testing.T) {
	tests := []struct {
		name    string
		credits int
		args    map[string]any
		message string
	}{
		{name: "blank job description", credits: 3, args: map[string]any{"resume_id": "r1", "job_description": "  "}, message: "job description is required"},
		{name: "no resume", credits: 3, args: map[string]any{"job_description": "Go"}, message: "no resume id"},
		{name: "no credits", credits: 0, args: map[string]any{"resume_id": "r1", "job_description": "Go"}, message: "insufficient credits"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, _, session := mcpSession(t, tt.credits)
			text, isErr := callTool(t, session, "mission_optimize", tt.args)
			assert.True(t, isErr)
			assert.Contains(t, text, tt.message)
			assert.Zero(t, api.optimized, "no backend call is made")
		})
	}
}

func TestGradeAndChat(t *testing.T) {
	_, _, session := mcpSession(t, 3)

	text, isErr := callTool(t, session, "mission_grade", map[string]any{"question": "Why Go?", "answer": "  "})
	assert.True(t, isErr)
	assert.Contains(t, text, "answer is empty")

	text, isErr = callTool(t, session, "mission_grade", map[string]any{"question": "Why Go?", "answer": "Simplicity.", "format": "markdown"})
	require.False(t, isErr, text)
	assert.Contains(t, text, "Quantify impact.")

	text, isErr = callTool(t, session, "mission_chat", map[string]any{"message": " hello "})
	require.False(t, isErr, text)
	var reply types.ChatResponse
	require.NoError(t, json.Unmarshal([]byte(text), &reply))
	assert.Equal(t, "echo: hello", reply.Message)
	assert.Equal(t, "s1", reply.SessionID)
}

func TestSpyglassCoursesAndHealth(t *testing.T) {
	_, _, session := mcpSession(t, 3)

	text, isErr := callTool(t, session, "mission_spyglass", map[string]any{"resume_id": "r1", "tab": "geo"})
	require.False(t, isErr, text)
	var view panels.SpyglassView
	require.NoError(t, json.Unmarshal([]byte(text), &view))
	assert.Equal(t, panels.Tab("geo"), view.Tab)
	assert.Equal(t, 4, view.TotalViews)

	text, isErr = callTool(t, session, "mission_spyglass", map[string]any{"resume_id": "r1", "tab": "radar"})
	assert.True(t, isErr, text)

	text, isErr = callTool(t, session, "mission_courses", map[string]any{"resume_id": "r1"})
	require.False(t, isErr, text)
	var courses panels.AffiliateView
	require.NoError(t, json.Unmarshal([]byte(text), &courses))
	require.Len(t, courses.Courses, 2)
	assert.Equal(t, "Kubernetes", courses.Courses[0].Skill, "critical courses sort first")

	text, isErr = callTool(t, session, "mission_health", map[string]any{"format": "yaml"})
	require.False(t, isErr, text)
	assert.True(t, strings.Contains(text, "ONLINE"))
}
