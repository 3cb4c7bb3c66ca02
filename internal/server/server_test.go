package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"missioncontrol/internal/account"
	"missioncontrol/internal/cache"
	"missioncontrol/internal/config"
	"missioncontrol/internal/errors"
	"missioncontrol/internal/types"
	"missioncontrol/internal/utils"

	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret"

// fakeAPI is an in-memory agent backend
type fakeAPI struct {
	mu        sync.Mutex
	uploads   []types.UploadRequest
	optimizes []types.OptimizeRequest
	chats     []types.ChatRequest
	probe     types.ProbeResult
	views     int
	courses   int

	// spyglassErr fails every spyglass call. spyglassDelay holds calls until it passes or ctx ends.
	spyglassErr   error
	spyglassDelay time.Duration
}

func (f *fakeAPI) Upload(_ context.Context, file *utils.ResumeFile, req types.UploadRequest) (*types.ResumeHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, req)
	return &types.ResumeHandle{ResumeID: "r1", TrackingToken: "t1", Preview: "Jane Doe, Go developer", Filename: file.Name}, nil
}

func (f *fakeAPI) Optimize(_ context.Context, req types.OptimizeRequest) (*types.OptimizationResult, error) {
	f.mu.Lock()
	f.optimizes = append(f.optimizes, req)
	f.mu.Unlock()
	pdf := "/tmp/r1.pdf"
	return &types.OptimizationResult{
		Pipeline: "full",
		ATS: &types.ATSSection{
			Status:      "complete",
			LatexSource: `\documentclass{article}`,
			PDFPath:     &pdf,
			GapAnalysis: &types.GapAnalysis{
				ATSScoreBefore:   types.Float(42),
				ATSScoreAfter:    types.Float(81),
				KeywordsInjected: []string{"Go", "Kubernetes"},
				Roast:            "Solid, but hiding the Go.",
			},
		},
		Interview: &types.InterviewSection{
			Questions: []types.InterviewQuestion{{
				ID:          "q1",
				Question:    "How do you size a goroutine pool?",
				Category:    types.CategoryTechnical,
				Difficulty:  types.DifficultyHard,
				ModelAnswer: "Measure first.",
			}},
			OverallReadinessAssessment: "Close",
		},
		Ghostwriter: &types.GhostwriterSection{
			PrimaryPost: "Shipped a thing.",
			Hashtags:    []string{"golang"},
		},
		Summary: &types.Summary{ScoreBefore: types.Float(42), ScoreAfter: types.Float(81), KeywordsInjected: 2, PDFReady: true, QuestionsReady: 1},
	}, nil
}

func (f *fakeAPI) Grade(_ context.Context, req types.GradeRequest) (*types.GradeResult, error) {
	return &types.GradeResult{Score: 7.5, Verdict: types.VerdictStrong, CoachingNote: "Add numbers."}, nil
}

func (f *fakeAPI) Spyglass(ctx context.Context, resumeID string) (*types.SpyglassStats, error) {
	f.mu.Lock()
	delay, failure := f.spyglassDelay, f.spyglassErr
	f.mu.Unlock()
	if err := wait(ctx, delay); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.views++
	return &types.SpyglassStats{ResumeID: resumeID, TotalViews: f.views, UniqueViewers: 1, GeoBreakdown: map[string]int{"Berlin": f.views}}, nil
}

func (f *fakeAPI) Chat(_ context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	f.mu.Lock()
	f.chats = append(f.chats, req)
	f.mu.Unlock()
	return &types.ChatResponse{SessionID: "s1", Agent: "INTERVIEWER", Message: "Let's practice."}, nil
}

func (f *fakeAPI) Courses(_ context.Context, resumeID string) (*types.AffiliateSection, error) {
	f.mu.Lock()
	f.courses++
	f.mu.Unlock()
	return &types.AffiliateSection{Courses: []types.Course{{
		Skill: "Kubernetes", CourseTitle: "K8s in Anger", Priority: types.PriorityHigh,
		AffiliateURL: "https://courses.test/k8s",
	}}}, nil
}

func (f *fakeAPI) GenerateQuestions(_ context.Context, req types.QuestionsRequest) (*types.InterviewSection, error) {
	return &types.InterviewSection{Questions: []types.InterviewQuestion{{ID: "q9", Question: "Why Go?"}}}, nil
}

func (f *fakeAPI) LinkedInPost(_ context.Context, req types.LinkedInRequest) (*types.GhostwriterSection, error) {
	return &types.GhostwriterSection{PrimaryPost: "Post in tone " + req.Tone}, nil
}

func (f *fakeAPI) PDFLink(resumeID string) string {
	return "https://backend.test/api/resume/" + resumeID + "/pdf"
}

func (f *fakeAPI) Probe(context.Context) types.ProbeResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probe
}

func (f *fakeAPI) courseCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.courses
}

// wait sleeps for d unless ctx ends first
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// slowStore delays mission writes and fails the first failures of them
type slowStore struct {
	account.Store
	delay time.Duration

	mu       sync.Mutex
	failures int
	writes   int
}

func (s *slowStore) RecordMission(ctx context.Context, m account.Mission) (*account.Account, error) {
	s.mu.Lock()
	s.writes++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()

	if fail {
		return nil, errors.NewNetworkError(errors.ErrCodeBackendUnavailable, "store unavailable", nil)
	}
	if err := wait(ctx, s.delay); err != nil {
		return nil, err
	}
	return s.Store.RecordMission(ctx, m)
}

func (s *slowStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

type testServer struct {
	*Server
	api     *fakeAPI
	handler http.Handler
}

type serverOption func(*config.Config)

func withDevIdentity(id string) serverOption {
	return func(c *config.Config) {
		c.Auth.DevIdentity = id
		c.Auth.DevEmail = id + "@example.com"
	}
}

func withRateLimit(perMin, burst int) serverOption {
	return func(c *config.Config) {
		c.Server.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: perMin, BurstCapacity: burst, ByIdentity: true}
	}
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	return newTestServerWithStore(t, account.NewMemoryStore(), opts...)
}

func newTestServerWithStore(t *testing.T, store account.Store, opts ...serverOption) *testServer {
	t.Helper()

	cfg := &config.Config{
		Auth:    config.AuthConfig{JWTSecret: testSecret},
		Mission: config.MissionConfig{StartingCredits: 3, MaxUploadSize: 1 << 20, SpyglassInterval: time.Hour},
		Redis:   config.RedisConfig{CreditTTL: time.Minute},
		Server:  config.ServerConfig{APIKeys: []string{"svc-key-0123456789"}},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := errors.Nop()
	api := &fakeAPI{probe: types.ProbeResult{State: types.ProbeOnline, Version: "1.4.0", Agents: 6}}
	gate := account.NewGate(store, cache.NewMemory(), cfg, logger)

	srv := NewServer(cfg, ConfigFromApp(cfg, "test"), Dependencies{
		API:      api,
		Gate:     gate,
		Verifier: account.NewVerifier(cfg.Auth),
	}, logger)
	t.Cleanup(func() {
		srv.Workspaces.Close()
		if srv.RateLimiter != nil {
			srv.RateLimiter.Close()
		}
	})
	return &testServer{Server: srv, api: api, handler: srv.Handler()}
}

func (ts *testServer) token(t *testing.T, id account.Identity) string {
	t.Helper()
	tok, err := ts.Verifier.Issue(id, time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends a request as the holder of token. An empty token sends no credentials.
func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) upload(t *testing.T, wsID, token string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "utils", "testdata", "resume.pdf"))
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "resume.pdf")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/workspaces/"+wsID+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) openWorkspace(t *testing.T, token string) WorkspaceInfo {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/workspaces", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var info WorkspaceInfo
	decodeBody(t, rec, &info)
	return info
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	return resp
}
