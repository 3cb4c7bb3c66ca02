package server

import (
	"context"
	"sync"
	"time"

	"missioncontrol/internal/account"
	"missioncontrol/internal/backend"
	"missioncontrol/internal/chat"
	mcErrors "missioncontrol/internal/errors"
	"missioncontrol/internal/mission"
	"missioncontrol/internal/observability"
	"missioncontrol/internal/panels"
	"missioncontrol/internal/spyglass"
	"missioncontrol/internal/types"
	"missioncontrol/internal/utils"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// EventSpyglassUpdated is sent when a newer spyglass snapshot replaces the held one
const EventSpyglassUpdated = "spyglass_updated"

const workspaceEventBuffer = 16

const (
	hydrateTimeout = 2 * time.Minute
	flushTimeout   = 10 * time.Second
)

// WorkspaceEvent is one message on a workspace's event stream
type WorkspaceEvent struct {
	Type      string             `json:"type"`
	Workspace string             `json:"workspace"`
	Mission   *mission.Snapshot  `json:"mission,omitempty"`
	Spyglass  *spyglass.Snapshot `json:"spyglass,omitempty"`
	At        time.Time          `json:"at"`
}

// WorkspaceInfo summarises a workspace for API responses
type WorkspaceInfo struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Mission   mission.Snapshot `json:"mission"`
	Minimized bool             `json:"chat_minimized"`
	Tab       panels.Tab       `json:"spyglass_tab"`
}

// Workspace is one browser tab's mission with its panels, chat and spyglass refresher
type Workspace struct {
	ID        string
	Owner     account.Identity
	CreatedAt time.Time

	Machine     *mission.Machine
	Spyglass    *spyglass.Refresher
	Chat        *chat.Session
	SpyglassTab *panels.SpyglassPanel

	api         backend.API
	session     *account.Session
	notifier    spyglass.Notifier
	om          *observability.ObservabilityManager
	logger      *mcErrors.Logger
	defaultUser types.UploadRequest
	defaultTone string
	maxUpload   int64

	mu          sync.Mutex
	lastSeen    time.Time
	panelsFor   *types.OptimizationResult
	interview   *panels.InterviewPanel
	ghostwriter *panels.GhostwriterView
	affiliate   *panels.AffiliateView
	subs        map[int]chan WorkspaceEvent
	nextSub     int
	closed      bool
	wg          sync.WaitGroup
}

// newWorkspace resolves the owner's credit session and wires a fresh mission around it
func (s *Server) newWorkspace(ctx context.Context, owner account.Identity) (*Workspace, error) {
	session, err := s.Gate.Resolve(ctx, owner)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger := s.Logger.With("workspace", id, "identity_id", owner.ID)
	ws := &Workspace{
		ID:          id,
		Owner:       owner,
		CreatedAt:   time.Now().UTC(),
		SpyglassTab: panels.NewSpyglassPanel(),
		api:         s.API,
		session:     session,
		notifier:    s.Notifier,
		om:          s.Observability,
		logger:      logger,
		defaultTone: panels.DefaultTone,
		lastSeen:    time.Now(),
		subs:        make(map[int]chan WorkspaceEvent),
	}

	interval := time.Duration(0)
	if s.AppConfig != nil {
		interval = s.AppConfig.Mission.SpyglassInterval
		ws.maxUpload = s.AppConfig.Mission.MaxUploadSize
		ws.defaultUser = types.UploadRequest{
			UserEmail: s.AppConfig.Mission.DefaultUserEmail,
			UserName:  s.AppConfig.Mission.DefaultUserName,
		}
		if s.AppConfig.Mission.GhostwriterTone != "" {
			ws.defaultTone = s.AppConfig.Mission.GhostwriterTone
		}
	}

	ws.Spyglass = spyglass.NewRefresher(s.API, logger,
		spyglass.WithInterval(interval),
		spyglass.WithNotifier(ws),
		spyglass.WithRecorder(s.Observability))
	ws.Machine = mission.New(s.API, session, logger,
		mission.WithSpyglass(ws.Spyglass),
		mission.WithRecorder(s.Observability))
	ws.Chat = chat.NewSession(s.API, ws.Machine, logger, chat.WithRecorder(s.Observability))

	events, stop := ws.Machine.Subscribe()
	ws.wg.Add(1)
	go ws.pump(events, stop)
	ws.Spyglass.Start()

	logger.Info("Workspace opened", "credits", session.Balance())
	return ws, nil
}

// pump forwards machine events to workspace subscribers until the machine closes
func (w *Workspace) pump(events <-chan mission.Event, stop func()) {
	defer w.wg.Done()
	defer stop()
	for ev := range events {
		snap := ev.Snapshot
		w.broadcast(WorkspaceEvent{Type: string(ev.Type), Mission: &snap})
	}
}

// Subscribe returns the workspace event stream. Slow subscribers miss events.
func (w *Workspace) Subscribe() (<-chan WorkspaceEvent, func()) {
	ch := make(chan WorkspaceEvent, workspaceEventBuffer)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := w.nextSub
	w.nextSub++
	w.subs[id] = ch
	w.mu.Unlock()

	return ch, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if sub, ok := w.subs[id]; ok {
			delete(w.subs, id)
			close(sub)
		}
	}
}

func (w *Workspace) broadcast(ev WorkspaceEvent) {
	ev.Workspace = w.ID
	ev.At = time.Now().UTC()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Notify implements spyglass.Notifier. New views go to the outbound notifier and the event stream.
func (w *Workspace) Notify(ctx context.Context, resumeID string, prev, next *types.SpyglassStats) error {
	snap := w.Spyglass.Snapshot()
	w.broadcast(WorkspaceEvent{Type: EventSpyglassUpdated, Spyglass: &snap})
	if w.notifier == nil {
		return nil
	}
	return w.notifier.Notify(ctx, resumeID, prev, next)
}

// Forget implements spyglass.Forgetter for the outbound notifier
func (w *Workspace) Forget(resumeID string) {
	if forgetter, ok := w.notifier.(spyglass.Forgetter); ok {
		forgetter.Forget(resumeID)
	}
}

// touch records activity for the idle sweeper
func (w *Workspace) touch() {
	w.mu.Lock()
	w.lastSeen = time.Now()
	w.mu.Unlock()
}

func (w *Workspace) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}

// Info returns the workspace summary
func (w *Workspace) Info() WorkspaceInfo {
	return WorkspaceInfo{
		ID:        w.ID,
		CreatedAt: w.CreatedAt,
		Mission:   w.Machine.Snapshot(),
		Minimized: w.Chat.Minimized(),
		Tab:       w.SpyglassTab.Tab(),
	}
}

// Upload validates a resume, sends it to the backend and binds the returned handle
func (w *Workspace) Upload(ctx context.Context, name string, data []byte) (*types.ResumeHandle, error) {
	file, err := utils.ValidateResume(name, data, w.maxUpload)
	if err != nil {
		return nil, err
	}

	req := w.defaultUser
	req.Filename = file.Name
	if w.Owner.Email != "" {
		req.UserEmail = w.Owner.Email
	}
	if w.Owner.Name != "" {
		req.UserName = w.Owner.Name
	}

	handle, err := w.api.Upload(ctx, file, req)
	if err != nil {
		return nil, err
	}
	if handle.Filename == "" {
		handle.Filename = file.Name
	}
	if err := w.Machine.BindResume(*handle); err != nil {
		return nil, err
	}
	return handle, nil
}

// Optimize runs the pipeline. On success the credit spend is reconciled and the
// spyglass stats are hydrated in the background.
func (w *Workspace) Optimize(ctx context.Context, jobDescription string) (*types.OptimizationResult, error) {
	result, err := w.Machine.StartOptimization(ctx, jobDescription)
	if err != nil {
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	resumeID := w.Machine.ResumeID()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.hydrate(bg, resumeID)
	}()
	return result, nil
}

// hydrate runs the post-optimize steps. Each has its own deadline, so a failed
// spyglass fetch never cancels the credit write and the other way round.
func (w *Workspace) hydrate(ctx context.Context, resumeID string) {
	var g errgroup.Group
	g.Go(func() error {
		fetchCtx, cancel := context.WithTimeout(ctx, hydrateTimeout)
		defer cancel()
		_, err := w.Spyglass.Refresh(fetchCtx)
		return err
	})

	if err := w.reconcile(ctx, hydrateTimeout); err != nil {
		w.logger.LogError(err, "Failed to reconcile credits", "resume_id", resumeID, "pending", w.session.Pending())
	}
	if err := g.Wait(); err != nil {
		w.logger.LogError(err, "Spyglass hydration failed", "resume_id", resumeID)
	}
}

// reconcile writes queued missions and reloads the stored balance
func (w *Workspace) reconcile(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	credits, err := w.session.Reconcile(ctx)
	if err != nil {
		return err
	}
	w.logger.Debug("Credits reconciled", "credits", credits)
	return nil
}

// syncPanelsLocked rebuilds the stateful panels when the mission holds a different result
func (w *Workspace) syncPanelsLocked() *types.OptimizationResult {
	res := w.Machine.Result()
	if res == w.panelsFor && w.interview != nil {
		return res
	}
	w.panelsFor = res
	var section *types.InterviewSection
	if res != nil {
		section = res.Interview
	}
	w.interview = panels.NewInterviewPanel(section, gradeRecorder{grader: w.api, om: w.om})
	w.ghostwriter = nil
	w.affiliate = nil
	return res
}

// Interview returns the interview panel for the current result
func (w *Workspace) Interview() *panels.InterviewPanel {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.syncPanelsLocked()
	return w.interview
}

// Panel renders the view for one agent
func (w *Workspace) Panel(agent types.AgentID) (any, error) {
	if !agent.HasPanel() {
		return nil, mcErrors.NewValidationError(mcErrors.ErrCodeInvalidRequest, "unknown agent", nil).
			WithContext("agent", string(agent))
	}

	w.mu.Lock()
	res := w.syncPanelsLocked()
	interview := w.interview
	ghost := w.ghostwriter
	aff := w.affiliate
	w.mu.Unlock()

	switch agent {
	case types.AgentATS:
		return panels.NewATSView(res, w.Machine.ResumeID(), w.api), nil
	case types.AgentInterviewer:
		return interview.View(), nil
	case types.AgentGhostwriter:
		if ghost != nil {
			return *ghost, nil
		}
		var section *types.GhostwriterSection
		if res != nil {
			section = res.Ghostwriter
		}
		return panels.NewGhostwriterView(section), nil
	case types.AgentAffiliate:
		if aff != nil {
			return *aff, nil
		}
		var section *types.AffiliateSection
		if res != nil {
			section = res.Affiliate
		}
		return panels.NewAffiliateView(section), nil
	default:
		return w.SpyglassTab.Render(w.Spyglass.Snapshot().Stats, time.Now()), nil
	}
}

// ATSSource returns the LaTeX source of the optimized resume
func (w *Workspace) ATSSource() (string, error) {
	view := panels.NewATSView(w.Machine.Result(), w.Machine.ResumeID(), w.api)
	var clip panels.MemoryClipboard
	if err := view.CopySource(&clip); err != nil {
		return "", err
	}
	return clip.Text(), nil
}

// ATSDownload returns the optimized PDF link
func (w *Workspace) ATSDownload() (string, error) {
	return panels.NewATSView(w.Machine.Result(), w.Machine.ResumeID(), w.api).Download()
}

// RegenerateQuestions replaces the interview questions with a fresh set
func (w *Workspace) RegenerateQuestions(ctx context.Context) (panels.InterviewView, error) {
	snap := w.Machine.Snapshot()
	if snap.Handle == nil {
		return panels.InterviewView{}, mcErrors.NewValidationError(mcErrors.ErrCodeMissingResume, "no resume is bound", nil)
	}
	panel := w.Interview()
	err := panel.Regenerate(ctx, w.api, types.QuestionsRequest{
		ResumeID:       snap.Handle.ResumeID,
		JobDescription: snap.JobDescription,
	})
	return panel.View(), err
}

// RegeneratePost asks the ghostwriter for a post in another tone
func (w *Workspace) RegeneratePost(ctx context.Context, tone string) (panels.GhostwriterView, error) {
	if tone == "" {
		tone = w.defaultTone
	}
	view, err := panels.Regenerate(ctx, w.api, w.Machine.ResumeID(), tone)
	if err != nil {
		return panels.GhostwriterView{}, err
	}
	w.mu.Lock()
	w.syncPanelsLocked()
	w.ghostwriter = &view
	w.mu.Unlock()
	return view, nil
}

// RefreshCourses reloads the affiliate course list on request. The fetched list is
// shown until a new result replaces it.
func (w *Workspace) RefreshCourses(ctx context.Context) (panels.AffiliateView, error) {
	view, err := panels.RefreshCourses(ctx, w.api, w.Machine.ResumeID())
	if err != nil {
		return panels.AffiliateView{}, err
	}
	w.mu.Lock()
	w.syncPanelsLocked()
	w.affiliate = &view
	w.mu.Unlock()
	return view, nil
}

// Close stops the mission and the refresher and releases subscribers
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.Machine.Close()
	w.Spyglass.Stop()
	w.wg.Wait()

	// Missions whose write failed earlier still owe their credit
	if w.session.Pending() > 0 {
		if err := w.reconcile(context.Background(), flushTimeout); err != nil {
			w.logger.LogError(err, "Failed to flush pending missions", "pending", w.session.Pending())
		}
	}

	w.mu.Lock()
	subs := w.subs
	w.subs = make(map[int]chan WorkspaceEvent)
	w.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
	w.Spyglass.Bind("")
	w.logger.Info("Workspace closed")
}

// gradeRecorder counts grade outcomes
type gradeRecorder struct {
	grader panels.Grader
	om     *observability.ObservabilityManager
}

func (g gradeRecorder) Grade(ctx context.Context, req types.GradeRequest) (*types.GradeResult, error) {
	res, err := g.grader.Grade(ctx, req)
	g.om.RecordGrade(ctx, err)
	return res, err
}

// WorkspaceStore holds open workspaces and closes those left idle
type WorkspaceStore struct {
	mu         sync.RWMutex
	workspaces map[string]*Workspace
	ttl        time.Duration
	logger     *mcErrors.Logger
	stop       chan struct{}
	stopOnce   sync.Once
}

// WorkspaceStats is reported on /stats
type WorkspaceStats struct {
	Open       int            `json:"open"`
	ByStage    map[string]int `json:"by_stage"`
	TTLSeconds float64        `json:"ttl_seconds"`
}

// NewWorkspaceStore creates a store. A positive ttl starts the idle sweeper.
func NewWorkspaceStore(ttl time.Duration, logger *mcErrors.Logger) *WorkspaceStore {
	s := &WorkspaceStore{
		workspaces: make(map[string]*Workspace),
		ttl:        ttl,
		logger:     logger,
		stop:       make(chan struct{}),
	}
	if ttl > 0 {
		go s.sweep()
	}
	return s
}

// Add registers a workspace
func (s *WorkspaceStore) Add(ws *Workspace) {
	s.mu.Lock()
	s.workspaces[ws.ID] = ws
	s.mu.Unlock()
}

// Get returns the owner's workspace. Other identities' workspaces are reported as missing.
func (s *WorkspaceStore) Get(id string, owner account.Identity) (*Workspace, error) {
	s.mu.RLock()
	ws, ok := s.workspaces[id]
	s.mu.RUnlock()
	if !ok || ws.Owner.ID != owner.ID {
		return nil, mcErrors.NewValidationError(mcErrors.ErrCodeNotFound, "workspace not found", nil).
			WithContext("workspace", id)
	}
	ws.touch()
	return ws, nil
}

// Remove closes and forgets the owner's workspace
func (s *WorkspaceStore) Remove(id string, owner account.Identity) error {
	s.mu.Lock()
	ws, ok := s.workspaces[id]
	if !ok || ws.Owner.ID != owner.ID {
		s.mu.Unlock()
		return mcErrors.NewValidationError(mcErrors.ErrCodeNotFound, "workspace not found", nil).
			WithContext("workspace", id)
	}
	delete(s.workspaces, id)
	s.mu.Unlock()

	ws.Close()
	return nil
}

// Stats counts open workspaces by mission stage
func (s *WorkspaceStore) Stats() WorkspaceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := WorkspaceStats{
		Open:       len(s.workspaces),
		ByStage:    make(map[string]int),
		TTLSeconds: s.ttl.Seconds(),
	}
	for _, ws := range s.workspaces {
		stats.ByStage[string(ws.Machine.Stage())]++
	}
	return stats
}

// sweep periodically closes workspaces idle for longer than the ttl
func (s *WorkspaceStore) sweep() {
	interval := min(s.ttl/2, 5*time.Minute)
	ticker := time.NewTicker(max(interval, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.closeIdle(time.Now().Add(-s.ttl))
		}
	}
}

// closeIdle closes every workspace last used before cutoff
func (s *WorkspaceStore) closeIdle(cutoff time.Time) int {
	var idle []*Workspace
	s.mu.Lock()
	for id, ws := range s.workspaces {
		if ws.idleSince().Before(cutoff) {
			idle = append(idle, ws)
			delete(s.workspaces, id)
		}
	}
	s.mu.Unlock()

	for _, ws := range idle {
		ws.Close()
	}
	if len(idle) > 0 {
		s.logger.Debug("Closed idle workspaces", "count", len(idle))
	}
	return len(idle)
}

// Close stops the sweeper and closes every workspace
func (s *WorkspaceStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	all := make([]*Workspace, 0, len(s.workspaces))
	for _, ws := range s.workspaces {
		all = append(all, ws)
	}
	s.workspaces = make(map[string]*Workspace)
	s.mu.Unlock()

	for _, ws := range all {
		ws.Close()
	}
}
