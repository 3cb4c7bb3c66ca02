// Package mission tracks one workspace's optimization mission: the bound resume,
// the stage it is in, the result once it arrives and which agent panel is shown.
//
// Stages move Upload -> Ready -> Processing -> Results, and Reset returns to Upload.
// Exactly one optimize call can be in flight; a response that arrives after a reset,
// a rebind or Close is discarded.
package mission

import (
	"context"
	"strings"
	"sync"
	"time"

	"missioncontrol/internal/errors"
	"missioncontrol/internal/types"
)

// Stage of a mission
type Stage string

const (
	StageUpload     Stage = "UPLOAD"
	StageReady      Stage = "READY"
	StageProcessing Stage = "PROCESSING"
	StageResults    Stage = "RESULTS"
)

// AgentStatus is the progress indicator shown next to each agent
type AgentStatus string

const (
	StatusIdle       AgentStatus = "idle"
	StatusProcessing AgentStatus = "processing"
	StatusDone       AgentStatus = "done"
	StatusError      AgentStatus = "error"
)

// ErrOptimizationInFlight rejects a second optimize or a rebind while one is running
var ErrOptimizationInFlight = errors.NewValidationError(errors.ErrCodeBusy, "an optimization is already in flight", nil)

// Optimizer runs the backend pipeline
type Optimizer interface {
	Optimize(ctx context.Context, req types.OptimizeRequest) (*types.OptimizationResult, error)
}

// Credits is the displayed credit balance that gates optimize
type Credits interface {
	Balance() int
	Decrement() int
	// Complete queues the finished mission for reconciliation with the account store
	Complete(resumeID string, result *types.OptimizationResult)
}

// SpyglassSource holds view tracking stats for the bound resume
type SpyglassSource interface {
	Bind(resumeID string)
	HasData() bool
	Prefetch(ctx context.Context)
}

// Recorder observes finished optimizations
type Recorder interface {
	RecordOptimization(ctx context.Context, duration time.Duration, err error)
}

// Option customises a Machine
type Option func(*Machine)

// WithSpyglass wires the source used for lazy spyglass fetches
func WithSpyglass(s SpyglassSource) Option {
	return func(m *Machine) { m.spyglass = s }
}

// WithRecorder wires an optimization recorder
func WithRecorder(r Recorder) Option {
	return func(m *Machine) { m.recorder = r }
}

// Machine is the mission state for one workspace
type Machine struct {
	optimizer Optimizer
	credits   Credits
	spyglass  SpyglassSource
	recorder  Recorder
	logger    *errors.Logger

	mu             sync.Mutex
	stage          Stage
	handle         *types.ResumeHandle
	result         *types.OptimizationResult
	jobDescription string
	activeAgent    types.AgentID
	statuses       map[types.AgentID]AgentStatus
	lastErr        error
	generation     uint64
	closed         bool

	subs    map[int]chan Event
	nextSub int
}

// New creates a machine in the Upload stage
func New(optimizer Optimizer, credits Credits, logger *errors.Logger, opts ...Option) *Machine {
	m := &Machine{
		optimizer: optimizer,
		credits:   credits,
		logger:    logger,
		stage:     StageUpload,
		statuses:  idleStatuses(),
		subs:      make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func idleStatuses() map[types.AgentID]AgentStatus {
	statuses := make(map[types.AgentID]AgentStatus, len(types.PanelAgents))
	for _, agent := range types.PanelAgents {
		statuses[agent] = StatusIdle
	}
	return statuses
}

func errClosed() error {
	return errors.NewValidationError(errors.ErrCodeInvalidStage, "workspace is closed", nil)
}

// BindResume stores an uploaded resume, replacing any previous one and its result
func (m *Machine) BindResume(handle types.ResumeHandle) error {
	if strings.TrimSpace(handle.ResumeID) == "" {
		return errors.NewValidationError(errors.ErrCodeMissingResume, "upload returned no resume id", nil)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errClosed()
	}
	if m.stage == StageProcessing {
		m.mu.Unlock()
		return ErrOptimizationInFlight
	}

	h := handle
	m.handle = &h
	m.result = nil
	m.activeAgent = ""
	m.statuses = idleStatuses()
	m.lastErr = nil
	m.generation++
	m.stage = StageReady
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if m.spyglass != nil {
		m.spyglass.Bind(handle.ResumeID)
	}
	m.logger.Info("Resume bound", "resume_id", handle.ResumeID, "generation", snap.Generation)
	m.publish(EventResumeBound, snap)
	return nil
}

// StartOptimization dispatches the one optimize call for the bound resume.
// Precondition failures issue no call.
func (m *Machine) StartOptimization(ctx context.Context, jobDescription string) (*types.OptimizationResult, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errClosed()
	}
	if m.stage == StageProcessing {
		m.mu.Unlock()
		return nil, ErrOptimizationInFlight
	}
	if m.handle == nil {
		m.mu.Unlock()
		return nil, errors.NewValidationError(errors.ErrCodeMissingResume, "upload a resume first", nil)
	}
	if strings.TrimSpace(jobDescription) == "" {
		m.mu.Unlock()
		return nil, errors.NewValidationError(errors.ErrCodeMissingJobDescription, "job description is required", nil)
	}
	if m.stage != StageReady {
		m.mu.Unlock()
		return nil, errors.NewValidationError(errors.ErrCodeInvalidStage, "mission is not ready to optimize", nil).
			WithContext("stage", string(m.stage))
	}
	if m.credits.Balance() <= 0 {
		m.mu.Unlock()
		return nil, errors.NewValidationError(errors.ErrCodeInsufficientCredits, "insufficient credits", nil)
	}

	m.jobDescription = jobDescription
	m.stage = StageProcessing
	m.statuses[types.AgentATS] = StatusProcessing
	m.lastErr = nil
	gen := m.generation
	resumeID := m.handle.ResumeID
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.publish(EventStageChanged, snap)
	m.logger.Info("Optimization started", "resume_id", resumeID, "generation", gen)

	start := time.Now()
	result, err := m.optimizer.Optimize(ctx, types.OptimizeRequest{ResumeID: resumeID, JobDescription: jobDescription})
	duration := time.Since(start)
	if err != nil {
		err = asNetworkError(err)
	}
	if m.recorder != nil {
		m.recorder.RecordOptimization(ctx, duration, err)
	}

	m.mu.Lock()
	if m.closed || m.generation != gen {
		m.mu.Unlock()
		m.logger.Debug("Discarding optimization response for a replaced mission",
			"resume_id", resumeID, "generation", gen)
		return nil, errors.NewValidationError(errors.ErrCodeInvalidStage, "mission changed while optimizing", err)
	}

	if err != nil {
		m.stage = StageReady
		m.statuses[types.AgentATS] = StatusError
		m.lastErr = err
		snap = m.snapshotLocked()
		m.mu.Unlock()

		m.logger.LogError(err, "Optimization failed", "resume_id", resumeID, "duration_ms", duration.Milliseconds())
		m.publish(EventOptimizationFailed, snap)
		return nil, err
	}

	m.result = result
	m.stage = StageResults
	m.activeAgent = types.AgentATS
	for _, agent := range types.PanelAgents {
		if result.HasAgentData(agent) {
			m.statuses[agent] = StatusDone
		} else {
			m.statuses[agent] = StatusIdle
		}
	}
	m.mu.Unlock()

	m.credits.Decrement()
	m.credits.Complete(resumeID, result)

	snap = m.Snapshot()
	m.logger.Info("Optimization completed",
		"resume_id", resumeID,
		"duration_ms", duration.Milliseconds(),
		"score_before", types.FormatScore(scoreBefore(result)),
		"score_after", types.FormatScore(scoreAfter(result)),
		"credits_left", snap.Credits)
	m.publish(EventResultsReady, snap)
	return result, nil
}

// asNetworkError keeps classified errors and folds anything else into the recoverable class
func asNetworkError(err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.NewNetworkError(errors.ErrCodeBackendUnavailable, "optimization failed", err)
}

func scoreBefore(r *types.OptimizationResult) *float64 {
	if gap := r.Gap(); gap != nil && gap.ATSScoreBefore != nil {
		return gap.ATSScoreBefore
	}
	if r != nil && r.Summary != nil {
		return r.Summary.ScoreBefore
	}
	return nil
}

func scoreAfter(r *types.OptimizationResult) *float64 {
	if gap := r.Gap(); gap != nil && gap.ATSScoreAfter != nil {
		return gap.ATSScoreAfter
	}
	if r != nil && r.Summary != nil {
		return r.Summary.ScoreAfter
	}
	return nil
}

// SelectAgentView switches the rendered panel. Entering Spyglass without stats starts a fetch.
func (m *Machine) SelectAgentView(ctx context.Context, agent types.AgentID) error {
	if !agent.HasPanel() {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "unknown agent", nil).
			WithContext("agent", string(agent))
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errClosed()
	}
	if m.stage != StageResults {
		m.mu.Unlock()
		return errors.NewValidationError(errors.ErrCodeInvalidStage, "no results to view yet", nil).
			WithContext("stage", string(m.stage))
	}
	m.activeAgent = agent
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if agent == types.AgentSpyglass && m.spyglass != nil && !m.spyglass.HasData() {
		m.spyglass.Prefetch(ctx)
	}
	m.publish(EventAgentSelected, snap)
	return nil
}

// Reset clears the mission and returns to Upload
func (m *Machine) Reset() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.handle = nil
	m.result = nil
	m.jobDescription = ""
	m.activeAgent = ""
	m.statuses = idleStatuses()
	m.lastErr = nil
	m.generation++
	m.stage = StageUpload
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if m.spyglass != nil {
		m.spyglass.Bind("")
	}
	m.logger.Debug("Mission reset", "generation", snap.Generation)
	m.publish(EventReset, snap)
}

// Close tears the machine down. Late responses are discarded and subscribers are released.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.generation++
	subs := m.subs
	m.subs = make(map[int]chan Event)
	m.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}

// Result returns the current result, or nil
func (m *Machine) Result() *types.OptimizationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result
}

// Handle returns the bound resume, or nil
func (m *Machine) Handle() *types.ResumeHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return nil
	}
	h := *m.handle
	return &h
}

// ResumeID returns the bound resume id, or ""
func (m *Machine) ResumeID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return ""
	}
	return m.handle.ResumeID
}

// Stage returns the current stage
func (m *Machine) Stage() Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stage
}
