package mission

import (
	"maps"

	"missioncontrol/internal/errors"
	"missioncontrol/internal/types"
)

// Snapshot is an immutable view of a machine
type Snapshot struct {
	Stage          Stage                         `json:"stage"`
	Handle         *types.ResumeHandle           `json:"handle,omitempty"`
	JobDescription string                        `json:"job_description"`
	ActiveAgent    types.AgentID                 `json:"active_agent,omitempty"`
	Statuses       map[types.AgentID]AgentStatus `json:"statuses"`
	HasResult      bool                          `json:"has_result"`
	PDFReady       bool                          `json:"pdf_ready"`
	Credits        int                           `json:"credits"`
	LastError      *errors.AppError              `json:"last_error,omitempty"`
	Generation     uint64                        `json:"generation"`
	Closed         bool                          `json:"closed"`
}

// Snapshot returns the current state
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	snap := Snapshot{
		Stage:          m.stage,
		JobDescription: m.jobDescription,
		ActiveAgent:    m.activeAgent,
		Statuses:       maps.Clone(m.statuses),
		HasResult:      m.result != nil,
		PDFReady:       m.result.PDFReady(),
		Credits:        m.credits.Balance(),
		Generation:     m.generation,
		Closed:         m.closed,
	}
	if m.handle != nil {
		h := *m.handle
		snap.Handle = &h
	}
	if m.lastErr != nil {
		if appErr, ok := errors.As(m.lastErr); ok {
			snap.LastError = appErr
		}
	}
	return snap
}

// EventType names a state change
type EventType string

const (
	EventResumeBound        EventType = "resume_bound"
	EventStageChanged       EventType = "stage_changed"
	EventResultsReady       EventType = "results_ready"
	EventOptimizationFailed EventType = "optimization_failed"
	EventAgentSelected      EventType = "agent_selected"
	EventReset              EventType = "reset"
)

// Event is a state change with the snapshot taken right after it
type Event struct {
	Type     EventType `json:"type"`
	Snapshot Snapshot  `json:"snapshot"`
}

const subscriberBuffer = 16

// Subscribe returns a channel of state changes and a function to stop receiving them.
// Slow subscribers miss events rather than block the machine. The channel closes on Close.
func (m *Machine) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
}

func (m *Machine) publish(typ EventType, snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- Event{Type: typ, Snapshot: snap}:
		default:
		}
	}
}
