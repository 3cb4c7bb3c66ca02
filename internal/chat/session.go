// Package chat implements the conversational overlay in front of the agent swarm.
package chat

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"missioncontrol/internal/errors"
	"missioncontrol/internal/panels"
	"missioncontrol/internal/types"

	"github.com/google/uuid"
)

// Role of a message author
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry
type Message struct {
	ID             string        `json:"id"`
	Role           Role          `json:"role"`
	Content        string        `json:"content"`
	Agent          types.AgentID `json:"agent,omitempty"`
	Intent         string        `json:"intent,omitempty"`
	RequiresAction bool          `json:"requires_action,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// Chatter sends a chat turn to the backend
type Chatter interface {
	Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error)
}

// ResumeSource reports the currently bound resume, or "" when none is
type ResumeSource interface {
	ResumeID() string
}

// Recorder observes finished chat turns
type Recorder interface {
	RecordChat(ctx context.Context, agent types.AgentID, err error)
}

// Option customises a Session
type Option func(*Session)

// WithRecorder reports chat turns to r
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is one chat transcript. One turn may be in flight at a time.
type Session struct {
	client   Chatter
	resume   ResumeSource
	logger   *errors.Logger
	recorder Recorder
	now      func() time.Time

	mu          sync.Mutex
	messages    []Message
	sessionID   string
	busy        bool
	typingAgent types.AgentID
	minimized   bool
}

// NewSession opens a transcript with a welcome message that depends on whether a resume
// is bound. resume may be nil when the chat runs without a mission.
func NewSession(client Chatter, resume ResumeSource, logger *errors.Logger, opts ...Option) *Session {
	s := &Session{
		client:      client,
		resume:      resume,
		logger:      logger,
		now:         time.Now,
		typingAgent: types.AgentOrchestrator,
	}
	for _, opt := range opts {
		opt(s)
	}

	welcome := welcomeWithoutResume
	if s.resumeID() != "" {
		welcome = welcomeWithResume
	}
	s.messages = []Message{{
		ID:        "welcome",
		Role:      RoleAssistant,
		Content:   welcome,
		Agent:     types.AgentOrchestrator,
		Timestamp: s.now(),
	}}
	return s
}

func (s *Session) resumeID() string {
	if s.resume == nil {
		return ""
	}
	return s.resume.ResumeID()
}

// Send posts a message and waits for the reply.
// A transport failure appends a connection-lost reply and returns the error alongside it.
func (s *Session) Send(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, errors.NewValidationError(errors.ErrCodeInvalidRequest, "message is empty", nil)
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return Message{}, errors.NewValidationError(errors.ErrCodeBusy, "waiting for the previous reply", nil)
	}
	s.busy = true
	s.typingAgent = types.AgentOrchestrator
	s.messages = append(s.messages, Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   text,
		Timestamp: s.now(),
	})
	req := types.ChatRequest{Message: text, SessionID: s.sessionID, ResumeID: s.resumeID()}
	s.mu.Unlock()

	resp, err := s.client.Chat(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false

	if err != nil {
		s.logger.LogError(err, "Chat turn failed", "session_id", req.SessionID)
		msg := Message{
			ID:        uuid.NewString(),
			Role:      RoleAssistant,
			Content:   ConnectionLost,
			Agent:     types.AgentOrchestrator,
			Timestamp: s.now(),
		}
		s.messages = append(s.messages, msg)
		if s.recorder != nil {
			s.recorder.RecordChat(ctx, types.AgentOrchestrator, err)
		}
		return msg, err
	}

	agent := types.AgentID(resp.Agent)
	if !agent.Valid() {
		agent = types.AgentOrchestrator
	}
	if resp.SessionID != "" {
		s.sessionID = resp.SessionID
	}
	s.typingAgent = agent
	msg := Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   panels.PlainText(resp.Message),
		Agent:     agent,
		Intent:    resp.Routing.IntentSummary,
		Timestamp: s.now(),
	}
	if resp.RequiresAction != nil {
		msg.RequiresAction = *resp.RequiresAction
	}
	s.messages = append(s.messages, msg)
	if s.recorder != nil {
		s.recorder.RecordChat(ctx, agent, nil)
	}
	return msg, nil
}

// Messages returns a copy of the transcript
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Busy reports whether a reply is pending
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// TypingAgent is the agent shown in the typing indicator
func (s *Session) TypingAgent() AgentMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Meta(s.typingAgent)
}

// SessionID is the backend conversation id, empty before the first reply
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// SetMinimized collapses or expands the overlay
func (s *Session) SetMinimized(v bool) {
	s.mu.Lock()
	s.minimized = v
	s.mu.Unlock()
}

// Minimized reports whether the overlay is collapsed
func (s *Session) Minimized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minimized
}

// Prompts returns the suggested prompts while the user has not written anything yet
func (s *Session) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.Role == RoleUser {
			return nil
		}
	}
	return slices.Clone(SuggestedPrompts)
}

// Transcript is the serialisable chat state
type Transcript struct {
	SessionID   string    `json:"session_id,omitempty"`
	Messages    []Message `json:"messages"`
	Busy        bool      `json:"busy"`
	TypingAgent AgentMeta `json:"typing_agent"`
	Minimized   bool      `json:"minimized"`
	Prompts     []string  `json:"prompts,omitempty"`
}

// Transcript returns the whole chat state at once
func (s *Session) Transcript() Transcript {
	prompts := s.Prompts()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Transcript{
		SessionID:   s.sessionID,
		Messages:    slices.Clone(s.messages),
		Busy:        s.busy,
		TypingAgent: Meta(s.typingAgent),
		Minimized:   s.minimized,
		Prompts:     prompts,
	}
}
