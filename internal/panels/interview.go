package panels

import (
	"context"
	"strings"
	"sync"

	"missioncontrol/internal/errors"
	"missioncontrol/internal/types"
)

// EmptyInterview is shown when the result carries no questions
const EmptyInterview = "No questions generated."

// Grader scores an interview answer
type Grader interface {
	Grade(ctx context.Context, req types.GradeRequest) (*types.GradeResult, error)
}

// QuestionGenerator produces a fresh question set for a resume
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, req types.QuestionsRequest) (*types.InterviewSection, error)
}

// InterviewPanel holds the practice state for one result's questions.
// Only one grade request may be in flight at a time.
type InterviewPanel struct {
	mu sync.Mutex

	grader     Grader
	section    types.InterviewSection
	selected   int
	answer     string
	showModel  bool
	grade      *types.GradeResult
	lastErr    error
	grading    bool
	selectSeq  uint64
	generating bool
}

// NewInterviewPanel creates the panel. A nil section yields the empty state.
func NewInterviewPanel(section *types.InterviewSection, grader Grader) *InterviewPanel {
	p := &InterviewPanel{grader: grader}
	if section != nil {
		p.section = *section
	}
	return p
}

// Select switches to question i and drops everything tied to the previous one
func (p *InterviewPanel) Select(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i < 0 || i >= len(p.section.Questions) {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "question index out of range", nil).
			WithContext("index", i)
	}
	p.selected = i
	p.clearLocked()
	return nil
}

func (p *InterviewPanel) clearLocked() {
	p.answer = ""
	p.grade = nil
	p.lastErr = nil
	p.showModel = false
	p.selectSeq++
}

// SetAnswer replaces the draft answer
func (p *InterviewPanel) SetAnswer(answer string) {
	p.mu.Lock()
	p.answer = answer
	p.mu.Unlock()
}

// ToggleModelAnswer flips whether the model answer is revealed and returns the new state
func (p *InterviewPanel) ToggleModelAnswer() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.showModel = !p.showModel
	return p.showModel
}

// SubmitAnswer sends the draft answer for grading.
// On failure the previous grade stays and the error is kept for display.
// A grade that arrives after the user switched question is dropped.
func (p *InterviewPanel) SubmitAnswer(ctx context.Context) (*types.GradeResult, error) {
	p.mu.Lock()
	if len(p.section.Questions) == 0 {
		p.mu.Unlock()
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "there are no questions to answer", nil)
	}
	if p.grading {
		p.mu.Unlock()
		return nil, errors.NewValidationError(errors.ErrCodeBusy, "an answer is already being graded", nil)
	}
	answer := strings.TrimSpace(p.answer)
	if answer == "" {
		p.mu.Unlock()
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "answer is empty", nil)
	}
	q := p.section.Questions[p.selected]
	seq := p.selectSeq
	p.grading = true
	p.lastErr = nil
	p.mu.Unlock()

	res, err := p.grader.Grade(ctx, types.GradeRequest{
		Question:    q.Question,
		UserAnswer:  answer,
		ModelAnswer: q.ModelAnswer,
		Category:    string(q.Category),
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	p.grading = false
	if seq != p.selectSeq {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidStage, "question changed while grading", nil)
	}
	if err != nil {
		p.lastErr = err
		return nil, err
	}
	p.grade = res
	return res, nil
}

// Regenerate replaces the question set with a fresh one from the backend
func (p *InterviewPanel) Regenerate(ctx context.Context, gen QuestionGenerator, req types.QuestionsRequest) error {
	p.mu.Lock()
	if p.generating || p.grading {
		p.mu.Unlock()
		return errors.NewValidationError(errors.ErrCodeBusy, "interview panel is busy", nil)
	}
	p.generating = true
	p.mu.Unlock()

	section, err := gen.GenerateQuestions(ctx, req)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.generating = false
	if err != nil {
		p.lastErr = err
		return err
	}
	p.section = *section
	p.selected = 0
	p.clearLocked()
	return nil
}

// QuestionView is one question in the list
type QuestionView struct {
	Index           int    `json:"index"`
	ID              string `json:"id,omitempty"`
	Question        string `json:"question"`
	Category        string `json:"category"`
	Difficulty      string `json:"difficulty"`
	DifficultyColor string `json:"difficulty_color"`
	WhyAsking       string `json:"why_asking,omitempty"`
	RedFlags        string `json:"red_flags,omitempty"`
}

// GradeView is a rendered grade
type GradeView struct {
	Score          string   `json:"score"`
	Verdict        string   `json:"verdict"`
	VerdictColor   string   `json:"verdict_color"`
	Strengths      []string `json:"strengths"`
	Weaknesses     []string `json:"weaknesses"`
	CoachingNote   string   `json:"coaching_note,omitempty"`
	ImprovedAnswer string   `json:"improved_answer,omitempty"`
}

// InterviewView is the interviewer panel
type InterviewView struct {
	Empty           bool           `json:"empty"`
	EmptyMessage    string         `json:"empty_message,omitempty"`
	Readiness       string         `json:"readiness,omitempty"`
	HighestRisk     string         `json:"highest_risk,omitempty"`
	Questions       []QuestionView `json:"questions"`
	Selected        int            `json:"selected"`
	Answer          string         `json:"answer"`
	ShowModelAnswer bool           `json:"show_model_answer"`
	ModelAnswer     string         `json:"model_answer,omitempty"`
	Grading         bool           `json:"grading"`
	Grade           *GradeView     `json:"grade,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// View renders the current state
func (p *InterviewPanel) View() InterviewView {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.section.Questions) == 0 {
		return InterviewView{Empty: true, EmptyMessage: EmptyInterview, Questions: []QuestionView{}}
	}

	view := InterviewView{
		Readiness:       Clean(p.section.OverallReadinessAssessment),
		HighestRisk:     Clean(p.section.HighestRiskArea),
		Questions:       make([]QuestionView, 0, len(p.section.Questions)),
		Selected:        p.selected,
		Answer:          p.answer,
		ShowModelAnswer: p.showModel,
		Grading:         p.grading,
	}
	for i, q := range p.section.Questions {
		view.Questions = append(view.Questions, QuestionView{
			Index:           i,
			ID:              q.ID,
			Question:        Clean(q.Question),
			Category:        Humanize(string(q.Category)),
			Difficulty:      Humanize(string(q.Difficulty)),
			DifficultyColor: DifficultyColor(q.Difficulty),
			WhyAsking:       Clean(q.WhyAsking),
			RedFlags:        Clean(q.RedFlagsToWatch),
		})
	}
	if p.showModel {
		view.ModelAnswer = Clean(p.section.Questions[p.selected].ModelAnswer)
	}
	if p.grade != nil {
		view.Grade = newGradeView(p.grade)
	}
	if p.lastErr != nil {
		view.Error = errorMessage(p.lastErr)
	}
	return view
}

func newGradeView(g *types.GradeResult) *GradeView {
	return &GradeView{
		Score:          types.FormatScore(&g.Score),
		Verdict:        Humanize(string(g.Verdict)),
		VerdictColor:   VerdictColor(g.Verdict),
		Strengths:      defaultSanitizer.CleanAll(g.Strengths),
		Weaknesses:     defaultSanitizer.CleanAll(g.Weaknesses),
		CoachingNote:   Clean(g.CoachingNote),
		ImprovedAnswer: Clean(g.ImprovedAnswerSnippet),
	}
}

func errorMessage(err error) string {
	if appErr, ok := errors.As(err); ok {
		return appErr.Message
	}
	return err.Error()
}
