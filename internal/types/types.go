// Package types holds the wire contract shared with the agent backend.
//
// Every result section is optional: the backend may omit any agent's output and the
// panels render an empty state for it. Sections are pointers so absence is explicit.
package types

import (
	"strconv"
	"time"
)

// AgentID names one of the backend agents
type AgentID string

const (
	AgentATS          AgentID = "ATS_SENTINEL"
	AgentSpyglass     AgentID = "SPYGLASS"
	AgentInterviewer  AgentID = "INTERVIEWER"
	AgentGhostwriter  AgentID = "GHOSTWRITER"
	AgentAffiliate    AgentID = "AFFILIATE"
	AgentOrchestrator AgentID = "ORCHESTRATOR"
)

// PanelAgents are the agents that own a result panel, in display order
var PanelAgents = []AgentID{AgentATS, AgentSpyglass, AgentInterviewer, AgentGhostwriter, AgentAffiliate}

// Valid reports whether the id is a known agent
func (a AgentID) Valid() bool {
	switch a {
	case AgentATS, AgentSpyglass, AgentInterviewer, AgentGhostwriter, AgentAffiliate, AgentOrchestrator:
		return true
	}
	return false
}

// HasPanel reports whether the agent has a result view
func (a AgentID) HasPanel() bool {
	return a.Valid() && a != AgentOrchestrator
}

// ResumeHandle identifies an uploaded resume
type ResumeHandle struct {
	ResumeID      string `json:"resume_id"`
	TrackingToken string `json:"tracking_token"`
	TrackingURL   string `json:"tracking_url,omitempty"`
	Preview       string `json:"preview"`
	Filename      string `json:"filename,omitempty"`
	TextLength    int    `json:"text_length,omitempty"`
}

// CriticalGap is a skill the job wants that the resume lacks
type CriticalGap struct {
	Skill          string `json:"skill"`
	Importance     string `json:"importance"`
	Recommendation string `json:"recommendation"`
}

// GapAnalysis is the ATS agent's scoring of resume against job description
type GapAnalysis struct {
	ATSScoreBefore   *float64      `json:"ats_score_before,omitempty"`
	ATSScoreAfter    *float64      `json:"ats_score_after,omitempty"`
	KeywordsInjected []string      `json:"keywords_injected"`
	KeywordsMissing  []string      `json:"keywords_missing"`
	Strengths        []string      `json:"strengths"`
	CriticalGaps     []CriticalGap `json:"critical_gaps"`
	Roast            string        `json:"roast"`
}

// ATSSection is the ATS agent's output
type ATSSection struct {
	Status      string         `json:"status"`
	ResumeData  map[string]any `json:"resume_data,omitempty"`
	GapAnalysis *GapAnalysis   `json:"gap_analysis,omitempty"`
	LatexSource string         `json:"latex_source"`
	PDFPath     *string        `json:"pdf_path"`
}

// Category of an interview question
type Category string

const (
	CategoryTechnical   Category = "technical"
	CategoryBehavioral  Category = "behavioral"
	CategorySituational Category = "situational"
	CategoryGapProbe    Category = "gap_probe"
	CategoryLeadership  Category = "leadership"
)

// Difficulty of an interview question
type Difficulty string

const (
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyKiller Difficulty = "killer"
)

// InterviewQuestion is one generated question with its model answer
type InterviewQuestion struct {
	ID              string     `json:"id"`
	Question        string     `json:"question"`
	Category        Category   `json:"category"`
	Difficulty      Difficulty `json:"difficulty"`
	WhyAsking       string     `json:"why_asking"`
	ModelAnswer     string     `json:"model_answer"`
	RedFlagsToWatch string     `json:"red_flags_to_watch"`
}

// InterviewSection is the interviewer agent's output
type InterviewSection struct {
	SessionID                  string              `json:"session_id,omitempty"`
	Questions                  []InterviewQuestion `json:"questions"`
	OverallReadinessAssessment string              `json:"overall_readiness_assessment"`
	HighestRiskArea            string              `json:"highest_risk_area"`
}

// Verdict of a graded answer
type Verdict string

const (
	VerdictReject      Verdict = "reject"
	VerdictWeak        Verdict = "weak"
	VerdictAcceptable  Verdict = "acceptable"
	VerdictStrong      Verdict = "strong"
	VerdictExceptional Verdict = "exceptional"
)

// Valid reports whether the verdict is one the grader returns
func (v Verdict) Valid() bool {
	switch v {
	case VerdictReject, VerdictWeak, VerdictAcceptable, VerdictStrong, VerdictExceptional:
		return true
	}
	return false
}

// GradeResult is the grader's assessment of one answer
type GradeResult struct {
	Score                 float64  `json:"score"`
	Verdict               Verdict  `json:"verdict"`
	Strengths             []string `json:"strengths"`
	Weaknesses            []string `json:"weaknesses"`
	CoachingNote          string   `json:"coaching_note"`
	ImprovedAnswerSnippet string   `json:"improved_answer_snippet"`
}

// GhostwriterSection is the ghostwriter agent's output
type GhostwriterSection struct {
	PrimaryPost     string   `json:"primary_post"`
	LongFormVersion string   `json:"long_form_version"`
	HeadlineOptions []string `json:"headline_options"`
	Hashtags        []string `json:"hashtags"`
	BestTimeToPost  string   `json:"best_time_to_post"`
	TwitterThread   []string `json:"twitter_thread"`
}

// Priority of a course recommendation
type Priority string

const (
	PriorityCritical   Priority = "critical"
	PriorityHigh       Priority = "high"
	PriorityMedium     Priority = "medium"
	PriorityNiceToHave Priority = "nice_to_have"
)

// Valid reports whether the priority is a known level
func (p Priority) Valid() bool {
	return p.Rank() < 4
}

// Rank orders priorities from most to least urgent. Unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityNiceToHave:
		return 3
	}
	return 4
}

// Course is one affiliate learning recommendation
type Course struct {
	Skill            string   `json:"skill"`
	CourseTitle      string   `json:"course_title"`
	Platform         string   `json:"platform"`
	Instructor       string   `json:"instructor"`
	Duration         string   `json:"duration"`
	Price            string   `json:"price"`
	Priority         Priority `json:"priority"`
	AffiliateURL     string   `json:"affiliate_url"`
	WhyCritical      string   `json:"why_critical"`
	TimeToCompetency string   `json:"time_to_competency"`
}

// AffiliateSection is the affiliate agent's output
type AffiliateSection struct {
	Courses         []Course `json:"courses"`
	LearningRoadmap string   `json:"learning_roadmap"`
	ROIStatement    string   `json:"roi_statement"`
}

// Summary condenses the pipeline outcome
type Summary struct {
	ScoreBefore      *float64 `json:"score_before,omitempty"`
	ScoreAfter       *float64 `json:"score_after,omitempty"`
	KeywordsInjected int      `json:"keywords_injected"`
	PDFReady         bool     `json:"pdf_ready"`
	QuestionsReady   int      `json:"questions_ready"`
}

// OptimizationResult is the full multi-agent pipeline output
type OptimizationResult struct {
	Pipeline    string              `json:"pipeline"`
	ATS         *ATSSection         `json:"ats,omitempty"`
	Interview   *InterviewSection   `json:"interview,omitempty"`
	Ghostwriter *GhostwriterSection `json:"ghostwriter,omitempty"`
	Affiliate   *AffiliateSection   `json:"affiliate,omitempty"`
	Summary     *Summary            `json:"summary,omitempty"`
}

// Gap returns the gap analysis if the ATS section carried one
func (r *OptimizationResult) Gap() *GapAnalysis {
	if r == nil || r.ATS == nil {
		return nil
	}
	return r.ATS.GapAnalysis
}

// PDFReady reports whether the optimized PDF can be downloaded
func (r *OptimizationResult) PDFReady() bool {
	if r == nil {
		return false
	}
	if r.Summary != nil {
		return r.Summary.PDFReady
	}
	return r.ATS != nil && r.ATS.PDFPath != nil && *r.ATS.PDFPath != ""
}

// HasAgentData reports whether the result carries output for the agent.
// Spyglass data is never part of the result and is fetched separately.
func (r *OptimizationResult) HasAgentData(agent AgentID) bool {
	if r == nil {
		return false
	}
	switch agent {
	case AgentATS:
		return r.ATS != nil
	case AgentInterviewer:
		return r.Interview != nil
	case AgentGhostwriter:
		return r.Ghostwriter != nil
	case AgentAffiliate:
		return r.Affiliate != nil
	}
	return false
}

// HealthStatus is the backend's /health response
type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Agents  int    `json:"agents"`
}

// ProbeState classifies backend reachability
type ProbeState string

const (
	ProbeOnline   ProbeState = "ONLINE"
	ProbeDegraded ProbeState = "DEGRADED"
	ProbeOffline  ProbeState = "OFFLINE"
)

// Valid reports whether the state is a known probe outcome
func (s ProbeState) Valid() bool {
	switch s {
	case ProbeOnline, ProbeDegraded, ProbeOffline:
		return true
	}
	return false
}

// ProbeResult is the outcome of a health probe
type ProbeResult struct {
	State   ProbeState    `json:"state"`
	Latency time.Duration `json:"latency"`
	Version string        `json:"version,omitempty"`
	Agents  int           `json:"agents,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// FormatScore renders a score without trailing zeros, or "--" when absent
func FormatScore(v *float64) string {
	if v == nil {
		return "--"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Float returns a pointer to v. Handy for building fixtures.
func Float(v float64) *float64 {
	return &v
}
