package types

// Routing describes how the orchestrator classified a chat message
type Routing struct {
	PrimaryAgent    string `json:"primary_agent"`
	IntentSummary   string `json:"intent_summary"`
	ResponsePreview string `json:"response_preview"`
	RequiresResume  *bool  `json:"requires_resume,omitempty"`
}

// ChatResponse is the backend's reply to a chat turn
type ChatResponse struct {
	SessionID      string  `json:"session_id"`
	Routing        Routing `json:"routing"`
	Agent          string  `json:"agent"`
	Message        string  `json:"message"`
	RequiresAction *bool   `json:"requires_action,omitempty"`
}

// CoursesResponse is the affiliate course listing for a resume
type CoursesResponse = AffiliateSection
