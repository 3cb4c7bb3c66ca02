package chat

import "missioncontrol/internal/types"

// AgentMeta is how an agent is presented in the transcript
type AgentMeta struct {
	ID    types.AgentID `json:"id"`
	Label string        `json:"label"`
	Color string        `json:"color"`
}

var agentMeta = map[types.AgentID]AgentMeta{
	types.AgentATS:          {ID: types.AgentATS, Label: "ATS Sentinel", Color: "#f59e0b"},
	types.AgentSpyglass:     {ID: types.AgentSpyglass, Label: "Spyglass", Color: "#06b6d4"},
	types.AgentInterviewer:  {ID: types.AgentInterviewer, Label: "The Interviewer", Color: "#8b5cf6"},
	types.AgentGhostwriter:  {ID: types.AgentGhostwriter, Label: "Ghostwriter", Color: "#ec4899"},
	types.AgentAffiliate:    {ID: types.AgentAffiliate, Label: "The Affiliate", Color: "#22c55e"},
	types.AgentOrchestrator: {ID: types.AgentOrchestrator, Label: "Career Companion", Color: "#f59e0b"},
}

// Meta returns the presentation of an agent. Unknown agents are shown as the orchestrator.
func Meta(agent types.AgentID) AgentMeta {
	if m, ok := agentMeta[agent]; ok {
		return m
	}
	return agentMeta[types.AgentOrchestrator]
}

// SuggestedPrompts are offered before the first message
var SuggestedPrompts = []string{
	"Roast my resume. Don't hold back.",
	"What are the top 3 reasons I'd get rejected?",
	"Which keywords am I missing for this role?",
	"Give me my hardest interview question.",
	"Who has viewed my resume?",
	"Write my LinkedIn announcement post.",
	"What skills should I learn next?",
}

const (
	welcomeWithResume = "Swarm online. Your resume is loaded. I can optimize it, prep you for interviews, " +
		"track who viewed it, write your LinkedIn post, or identify skill gaps. What's the mission?"
	welcomeWithoutResume = "Mission Control online. Upload your resume to activate the full swarm. " +
		"Or ask me anything about your job search strategy."

	// ConnectionLost replaces the reply when the backend cannot be reached
	ConnectionLost = "Connection lost. Check that the mission backend is reachable."
)
