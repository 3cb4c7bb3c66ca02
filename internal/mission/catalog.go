package mission

import "missioncontrol/internal/types"

// AgentInfo describes a panel agent for navigation
type AgentInfo struct {
	ID   types.AgentID `json:"id"`
	Name string        `json:"name"`
	Code string        `json:"code"`
}

// Catalog lists the panel agents in display order
var Catalog = []AgentInfo{
	{ID: types.AgentATS, Name: "ATS Sentinel", Code: "A-01"},
	{ID: types.AgentSpyglass, Name: "Spyglass", Code: "A-02"},
	{ID: types.AgentInterviewer, Name: "The Interviewer", Code: "A-03"},
	{ID: types.AgentGhostwriter, Name: "Ghostwriter", Code: "A-04"},
	{ID: types.AgentAffiliate, Name: "The Affiliate", Code: "A-05"},
}

// Lookup returns the catalog entry for id
func Lookup(id types.AgentID) (AgentInfo, bool) {
	for _, info := range Catalog {
		if info.ID == id {
			return info, true
		}
	}
	return AgentInfo{}, false
}
