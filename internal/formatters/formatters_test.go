package formatters

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"missioncontrol/internal/account"
	"missioncontrol/internal/chat"
	"missioncontrol/internal/mission"
	"missioncontrol/internal/panels"
	"missioncontrol/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func atsView() panels.ATSView {
	return panels.NewATSView(&types.OptimizationResult{
		ATS: &types.ATSSection{GapAnalysis: &types.GapAnalysis{
			ATSScoreBefore:   types.Float(42),
			ATSScoreAfter:    types.Float(81),
			KeywordsInjected: []string{"Go", "Kubernetes"},
			Roast:            "Too many buzzwords.",
		}},
	}, "r1", nil)
}

func TestFormatATSText(t *testing.T) {
	out, err := NewFormatterRegistry().Format(atsView(), "text")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "=== ATS SENTINEL ===\n\n"))
	assert.Contains(t, out, "Score: 42 → 81\n")
	assert.Contains(t, out, "Delta: +39 pts\n")
	assert.Contains(t, out, "=== ROAST ===\nToo many buzzwords.")
	assert.Contains(t, out, "Injected:\n- Go\n- Kubernetes\n")
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.False(t, strings.HasSuffix(out, "\n\n"))
}

func TestFormatATSMarkdown(t *testing.T) {
	view := atsView()
	out, err := NewFormatterRegistry().Format(&view, "markdown")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "# ATS Sentinel\n\n"))
	assert.Contains(t, out, "**Score:** 42 → 81")
	assert.Contains(t, out, "## Roast")
	assert.Contains(t, out, "### Injected\n- Go\n")
}

func TestFormatJSONAndYAMLUseWireNames(t *testing.T) {
	registry := NewFormatterRegistry()

	out, err := registry.Format(atsView(), "json")
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "42 → 81", decoded["scores"])

	out, err = registry.Format(atsView(), "yaml")
	require.NoError(t, err)
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	assert.Equal(t, "42", fromYAML["score_before"])
	assert.Equal(t, "+39 pts", fromYAML["delta"])
	assert.Equal(t, false, fromYAML["empty"])
	assert.NotContains(t, out, "{", "block style only")
	assert.True(t, strings.HasPrefix(out, "empty: false\n"), "field order follows the struct")
}

func TestFormatUnknown(t *testing.T) {
	registry := NewFormatterRegistry()

	_, err := registry.Format(atsView(), "xml")
	assert.EqualError(t, err, "no formatter found for format 'xml' and type 'panels.ATSView'")

	_, err = registry.Format(map[string]int{"a": 1}, "text")
	assert.Error(t, err, "text has no generic fallback")

	out, err := registry.Format(map[string]int{"a": 1}, "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"a": 1`)

	var nilView *panels.ATSView
	_, err = registry.Format(nilView, "text")
	assert.Error(t, err)
}

func TestSupportedFormats(t *testing.T) {
	assert.Equal(t, []string{"json", "markdown", "text", "yaml"}, NewFormatterRegistry().GetSupportedFormats())
}

func TestFormatPanels(t *testing.T) {
	registry := NewFormatterRegistry()
	tests := []struct {
		name string
		data any
		want []string
	}{
		{
			name: "empty interview",
			data: panels.NewInterviewPanel(nil, nil).View(),
			want: []string{"=== THE INTERVIEWER ===", "No questions generated."},
		},
		{
			name: "ghostwriter",
			data: panels.NewGhostwriterView(&types.GhostwriterSection{PrimaryPost: "Big news", Hashtags: []string{"go"}}),
			want: []string{"=== LINKEDIN POST ===\nBig news", "Hashtags: #go"},
		},
		{
			name: "affiliate",
			data: panels.NewAffiliateView(&types.AffiliateSection{Courses: []types.Course{{CourseTitle: "Kafka 101", Priority: types.PriorityCritical}}}),
			want: []string{"1. Kafka 101 [Critical]:"},
		},
		{
			name: "spyglass timeline",
			data: panels.NewSpyglassView(&types.SpyglassStats{Timeline: []types.TimelinePoint{{Date: "2026-03-01", Views: 2}}}, panels.TabTimeline, time.Now()),
			want: []string{"Total views: 0", "- 2026-03-01: 2"},
		},
		{
			name: "snapshot",
			data: mission.Snapshot{Stage: mission.StageReady, Credits: 3, Statuses: map[types.AgentID]mission.AgentStatus{types.AgentATS: mission.StatusIdle}},
			want: []string{"Stage: READY", "Credits: 3", "- A-01 ATS Sentinel: idle"},
		},
		{
			name: "history",
			data: account.History{Analytics: account.Analytics{TotalMissions: 2, CreditsBurned: 2, BestDelta: types.Float(39)}},
			want: []string{"Total missions: 2", "Best gain: +39 pts"},
		},
		{
			name: "probe",
			data: types.ProbeResult{State: types.ProbeDegraded, Latency: 2500 * time.Millisecond, Version: "4.0"},
			want: []string{"State: DEGRADED", "Latency: 2.5s"},
		},
		{
			name: "grade",
			data: types.GradeResult{Score: 7.5, Verdict: types.VerdictStrong, Weaknesses: []string{"vague"}},
			want: []string{"Score: 7.5", "Verdict: Strong", "Weaknesses:\n- vague"},
		},
		{
			name: "transcript",
			data: chat.Transcript{Messages: []chat.Message{{Role: chat.RoleAssistant, Agent: types.AgentSpyglass, Content: "3 views"}}},
			want: []string{"Spyglass (", "3 views"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := registry.Format(tt.data, "text")
			require.NoError(t, err)
			for _, want := range tt.want {
				assert.Contains(t, out, want)
			}
		})
	}
}
