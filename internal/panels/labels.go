package panels

import (
	"strings"

	"missioncontrol/internal/types"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const neutralColor = "#6b7280"

var verdictColors = map[types.Verdict]string{
	types.VerdictExceptional: "#22c55e",
	types.VerdictStrong:      "#86efac",
	types.VerdictAcceptable:  "#f59e0b",
	types.VerdictWeak:        "#f97316",
	types.VerdictReject:      "#ef4444",
}

var difficultyColors = map[types.Difficulty]string{
	types.DifficultyMedium: "#06b6d4",
	types.DifficultyHard:   "#f59e0b",
	types.DifficultyKiller: "#ef4444",
}

var priorityColors = map[types.Priority]string{
	types.PriorityCritical:   "#ef4444",
	types.PriorityHigh:       "#f97316",
	types.PriorityMedium:     "#f59e0b",
	types.PriorityNiceToHave: "#06b6d4",
}

// VerdictColor returns the colour token for a grade verdict
func VerdictColor(v types.Verdict) string {
	if c, ok := verdictColors[v]; ok {
		return c
	}
	return neutralColor
}

// DifficultyColor returns the colour token for a question difficulty
func DifficultyColor(d types.Difficulty) string {
	if c, ok := difficultyColors[d]; ok {
		return c
	}
	return neutralColor
}

// PriorityColor returns the colour token for a course priority
func PriorityColor(p types.Priority) string {
	if c, ok := priorityColors[p]; ok {
		return c
	}
	return neutralColor
}

// Humanize turns an enum value such as "gap_probe" into "Gap Probe"
func Humanize(v string) string {
	v = strings.TrimSpace(strings.ReplaceAll(v, "_", " "))
	if v == "" {
		return ""
	}
	// Casers carry state and are not shared between goroutines
	return cases.Title(language.English).String(v)
}
