// Package panels renders an optimization result into one view per agent.
//
// Views are pure functions of the result. The interview, ghostwriter, affiliate and
// spyglass panels also keep a little local state and may call the backend themselves.
// Every view has an empty state for when its section is missing.
package panels

import (
	"fmt"
	"math"

	"missioncontrol/internal/errors"
	"missioncontrol/internal/types"

	mapset "github.com/deckarep/golang-set/v2"
)

// Arrow separates the before and after scores
const Arrow = "→"

// PDFLinker builds the optimized PDF's download URL
type PDFLinker interface {
	PDFLink(resumeID string) string
}

// GapView is a critical gap ready to display
type GapView struct {
	Skill          string `json:"skill"`
	Importance     string `json:"importance"`
	Recommendation string `json:"recommendation"`
}

// ATSView is the ATS Sentinel panel
type ATSView struct {
	Empty            bool      `json:"empty"`
	ScoreBefore      string    `json:"score_before"`
	ScoreAfter       string    `json:"score_after"`
	Scores           string    `json:"scores"`
	Delta            string    `json:"delta,omitempty"`
	Roast            string    `json:"roast,omitempty"`
	KeywordsInjected []string  `json:"keywords_injected"`
	KeywordsMissing  []string  `json:"keywords_missing"`
	Strengths        []string  `json:"strengths"`
	CriticalGaps     []GapView `json:"critical_gaps"`
	PDFReady         bool      `json:"pdf_ready"`
	DownloadURL      string    `json:"download_url,omitempty"`
	latexSource      string
}

// NewATSView renders the ATS panel. links may be nil when no download link is wanted.
func NewATSView(result *types.OptimizationResult, resumeID string, links PDFLinker) ATSView {
	gap := result.Gap()
	if gap == nil {
		return ATSView{
			Empty:       true,
			ScoreBefore: types.FormatScore(nil),
			ScoreAfter:  types.FormatScore(nil),
			Scores:      types.FormatScore(nil) + " " + Arrow + " " + types.FormatScore(nil),
		}
	}

	view := ATSView{
		ScoreBefore:      types.FormatScore(gap.ATSScoreBefore),
		ScoreAfter:       types.FormatScore(gap.ATSScoreAfter),
		Roast:            Clean(gap.Roast),
		KeywordsInjected: dedupe(gap.KeywordsInjected),
		KeywordsMissing:  dedupe(gap.KeywordsMissing),
		Strengths:        defaultSanitizer.CleanAll(gap.Strengths),
		CriticalGaps:     make([]GapView, 0, len(gap.CriticalGaps)),
		PDFReady:         result.PDFReady(),
		latexSource:      result.ATS.LatexSource,
	}
	view.Scores = view.ScoreBefore + " " + Arrow + " " + view.ScoreAfter
	if gap.ATSScoreBefore != nil && gap.ATSScoreAfter != nil {
		view.Delta = formatDelta(*gap.ATSScoreAfter - *gap.ATSScoreBefore)
	}
	for _, g := range gap.CriticalGaps {
		view.CriticalGaps = append(view.CriticalGaps, GapView{
			Skill:          PlainText(g.Skill),
			Importance:     Humanize(g.Importance),
			Recommendation: Clean(g.Recommendation),
		})
	}
	if view.PDFReady && links != nil && resumeID != "" {
		view.DownloadURL = links.PDFLink(resumeID)
	}
	return view
}

func formatDelta(d float64) string {
	return fmt.Sprintf("%+d pts", int(math.Round(d)))
}

// dedupe keeps the first occurrence of each keyword, case-insensitively
func dedupe(in []string) []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	out := make([]string, 0, len(in))
	for _, k := range in {
		clean := PlainText(k)
		key := Fold(clean)
		if key == "" || !seen.Add(key) {
			continue
		}
		out = append(out, clean)
	}
	return out
}

// CopySource returns the LaTeX source. It is offered only once the PDF is ready.
func (v ATSView) CopySource(clip Clipboard) error {
	if !v.PDFReady {
		return errPDFNotReady()
	}
	return clip.Write(v.latexSource)
}

// Download returns the PDF link. It is offered only once the PDF is ready.
func (v ATSView) Download() (string, error) {
	if !v.PDFReady || v.DownloadURL == "" {
		return "", errPDFNotReady()
	}
	return v.DownloadURL, nil
}

func errPDFNotReady() error {
	return errors.NewValidationError(errors.ErrCodeInvalidStage, "optimized PDF is not ready yet", nil)
}
