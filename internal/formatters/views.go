package formatters

import (
	"fmt"
	"strings"
	"time"

	"missioncontrol/internal/account"
	"missioncontrol/internal/chat"
	"missioncontrol/internal/mission"
	"missioncontrol/internal/panels"
	"missioncontrol/internal/types"
)

func viewFormatters() []registration {
	return []registration{
		renderer[panels.ATSView](renderATS),
		renderer[panels.InterviewView](renderInterview),
		renderer[panels.GhostwriterView](renderGhostwriter),
		renderer[panels.AffiliateView](renderAffiliate),
		renderer[panels.SpyglassView](renderSpyglass),
		renderer[chat.Transcript](renderTranscript),
		renderer[mission.Snapshot](renderSnapshot),
		renderer[account.History](renderHistory),
		renderer[account.Account](renderAccount),
		renderer[types.ProbeResult](renderProbe),
		renderer[types.GradeResult](renderGrade),
		renderer[types.ResumeHandle](renderHandle),
	}
}

func renderATS(d *doc, v panels.ATSView) {
	d.title("ATS Sentinel")
	if v.Empty {
		d.para("No ATS analysis available.")
		return
	}
	d.field("Score", v.Scores)
	d.field("Delta", v.Delta)
	d.blank()
	if v.Roast != "" {
		d.section("Roast")
		d.para(v.Roast)
	}
	d.section("Keywords")
	d.sub("Injected")
	d.list(v.KeywordsInjected)
	d.sub("Missing")
	d.list(v.KeywordsMissing)
	d.blank()
	if len(v.Strengths) > 0 {
		d.section("Strengths")
		d.list(v.Strengths)
	}
	if len(v.CriticalGaps) > 0 {
		d.section("Critical Gaps")
		for i, g := range v.CriticalGaps {
			d.sub(fmt.Sprintf("%d. %s (%s)", i+1, g.Skill, g.Importance))
			d.para(g.Recommendation)
		}
	}
	if v.DownloadURL != "" {
		d.field("Optimized PDF", v.DownloadURL)
	}
}

func renderInterview(d *doc, v panels.InterviewView) {
	d.title("The Interviewer")
	if v.Empty {
		d.para(v.EmptyMessage)
		return
	}
	d.field("Readiness", v.Readiness)
	d.field("Highest risk", v.HighestRisk)
	d.blank()
	d.section("Questions")
	for _, q := range v.Questions {
		marker := ""
		if q.Index == v.Selected {
			marker = " [selected]"
		}
		d.sub(fmt.Sprintf("%d. [%s / %s]%s", q.Index+1, q.Category, q.Difficulty, marker))
		d.para(q.Question)
	}
	if v.ModelAnswer != "" {
		d.section("Model Answer")
		d.para(v.ModelAnswer)
	}
	if v.Grade != nil {
		d.section("Grade")
		d.field("Score", v.Grade.Score)
		d.field("Verdict", v.Grade.Verdict)
		d.blank()
		renderGradeBody(d, v.Grade.Strengths, v.Grade.Weaknesses, v.Grade.CoachingNote, v.Grade.ImprovedAnswer)
	}
	if v.Error != "" {
		d.field("Error", v.Error)
	}
}

func renderGradeBody(d *doc, strengths, weaknesses []string, coaching, improved string) {
	if len(strengths) > 0 {
		d.sub("Strengths")
		d.list(strengths)
	}
	if len(weaknesses) > 0 {
		d.sub("Weaknesses")
		d.list(weaknesses)
	}
	if coaching != "" {
		d.sub("Coaching")
		d.para(coaching)
	}
	if improved != "" {
		d.sub("Stronger answer")
		d.para(improved)
	}
}

func renderGhostwriter(d *doc, v panels.GhostwriterView) {
	d.title("Ghostwriter")
	if v.Empty {
		d.para("No posts drafted.")
		return
	}
	d.section("LinkedIn Post")
	d.para(v.PrimaryPost)
	if v.LongFormVersion != "" {
		d.section("Long Form")
		d.para(v.LongFormVersion)
	}
	if len(v.HeadlineOptions) > 0 {
		d.section("Headlines")
		d.numbered(v.HeadlineOptions)
	}
	d.field("Hashtags", strings.Join(v.Hashtags, " "))
	d.field("Best time to post", v.BestTimeToPost)
	d.blank()
	if len(v.TwitterThread) > 0 {
		d.section("Thread")
		d.numbered(v.TwitterThread)
	}
}

func renderAffiliate(d *doc, v panels.AffiliateView) {
	d.title("The Affiliate")
	if v.Empty {
		d.para("No course recommendations.")
		return
	}
	for i, c := range v.Courses {
		d.sub(fmt.Sprintf("%d. %s [%s]", i+1, c.Title, c.Priority))
		d.field("Skill", c.Skill)
		d.field("Platform", c.Platform)
		d.field("Duration", c.Duration)
		d.field("Price", c.Price)
		d.field("Link", c.URL)
		d.blank()
		d.para(c.WhyCritical)
	}
	if v.LearningRoadmap != "" {
		d.section("Learning Roadmap")
		d.para(v.LearningRoadmap)
	}
	if v.ROIStatement != "" {
		d.section("Return on Investment")
		d.para(v.ROIStatement)
	}
}

func renderSpyglass(d *doc, v panels.SpyglassView) {
	d.title("Spyglass")
	if v.Empty {
		d.para("No tracking data yet.")
		return
	}
	d.field("Tracking link", v.TrackingURL)
	d.field("Total views", v.TotalViews)
	d.field("Unique viewers", v.UniqueViewers)
	d.field("Companies", strings.Join(v.Companies, ", "))
	d.blank()

	switch v.Tab {
	case panels.TabEvents:
		d.section("Recent Views")
		rows := make([]string, 0, len(v.Events))
		for _, e := range v.Events {
			row := fmt.Sprintf("%s, %s | %s on %s | %s", e.City, e.Country, e.Browser, e.Device, e.Ago)
			if e.Company != "" {
				row += " | " + e.Company
			}
			rows = append(rows, row)
		}
		d.list(rows)
	case panels.TabGeo:
		d.section("Geography")
		places := make([]string, 0, len(v.Geo))
		for _, g := range v.Geo {
			places = append(places, fmt.Sprintf("%s: %d", g.Place, g.Views))
		}
		d.list(places)
		pins := make([]string, 0, len(v.ListedPins))
		for _, p := range v.ListedPins {
			pin := fmt.Sprintf("%s (%.0f, %.0f)", p.City, p.X, p.Y)
			if p.Company != "" {
				pin += " " + p.Company
			}
			pins = append(pins, pin)
		}
		d.sub("Map")
		d.list(pins)
	case panels.TabTimeline:
		d.section("Last 14 Days")
		days := make([]string, 0, len(v.Timeline))
		for _, p := range v.Timeline {
			days = append(days, fmt.Sprintf("%s: %d", p.Date, p.Views))
		}
		d.list(days)
	}
}

func renderTranscript(d *doc, v chat.Transcript) {
	d.title("Chat")
	for _, m := range v.Messages {
		who := "You"
		if m.Role == chat.RoleAssistant {
			who = chat.Meta(m.Agent).Label
		}
		d.sub(fmt.Sprintf("%s (%s)", who, m.Timestamp.Format("15:04")))
		d.para(m.Content)
	}
	if v.Busy {
		d.para(v.TypingAgent.Label + " is typing...")
	}
	if len(v.Prompts) > 0 {
		d.section("Try asking")
		d.list(v.Prompts)
	}
}

func renderSnapshot(d *doc, v mission.Snapshot) {
	d.title("Mission")
	d.field("Stage", v.Stage)
	if v.Handle != nil {
		d.field("Resume", v.Handle.ResumeID)
		d.field("File", v.Handle.Filename)
	}
	d.field("Credits", v.Credits)
	d.field("Active agent", v.ActiveAgent)
	d.field("PDF ready", v.PDFReady)
	if v.LastError != nil {
		d.field("Last error", v.LastError.Message)
	}
	d.blank()
	statuses := make([]string, 0, len(mission.Catalog))
	for _, a := range mission.Catalog {
		statuses = append(statuses, fmt.Sprintf("%s %s: %s", a.Code, a.Name, v.Statuses[a.ID]))
	}
	d.section("Agents")
	d.list(statuses)
}

func renderHistory(d *doc, v account.History) {
	d.title("Mission History")
	d.field("Total missions", v.Analytics.TotalMissions)
	d.field("Credits burned", v.Analytics.CreditsBurned)
	if v.Analytics.BestDelta != nil {
		d.field("Best gain", fmt.Sprintf("%+.0f pts", *v.Analytics.BestDelta))
	}
	if v.Analytics.AverageAfter != nil {
		d.field("Average score after", fmt.Sprintf("%.1f", *v.Analytics.AverageAfter))
	}
	d.blank()
	rows := make([]string, 0, len(v.Missions))
	for _, m := range v.Missions {
		rows = append(rows, fmt.Sprintf("%s  %s  %s → %s",
			m.CreatedAt.Format(time.DateTime), m.ResumeID,
			types.FormatScore(m.ScoreBefore), types.FormatScore(m.ScoreAfter)))
	}
	if len(rows) > 0 {
		d.section("Missions")
		d.list(rows)
	}
}

func renderAccount(d *doc, v account.Account) {
	d.title("Account")
	d.field("Email", v.Email)
	d.field("Credits", v.Credits)
	d.field("Member since", v.CreatedAt.Format(time.DateOnly))
}

func renderProbe(d *doc, v types.ProbeResult) {
	d.title("Backend")
	d.field("State", v.State)
	d.field("Latency", v.Latency.Round(time.Millisecond))
	d.field("Version", v.Version)
	if v.Agents > 0 {
		d.field("Agents", v.Agents)
	}
	d.field("Error", v.Error)
}

func renderGrade(d *doc, v types.GradeResult) {
	d.title("Answer Grade")
	d.field("Score", types.FormatScore(&v.Score))
	d.field("Verdict", panels.Humanize(string(v.Verdict)))
	d.blank()
	renderGradeBody(d, v.Strengths, v.Weaknesses, v.CoachingNote, v.ImprovedAnswerSnippet)
}

func renderHandle(d *doc, v types.ResumeHandle) {
	d.title("Resume Uploaded")
	d.field("Resume ID", v.ResumeID)
	d.field("Tracking token", v.TrackingToken)
	d.field("Tracking link", v.TrackingURL)
	d.blank()
	if v.Preview != "" {
		d.section("Preview")
		d.para(v.Preview)
	}
}
