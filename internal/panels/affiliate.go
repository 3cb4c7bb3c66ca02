package panels

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"missioncontrol/internal/errors"
	"missioncontrol/internal/types"
)

// CourseSource lists course recommendations for a resume
type CourseSource interface {
	Courses(ctx context.Context, resumeID string) (*types.AffiliateSection, error)
}

// CourseView is one recommendation ready to display
type CourseView struct {
	Skill            string `json:"skill"`
	Title            string `json:"title"`
	Platform         string `json:"platform"`
	Instructor       string `json:"instructor,omitempty"`
	Duration         string `json:"duration,omitempty"`
	Price            string `json:"price,omitempty"`
	Priority         string `json:"priority"`
	PriorityColor    string `json:"priority_color"`
	URL              string `json:"url,omitempty"`
	WhyCritical      string `json:"why_critical,omitempty"`
	TimeToCompetency string `json:"time_to_competency,omitempty"`
}

// AffiliateView is the affiliate panel
type AffiliateView struct {
	Empty           bool         `json:"empty"`
	Courses         []CourseView `json:"courses"`
	LearningRoadmap string       `json:"learning_roadmap,omitempty"`
	ROIStatement    string       `json:"roi_statement,omitempty"`
}

// NewAffiliateView renders the affiliate panel with the most urgent courses first.
// Courses of equal priority keep the backend's order.
func NewAffiliateView(section *types.AffiliateSection) AffiliateView {
	if section == nil {
		return AffiliateView{Empty: true, Courses: []CourseView{}}
	}

	courses := slices.Clone(section.Courses)
	slices.SortStableFunc(courses, func(a, b types.Course) int {
		return cmp.Compare(a.Priority.Rank(), b.Priority.Rank())
	})

	view := AffiliateView{
		Courses:         make([]CourseView, 0, len(courses)),
		LearningRoadmap: Clean(section.LearningRoadmap),
		ROIStatement:    Clean(section.ROIStatement),
	}
	for _, c := range courses {
		view.Courses = append(view.Courses, CourseView{
			Skill:            PlainText(c.Skill),
			Title:            PlainText(c.CourseTitle),
			Platform:         PlainText(c.Platform),
			Instructor:       PlainText(c.Instructor),
			Duration:         PlainText(c.Duration),
			Price:            PlainText(c.Price),
			Priority:         Humanize(string(c.Priority)),
			PriorityColor:    PriorityColor(c.Priority),
			URL:              safeURL(c.AffiliateURL),
			WhyCritical:      Clean(c.WhyCritical),
			TimeToCompetency: PlainText(c.TimeToCompetency),
		})
	}
	view.Empty = len(view.Courses) == 0 && view.LearningRoadmap == ""
	return view
}

// RefreshCourses reloads the course list for a resume
func RefreshCourses(ctx context.Context, src CourseSource, resumeID string) (AffiliateView, error) {
	if strings.TrimSpace(resumeID) == "" {
		return AffiliateView{}, errors.NewValidationError(errors.ErrCodeMissingResume, "no resume is bound", nil)
	}
	section, err := src.Courses(ctx, resumeID)
	if err != nil {
		return AffiliateView{}, err
	}
	return NewAffiliateView(section), nil
}

// safeURL keeps only http and https links
func safeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		return raw
	}
	return ""
}
