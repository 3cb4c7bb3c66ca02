package panels

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"missioncontrol/internal/errors"
	"missioncontrol/internal/types"

	mapset "github.com/deckarep/golang-set/v2"
)

// Map canvas size
const (
	MapWidth  = 800
	MapHeight = 400
)

const (
	timelineDays  = 14
	geoTopN       = 8
	listedPoints  = 5
	unknownCity   = "Unknown City"
	unknownRegion = "??"
	unknownHint   = "unknown"
	noTime        = "--"
)

// Tab is a spyglass sub-view
type Tab string

const (
	TabEvents   Tab = "events"
	TabGeo      Tab = "geo"
	TabTimeline Tab = "timeline"
)

// Valid reports whether the tab exists
func (t Tab) Valid() bool {
	switch t {
	case TabEvents, TabGeo, TabTimeline:
		return true
	}
	return false
}

// SpyglassPanel keeps the selected sub-view
type SpyglassPanel struct {
	mu  sync.Mutex
	tab Tab
}

// NewSpyglassPanel starts on the events tab
func NewSpyglassPanel() *SpyglassPanel {
	return &SpyglassPanel{tab: TabEvents}
}

// SetTab switches the sub-view
func (p *SpyglassPanel) SetTab(tab Tab) error {
	if !tab.Valid() {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "unknown spyglass tab", nil).
			WithContext("tab", string(tab))
	}
	p.mu.Lock()
	p.tab = tab
	p.mu.Unlock()
	return nil
}

// Tab returns the selected sub-view
func (p *SpyglassPanel) Tab() Tab {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tab
}

// Render builds the view for the selected tab
func (p *SpyglassPanel) Render(stats *types.SpyglassStats, now time.Time) SpyglassView {
	return NewSpyglassView(stats, p.Tab(), now)
}

// EventRow is one tracked view
type EventRow struct {
	City     string `json:"city"`
	Country  string `json:"country"`
	Company  string `json:"company,omitempty"`
	Browser  string `json:"browser"`
	Device   string `json:"device"`
	ViewedAt string `json:"viewed_at"`
	Ago      string `json:"ago"`
}

// GeoCount is a country or city with its view count
type GeoCount struct {
	Place string `json:"place"`
	Views int    `json:"views"`
}

// Pin is a map point projected onto the canvas
type Pin struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	City    string  `json:"city"`
	Company string  `json:"company,omitempty"`
}

// SpyglassView is the spyglass panel
type SpyglassView struct {
	Empty         bool                  `json:"empty"`
	Tab           Tab                   `json:"tab"`
	TrackingURL   string                `json:"tracking_url,omitempty"`
	TotalViews    int                   `json:"total_views"`
	UniqueViewers int                   `json:"unique_viewers"`
	Companies     []string              `json:"companies"`
	TopCompany    string                `json:"top_company,omitempty"`
	Events        []EventRow            `json:"events,omitempty"`
	Geo           []GeoCount            `json:"geo,omitempty"`
	Pins          []Pin                 `json:"pins,omitempty"`
	ListedPins    []Pin                 `json:"listed_pins,omitempty"`
	Timeline      []types.TimelinePoint `json:"timeline,omitempty"`
}

// NewSpyglassView renders stats for one tab. Nil stats give the empty state.
func NewSpyglassView(stats *types.SpyglassStats, tab Tab, now time.Time) SpyglassView {
	if !tab.Valid() {
		tab = TabEvents
	}
	if stats == nil {
		return SpyglassView{Empty: true, Tab: tab, Companies: []string{}}
	}

	view := SpyglassView{
		Tab:           tab,
		TrackingURL:   stats.TrackingURL,
		TotalViews:    stats.TotalViews,
		UniqueViewers: stats.UniqueViewers,
		Companies:     companyHints(stats.CompanyHints),
	}
	if len(view.Companies) > 0 {
		view.TopCompany = view.Companies[0]
	}

	switch tab {
	case TabEvents:
		view.Events = make([]EventRow, 0, len(stats.Events))
		for _, e := range stats.Events {
			view.Events = append(view.Events, newEventRow(e, now))
		}
	case TabGeo:
		view.Geo = topPlaces(stats.GeoBreakdown, geoTopN)
		view.Pins = mapPins(stats)
		view.ListedPins = view.Pins[:min(listedPoints, len(view.Pins))]
	case TabTimeline:
		tl := stats.Timeline
		if len(tl) > timelineDays {
			tl = tl[len(tl)-timelineDays:]
		}
		view.Timeline = slices.Clone(tl)
		if view.Timeline == nil {
			view.Timeline = []types.TimelinePoint{}
		}
	}
	return view
}

func newEventRow(e types.TrackingEvent, now time.Time) EventRow {
	browser, device := ParseUA(e.UserAgent)
	row := EventRow{
		City:     orDefault(PlainText(e.City), unknownCity),
		Country:  orDefault(PlainText(e.Country), unknownRegion),
		Company:  visibleCompany(e.CompanyHint),
		Browser:  browser,
		Device:   device,
		ViewedAt: e.ViewedAt,
		Ago:      noTime,
	}
	if e.ViewedAt != "" {
		row.Ago = TimeAgo(e.ViewedAt, now)
	}
	return row
}

// companyHints drops blanks, "Unknown" and duplicates that differ only in case or accents
func companyHints(in []string) []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	out := make([]string, 0, len(in))
	for _, h := range in {
		clean := visibleCompany(h)
		if clean == "" || !seen.Add(Fold(clean)) {
			continue
		}
		out = append(out, clean)
	}
	return out
}

func visibleCompany(hint string) string {
	clean := PlainText(hint)
	if Fold(clean) == unknownHint {
		return ""
	}
	return clean
}

func topPlaces(breakdown map[string]int, n int) []GeoCount {
	out := make([]GeoCount, 0, len(breakdown))
	for place, views := range breakdown {
		out = append(out, GeoCount{Place: place, Views: views})
	}
	slices.SortFunc(out, func(a, b GeoCount) int {
		if c := cmp.Compare(b.Views, a.Views); c != 0 {
			return c
		}
		return cmp.Compare(a.Place, b.Place)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// mapPins projects map points. Without a map_points field the event coordinates are used,
// skipping events that have none. An empty map_points list renders an empty map.
func mapPins(stats *types.SpyglassStats) []Pin {
	pins := []Pin{}
	if stats.MapPoints != nil {
		for _, p := range stats.MapPoints {
			x, y := Project(p.Lat, p.Lng)
			pins = append(pins, Pin{X: x, Y: y, City: orDefault(PlainText(p.City), unknownCity), Company: visibleCompany(p.Company)})
		}
		return pins
	}
	for _, e := range stats.Events {
		if e.Latitude == nil || e.Longitude == nil {
			continue
		}
		x, y := Project(*e.Latitude, *e.Longitude)
		pins = append(pins, Pin{X: x, Y: y, City: orDefault(PlainText(e.City), unknownCity), Company: visibleCompany(e.CompanyHint)})
	}
	return pins
}

// Project maps a coordinate onto the map canvas with an equirectangular projection
func Project(lat, lng float64) (x, y float64) {
	x = (lng + 180) / 360 * MapWidth
	y = (90 - lat) / 180 * MapHeight
	return x, y
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
}

// TimeAgo renders how long before now a timestamp was.
// Timestamps without a zone are read as UTC.
func TimeAgo(ts string, now time.Time) string {
	var at time.Time
	var err error
	for _, layout := range timeLayouts {
		if at, err = time.Parse(layout, ts); err == nil {
			break
		}
	}
	if err != nil {
		return noTime
	}

	diff := now.Sub(at)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return strconv.Itoa(int(diff/time.Minute)) + "m ago"
	case diff < 24*time.Hour:
		return strconv.Itoa(int(diff/time.Hour)) + "h ago"
	}
	return strconv.Itoa(int(diff/(24*time.Hour))) + "d ago"
}

// ParseUA classifies a user agent into a browser and a device.
// Edge advertises Chrome too, so it is checked first.
func ParseUA(ua string) (browser, device string) {
	switch {
	case strings.Contains(ua, "Edg"):
		browser = "Edge"
	case strings.Contains(ua, "Chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "Firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "Safari"):
		browser = "Safari"
	default:
		browser = "Unknown"
	}

	switch {
	case strings.Contains(ua, "Mobile"):
		device = "Mobile"
	case strings.Contains(ua, "Tablet"), strings.Contains(ua, "iPad"):
		device = "Tablet"
	default:
		device = "Desktop"
	}
	return browser, device
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
