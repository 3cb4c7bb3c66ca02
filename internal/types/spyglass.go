package types

// TrackingEvent is one recorded view of a resume's tracking pixel
type TrackingEvent struct {
	ID          string   `json:"id"`
	EventType   string   `json:"event_type"`
	IPAddress   string   `json:"ip_address"`
	Country     string   `json:"country"`
	City        string   `json:"city"`
	CompanyHint string   `json:"company_hint"`
	UserAgent   string   `json:"user_agent"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	ViewedAt    string   `json:"viewed_at"`
}

// TimelinePoint is a day's view count
type TimelinePoint struct {
	Date  string `json:"date"`
	Views int    `json:"views"`
}

// MapPoint is a geolocated view
type MapPoint struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	City    string  `json:"city"`
	Company string  `json:"company"`
	Time    string  `json:"time"`
}

// SpyglassStats aggregates who viewed a resume
type SpyglassStats struct {
	ResumeID      string          `json:"resume_id"`
	TrackingToken string          `json:"tracking_token,omitempty"`
	TrackingURL   string          `json:"tracking_url"`
	TotalViews    int             `json:"total_views"`
	UniqueViewers int             `json:"unique_viewers"`
	Events        []TrackingEvent `json:"events"`
	GeoBreakdown  map[string]int  `json:"geo_breakdown"`
	CompanyHints  []string        `json:"company_hints"`
	Timeline      []TimelinePoint `json:"timeline"`
	MapPoints     []MapPoint      `json:"map_points"`
}
