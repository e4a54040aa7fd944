package domain

import (
	"strings"
	"time"
)

// AlertTypePolice is the feed type of every alert served by this service.
const AlertTypePolice = "POLICE"

// Alert is a crowdsourced police-activity report.
// Alerts are immutable once ingested; a newer fetch of the same ID replaces
// the whole value.
type Alert struct {
	ID          string    `json:"id"` // feed alert id, stable across fetches
	Type        string    `json:"type"`
	Subtype     string    `json:"subtype,omitempty"`
	ReportedBy  string    `json:"reported_by,omitempty"`
	Description string    `json:"description,omitempty"`
	Country     string    `json:"country,omitempty"`
	City        string    `json:"city,omitempty"`
	State       string    `json:"state,omitempty"`
	Street      string    `json:"street,omitempty"`
	Location    GeoPoint  `json:"location"`
	Reliability int       `json:"reliability"` // 0-100
	Confidence  int       `json:"confidence"`
	ThumbsUp    int       `json:"thumbs_up"`
	PublishedAt time.Time `json:"published_at"`
	CreatedAt   time.Time `json:"created_at"`
	Distance    *float64  `json:"distance,omitempty"` // computed field
}

// Valid reports whether the alert can be cached and displayed.
func (a Alert) Valid() bool {
	return a.ID != "" && a.Location.Valid()
}

// Place returns the human readable "State, City" label shown on markers.
func (a Alert) Place() string {
	switch {
	case a.State != "" && a.City != "":
		return a.State + ", " + a.City
	case a.City != "":
		return a.City
	default:
		return a.State
	}
}

// StateFromCity extracts the trailing state code from a feed city label
// such as "Houston, TX".
func StateFromCity(city string) string {
	if city == "" {
		return ""
	}
	parts := strings.Split(city, ", ")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-1]
}

// AlertQuery selects alerts for a region.
type AlertQuery struct {
	Bounds   Bounds    `json:"bounds"`
	Since    time.Time `json:"since"`
	Category Category  `json:"category,omitempty"`
	Limit    int       `json:"limit"`
}

// StateStats aggregates alerts per state.
type StateStats struct {
	State          string  `json:"state"`
	AlertCount     int     `json:"alert_count"`
	AvgReliability float64 `json:"avg_reliability"`
	AvgConfidence  float64 `json:"avg_confidence"`
	TotalThumbsUp  int     `json:"total_thumbs_up"`
	CenterLat      float64 `json:"center_lat"`
	CenterLon      float64 `json:"center_lon"`
}
