package domain

import (
	"fmt"
	"strings"
	"time"
)

// TimeWindow is the recency window selected in the map filter.
type TimeWindow string

const (
	Window24h TimeWindow = "24h"
	Window7d  TimeWindow = "7d"
	Window30d TimeWindow = "30d"
)

// DefaultWindow is the window a new map view starts with.
const DefaultWindow = Window24h

// ParseTimeWindow validates a window label. An empty label yields DefaultWindow.
func ParseTimeWindow(s string) (TimeWindow, error) {
	switch TimeWindow(s) {
	case "":
		return DefaultWindow, nil
	case Window24h, Window7d, Window30d:
		return TimeWindow(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidWindow, s)
}

// Duration returns the length of the window.
func (w TimeWindow) Duration() time.Duration {
	switch w {
	case Window7d:
		return 7 * 24 * time.Hour
	case Window30d:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Cutoff returns the earliest publish time still eligible for display.
func (w TimeWindow) Cutoff(now time.Time) time.Time {
	return now.Add(-w.Duration()).UTC()
}

// Covers reports whether data fetched for w also satisfies other.
func (w TimeWindow) Covers(other TimeWindow) bool {
	return w.Duration() >= other.Duration()
}

// Category restricts the displayed alerts to one subtype.
// CategoryAll matches every alert.
type Category string

const (
	CategoryAll          Category = ""
	CategoryVisible      Category = "POLICE_VISIBLE"
	CategoryHiding       Category = "POLICE_HIDING"
	CategoryMobileCamera Category = "POLICE_WITH_MOBILE_CAMERA"
)

// ParseCategory validates a category label. "" and "all" yield CategoryAll.
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToUpper(s)); c {
	case "", "ALL":
		return CategoryAll, nil
	case CategoryVisible, CategoryHiding, CategoryMobileCamera:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// Matches reports whether an alert passes the category filter.
func (c Category) Matches(a Alert) bool {
	return c == CategoryAll || a.Subtype == string(c)
}

// Covers reports whether data fetched under c also satisfies other.
func (c Category) Covers(other Category) bool {
	return c == CategoryAll || c == other
}

// Viewport is the map area currently visible.
type Viewport struct {
	Bounds Bounds  `json:"bounds"`
	Zoom   float64 `json:"zoom"`
}

// ViewState is everything the user controls on a map view.
type ViewState struct {
	Viewport Viewport   `json:"viewport"`
	Window   TimeWindow `json:"window"`
	Category Category   `json:"category"`
}
