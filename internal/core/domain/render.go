package domain

import "time"

// RenderPoint is a single marker handed to the map renderer.
type RenderPoint struct {
	ID          string    `json:"id"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Intensity   float64   `json:"intensity"` // reliability normalised to 0..1
	FillColor   string    `json:"fill_color"`
	BorderColor string    `json:"border_color"`
	Reliability int       `json:"reliability"`
	Confidence  int       `json:"confidence"`
	ThumbsUp    int       `json:"thumbs_up"`
	Subtype     string    `json:"subtype,omitempty"`
	Description string    `json:"description,omitempty"`
	Place       string    `json:"place,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Intensity normalises a 0-100 reliability score to 0..1.
func Intensity(reliability int) float64 {
	v := float64(reliability) / 100
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type colorBand struct {
	upTo   float64
	fill   string
	border string
}

var colorBands = []colorBand{
	{0.2, "#00BFFF", "#0080FF"},
	{0.4, "#00FF00", "#00CC00"},
	{0.6, "#FFFF00", "#FFD700"},
	{0.8, "#FF8C00", "#FF6600"},
	{0.9, "#FF4500", "#FF3300"},
}

// MarkerColors returns the fill and border colours for an intensity.
func MarkerColors(intensity float64) (fill, border string) {
	for _, b := range colorBands {
		if intensity <= b.upTo {
			return b.fill, b.border
		}
	}
	return "#FF0000", "#CC0000"
}

// NewRenderPoint converts a cached alert into a marker.
func NewRenderPoint(a Alert) RenderPoint {
	intensity := Intensity(a.Reliability)
	fill, border := MarkerColors(intensity)
	return RenderPoint{
		ID:          a.ID,
		Lat:         a.Location.Lat,
		Lon:         a.Location.Lon,
		Intensity:   intensity,
		FillColor:   fill,
		BorderColor: border,
		Reliability: a.Reliability,
		Confidence:  a.Confidence,
		ThumbsUp:    a.ThumbsUp,
		Subtype:     a.Subtype,
		Description: a.Description,
		Place:       a.Place(),
		PublishedAt: a.PublishedAt,
	}
}
