// Package wazefeed decodes Waze alert dumps into domain alerts.
package wazefeed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samirrijal/policetracker/internal/core/domain"
)

// Alert is one record of the feed.
type Alert struct {
	AlertID            string  `json:"alert_id"`
	Type               string  `json:"type"`
	Subtype            *string `json:"subtype"`
	ReportedBy         *string `json:"reported_by"`
	Description        *string `json:"description"`
	PublishDatetimeUTC string  `json:"publish_datetime_utc"`
	Country            string  `json:"country"`
	City               string  `json:"city"`
	Street             string  `json:"street"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	NumThumbsUp        int     `json:"num_thumbs_up"`
	AlertReliability   int     `json:"alert_reliability"`
	AlertConfidence    int     `json:"alert_confidence"`
}

type response struct {
	Status string `json:"status"`
	Data   struct {
		Alerts []Alert `json:"alerts"`
	} `json:"data"`
}

// Decode reads either a full feed response ({"data":{"alerts":[...]}}) or a
// bare array of alerts. Records without a city label are dropped, like the
// feed's own ingest does; type filtering is left to the importer.
func Decode(r io.Reader) ([]domain.Alert, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}

	var records []Alert
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode alert array: %w", err)
		}
	} else {
		var resp response
		if err := json.Unmarshal(trimmed, &resp); err != nil {
			return nil, fmt.Errorf("decode feed response: %w", err)
		}
		records = resp.Data.Alerts
	}

	alerts := make([]domain.Alert, 0, len(records))
	for _, rec := range records {
		if strings.TrimSpace(rec.City) == "" {
			continue
		}
		alerts = append(alerts, rec.toDomain())
	}
	return alerts, nil
}

func (a Alert) toDomain() domain.Alert {
	out := domain.Alert{
		ID:          a.AlertID,
		Type:        a.Type,
		Subtype:     deref(a.Subtype),
		ReportedBy:  deref(a.ReportedBy),
		Description: deref(a.Description),
		Country:     a.Country,
		City:        a.City,
		State:       domain.StateFromCity(a.City),
		Street:      a.Street,
		Location:    domain.GeoPoint{Lat: a.Latitude, Lon: a.Longitude},
		Reliability: a.AlertReliability,
		Confidence:  a.AlertConfidence,
		ThumbsUp:    a.NumThumbsUp,
	}
	if t, err := time.Parse(time.RFC3339, a.PublishDatetimeUTC); err == nil {
		out.PublishedAt = t.UTC()
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
