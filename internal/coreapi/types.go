package coreapi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cepro/hems-controller/internal/horizon"
)

// DeviceConfig is one entry of GET /devices.
type DeviceConfig struct {
	EntityID string          `json:"entity_id"`
	Kind     string          `json:"kind"`
	Priority int             `json:"priority"`
	Params   json.RawMessage `json:"params"`
}

// TimeSeriesResponse is the wire shape of every time-series-returning
// endpoint: an object keyed by RFC3339 timestamp. It converts to/from
// horizon.Series.
type TimeSeriesResponse map[string]float64

// ToSeries parses RFC3339 keys into a horizon.Series.
func (r TimeSeriesResponse) ToSeries() (horizon.Series, error) {
	out := make(horizon.Series, len(r))
	for k, v := range r {
		t, err := time.Parse(time.RFC3339, k)
		if err != nil {
			return nil, fmt.Errorf("coreapi: parse timestamp %q: %w", k, err)
		}
		out[t] = v
	}
	return out, nil
}

// fromSeries is the inverse of ToSeries: it keys each value by its
// RFC3339-formatted timestamp.
func fromSeries(s horizon.Series) TimeSeriesResponse {
	out := make(TimeSeriesResponse, len(s))
	for t, v := range s {
		out[t.Format(time.RFC3339)] = v
	}
	return out
}

// ScheduleItem is one device's result series within a POST
// /devices/schedule/{priority} body.
type ScheduleItem struct {
	EntityID    string             `json:"entity_id"`
	Kind        string             `json:"kind"`
	PowerW      TimeSeriesResponse `json:"power_w,omitempty"`
	TemperatureC TimeSeriesResponse `json:"temperature_c,omitempty"`
	SoCWh       TimeSeriesResponse `json:"soc_wh,omitempty"`
	SetpointC   TimeSeriesResponse `json:"setpoint_c,omitempty"`
}

// Schedule is the full POST /devices/schedule/{priority} body.
type Schedule struct {
	Items []ScheduleItem `json:"items"`
}
