package coreapi

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-querystring/query"

	"github.com/cepro/hems-controller/internal/horizon"
)

// Devices implements GET /devices.
func (c *Client) Devices(ctx context.Context) ([]DeviceConfig, error) {
	var out []DeviceConfig
	if err := c.doGet(ctx, "/devices", "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeviceState implements GET /devices/state/{id}?field=....
func (c *Client) DeviceState(ctx context.Context, entityID, field string) (any, error) {
	q := struct {
		Field string `url:"field"`
	}{Field: field}
	values, err := query.Values(q)
	if err != nil {
		return nil, fmt.Errorf("coreapi: encode query: %w", err)
	}
	var out any
	path := fmt.Sprintf("/devices/state/%s", entityID)
	if err := c.doGet(ctx, path, values.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Consumption implements GET /building/consumption.
func (c *Client) Consumption(ctx context.Context) (float64, error) {
	var out struct {
		TotalKW float64 `json:"total_kw"`
	}
	if err := c.doGet(ctx, "/building/consumption", "", &out); err != nil {
		return 0, err
	}
	return out.TotalKW, nil
}

type rangeQuery struct {
	Type     string `url:"type,omitempty"`
	DeviceID string `url:"device_id,omitempty"`
	Variable string `url:"variable,omitempty"`
	Start    string `url:"start"`
	Stop     string `url:"stop"`
}

func encodeRange(q rangeQuery) (string, error) {
	values, err := query.Values(q)
	if err != nil {
		return "", fmt.Errorf("coreapi: encode query: %w", err)
	}
	return values.Encode(), nil
}

// Preferences implements GET /preferences?type=...&device_id=...&start=...&stop=....
func (c *Client) Preferences(ctx context.Context, prefType, deviceID string, start, stop time.Time) (horizon.Series, error) {
	qs, err := encodeRange(rangeQuery{Type: prefType, DeviceID: deviceID, Start: start.Format(time.RFC3339), Stop: stop.Format(time.RFC3339)})
	if err != nil {
		return nil, err
	}
	var out TimeSeriesResponse
	if err := c.doGet(ctx, "/preferences", qs, &out); err != nil {
		return nil, err
	}
	return out.ToSeries()
}

// Historic implements GET /historic?type=...&start=...&stop=...[&device_id=...].
func (c *Client) Historic(ctx context.Context, histType string, start, stop time.Time, deviceID string) (horizon.Series, error) {
	qs, err := encodeRange(rangeQuery{Type: histType, DeviceID: deviceID, Start: start.Format(time.RFC3339), Stop: stop.Format(time.RFC3339)})
	if err != nil {
		return nil, err
	}
	var out TimeSeriesResponse
	if err := c.doGet(ctx, "/historic", qs, &out); err != nil {
		return nil, err
	}
	return out.ToSeries()
}

// WeatherKind selects the /weather/{historic|forecast} path segment.
type WeatherKind string

const (
	WeatherHistoric WeatherKind = "historic"
	WeatherForecast WeatherKind = "forecast"
)

// Weather implements GET /weather/{historic|forecast}?variable=...&start=...&stop=....
func (c *Client) Weather(ctx context.Context, kind WeatherKind, variable string, start, stop time.Time) (horizon.Series, error) {
	qs, err := encodeRange(rangeQuery{Variable: variable, Start: start.Format(time.RFC3339), Stop: stop.Format(time.RFC3339)})
	if err != nil {
		return nil, err
	}
	var out TimeSeriesResponse
	path := fmt.Sprintf("/weather/%s", kind)
	if err := c.doGet(ctx, path, qs, &out); err != nil {
		return nil, err
	}
	return out.ToSeries()
}

// ForecastNonControllable implements
// GET /forecast/non_controllable?variable=...&start=...&stop=....
func (c *Client) ForecastNonControllable(ctx context.Context, variable string, start, stop time.Time) (horizon.Series, error) {
	qs, err := encodeRange(rangeQuery{Variable: variable, Start: start.Format(time.RFC3339), Stop: stop.Format(time.RFC3339)})
	if err != nil {
		return nil, err
	}
	var out TimeSeriesResponse
	if err := c.doGet(ctx, "/forecast/non_controllable", qs, &out); err != nil {
		return nil, err
	}
	return out.ToSeries()
}

// PostSetpoint implements POST /devices/setpoint/{id} body {setpoint: float}.
func (c *Client) PostSetpoint(ctx context.Context, entityID string, setpoint float64) error {
	body := struct {
		Setpoint float64 `json:"setpoint"`
	}{Setpoint: setpoint}
	path := fmt.Sprintf("/devices/setpoint/%s", entityID)
	return c.doPost(ctx, path, body)
}

// PostSchedule implements POST /devices/schedule/{priority} body: schedule JSON.
func (c *Client) PostSchedule(ctx context.Context, priority int, schedule Schedule) error {
	path := fmt.Sprintf("/devices/schedule/%d", priority)
	return c.doPost(ctx, path, schedule)
}
