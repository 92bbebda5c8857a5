package planner

import (
	"context"
	"fmt"

	"github.com/cepro/hems-controller/internal/coreapi"
	"github.com/cepro/hems-controller/internal/devicemodel"
	"github.com/cepro/hems-controller/internal/horizon"
)

// Preference type strings used against the Core API's /preferences?type=...
// endpoint, one per preference series a device model consumes.
const (
	prefTypeSetpoint          = "setpoint"
	prefTypeOccupancy         = "occupancy"
	prefTypeConnectionProfile = "connection_profile"
	prefTypeHotWaterDraw      = "hot_water_draw"
)

const forecastVariableNonControllableLoad = "non_controllable_load"
const weatherVariableOutdoorTemperature = "outdoor_temperature"

// coreAPISource adapts an *coreapi.Client to the planner's DataSource
// interface, mapping each device Kind to the preference series it consumes.
type coreAPISource struct {
	client *coreapi.Client
}

// NewCoreAPISource returns a DataSource backed by the Core API client.
func NewCoreAPISource(client *coreapi.Client) DataSource {
	return &coreAPISource{client: client}
}

func (s *coreAPISource) NonControllableForecast(ctx context.Context, h horizon.Horizon) (horizon.Series, error) {
	return s.client.ForecastNonControllable(ctx, forecastVariableNonControllableLoad, h.Start, h.Stop)
}

func (s *coreAPISource) Weather(ctx context.Context, h horizon.Horizon) (horizon.Series, error) {
	return s.client.Weather(ctx, coreapi.WeatherForecast, weatherVariableOutdoorTemperature, h.Start, h.Stop)
}

func (s *coreAPISource) Preferences(ctx context.Context, d devicemodel.Device, h horizon.Horizon) (devicemodel.Preferences, error) {
	var prefs devicemodel.Preferences
	var err error

	switch d.Kind {
	case devicemodel.KindSpaceHeating:
		if prefs.Setpoints, err = s.fetch(ctx, prefTypeSetpoint, d.EntityID, h); err != nil {
			return prefs, err
		}
		if prefs.Occupancy, err = s.fetch(ctx, prefTypeOccupancy, d.EntityID, h); err != nil {
			return prefs, err
		}
	case devicemodel.KindWaterHeater:
		if prefs.Setpoints, err = s.fetch(ctx, prefTypeSetpoint, d.EntityID, h); err != nil {
			return prefs, err
		}
		if prefs.HotWaterDraw, err = s.fetch(ctx, prefTypeHotWaterDraw, d.EntityID, h); err != nil {
			return prefs, err
		}
	case devicemodel.KindElectricStorage:
		// battery comfort target is a static parameter (EDesiredWh), no
		// preference series required.
	case devicemodel.KindElectricVehicle:
		if prefs.ConnectionProfile, err = s.fetch(ctx, prefTypeConnectionProfile, d.EntityID, h); err != nil {
			return prefs, err
		}
	default:
		return prefs, fmt.Errorf("planner: no preference mapping for device kind %q", d.Kind)
	}

	return prefs, nil
}

// fetch is a thin wrapper that passes an empty series through without error
// when a device has no preference rows of the requested type. Only some
// Build methods fall back to a default for an empty series (space heating
// occupancy becomes always-occupied, the water heater target becomes
// TargetC); the others fail to build without it.
func (s *coreAPISource) fetch(ctx context.Context, prefType, entityID string, h horizon.Horizon) (horizon.Series, error) {
	series, err := s.client.Preferences(ctx, prefType, entityID, h.Start, h.Stop)
	if err != nil {
		return nil, err
	}
	return series, nil
}
