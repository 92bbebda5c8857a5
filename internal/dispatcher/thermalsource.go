package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/cepro/hems-controller/internal/coreapi"
	"github.com/cepro/hems-controller/internal/devicemodel"
	"github.com/cepro/hems-controller/internal/horizon"
	"github.com/cepro/hems-controller/internal/thermalmodel"
)

const (
	thermalHistoryLookback = 14 * 24 * time.Hour
	thermalHistoryInterval = 30 * time.Minute

	historicTypeTemperature = "temperature_c"
	historicTypeHeaterPower = "power_w"

	weatherVariableOutdoorTemperature = "outdoor_temperature"
)

// coreAPIHistoryFetcher adapts the Core API's historic/weather endpoints to
// thermalmodel.HistoryFetcher, fetching the trailing thermalHistoryLookback
// window at thermalHistoryInterval resolution: one temperature series per
// zone, one power series per heater, and the outdoor-temperature weather
// series, all densified onto the same grid so thermalmodel.Fit receives
// aligned matrices.
type coreAPIHistoryFetcher struct {
	client  *coreapi.Client
	zoneIDs []string
	// heaterIDs gives the entity whose power draw feeds each heater
	// column of Au; for this module's one-heater-per-zone devices this is
	// the same list as zoneIDs.
	heaterIDs []string
}

func newCoreAPIHistoryFetcher(client *coreapi.Client, zoneIDs []string) *coreAPIHistoryFetcher {
	return &coreAPIHistoryFetcher{client: client, zoneIDs: zoneIDs, heaterIDs: zoneIDs}
}

// NewHistoryFetcher returns a thermalmodel.HistoryFetcher backed by the
// Core API, scoped to the space heating devices in devices (in order,
// giving the zone index used by applyThermalModel).
func NewHistoryFetcher(client *coreapi.Client, devices []devicemodel.Device) thermalmodel.HistoryFetcher {
	var zoneIDs []string
	for _, d := range devices {
		if d.Kind == devicemodel.KindSpaceHeating {
			zoneIDs = append(zoneIDs, d.EntityID)
		}
	}
	return newCoreAPIHistoryFetcher(client, zoneIDs)
}

// FetchThermalHistory implements thermalmodel.HistoryFetcher. The zones,
// heaters and weatherChannels arguments are the Manager's configured
// dimensions; this fetcher ignores weatherChannels beyond 1 since the Core
// API exposes a single outdoor-temperature weather variable.
func (f *coreAPIHistoryFetcher) FetchThermalHistory(zones, heaters, weatherChannels int) (X, U, W [][]float64, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(thermalHistoryInterval)
	h := horizon.Horizon{
		Start:    now.Add(-thermalHistoryLookback),
		Stop:     now,
		Interval: thermalHistoryInterval,
	}

	X = make([][]float64, 0, zones)
	for i := 0; i < zones && i < len(f.zoneIDs); i++ {
		series, err := f.client.Historic(ctx, historicTypeTemperature, h.Start, h.Stop, f.zoneIDs[i])
		if err != nil {
			return nil, nil, nil, fmt.Errorf("thermal history: zone %s temperature: %w", f.zoneIDs[i], err)
		}
		dense, err := series.Dense(h)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("thermal history: zone %s temperature: %w", f.zoneIDs[i], err)
		}
		X = append(X, dense)
	}

	U = make([][]float64, 0, heaters)
	for i := 0; i < heaters && i < len(f.heaterIDs); i++ {
		series, err := f.client.Historic(ctx, historicTypeHeaterPower, h.Start, h.Stop, f.heaterIDs[i])
		if err != nil {
			return nil, nil, nil, fmt.Errorf("thermal history: heater %s power: %w", f.heaterIDs[i], err)
		}
		dense, err := series.Dense(h)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("thermal history: heater %s power: %w", f.heaterIDs[i], err)
		}
		U = append(U, dense)
	}

	W = make([][]float64, 0, weatherChannels)
	if weatherChannels > 0 {
		series, err := f.client.Weather(ctx, coreapi.WeatherHistoric, weatherVariableOutdoorTemperature, h.Start, h.Stop)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("thermal history: weather: %w", err)
		}
		dense, err := series.Dense(h)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("thermal history: weather: %w", err)
		}
		W = append(W, dense)
		for i := 1; i < weatherChannels; i++ {
			W = append(W, make([]float64, len(dense)))
		}
	}

	return X, U, W, nil
}

// applyThermalModel copies the learned per-zone rows of m into each space
// heating device's Params, in device order (zone index = position among
// the space-heating devices). Devices of every other kind are left
// untouched. This keeps SpaceHeatingParams.AxSelf/AuRow/AwCoeff current
// with the thermal-model learner's latest fit without the planner needing
// any knowledge of thermalmodel itself.
func applyThermalModel(devices []devicemodel.Device, m *thermalmodel.Model) {
	zone := 0
	for i := range devices {
		if devices[i].Kind != devicemodel.KindSpaceHeating {
			continue
		}
		params, ok := devices[i].Params.(devicemodel.SpaceHeatingParams)
		if !ok || zone >= m.Zones() {
			zone++
			continue
		}
		params.AxSelf = m.Ax[zone][zone]
		params.AuRow = append([]float64(nil), m.Au[zone]...)
		if m.WeatherChannels() > 0 {
			params.AwCoeff = m.Aw[zone][0]
		}
		devices[i].Params = params
		zone++
	}
}
