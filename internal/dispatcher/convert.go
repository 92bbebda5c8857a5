package dispatcher

import (
	"fmt"
	"time"

	"github.com/cepro/hems-controller/internal/coreapi"
	"github.com/cepro/hems-controller/internal/horizon"
	"github.com/cepro/hems-controller/internal/planner"
	"github.com/cepro/hems-controller/internal/tsdbwriter"
)

// kWToW is the kW-to-watts conversion this package applies to every
// bus-supplied series, matching config.RTLConfig.SafetyMarginW's kW*1000
// convention: every internal series (device dispatch, RTL consumption,
// planner limits) is watts-denominated, but the bus wire format and
// spec.md's own scenarios express power_limit in kW.
const kWToW = 1000.0

// parseSeries decodes a bus request's RFC3339-keyed map into a
// horizon.Series, the same wire shape as coreapi.TimeSeriesResponse,
// scaling each value by scale on the way in. Callers pass kWToW for
// power_limit (kW -> W, same direction as SafetyMarginW) and 1/kWToW for
// price_profile ($/kWh -> $/Wh, since the planner's cost term
// price[k]*dt*net[k] needs price expressed per watt-hour once net[k] is
// watts rather than kW).
func parseSeries(m map[string]float64, scale float64) (horizon.Series, error) {
	out := make(horizon.Series, len(m))
	for k, v := range m {
		t, err := time.Parse(time.RFC3339, k)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", k, err)
		}
		out[t] = v * scale
	}
	return out, nil
}

// seriesResponse builds a coreapi.TimeSeriesResponse from a dense
// per-step slice aligned to h's step grid.
func seriesResponse(h horizon.Horizon, values []float64) coreapi.TimeSeriesResponse {
	times := h.Times()
	out := make(coreapi.TimeSeriesResponse, len(values))
	for k, v := range values {
		if k >= len(times) {
			break
		}
		out[times[k].Format(time.RFC3339)] = v
	}
	return out
}

// toCoreAPISchedule converts the planner's interpreted Schedule into the
// wire shape POSTed to /devices/schedule/{priority}.
func toCoreAPISchedule(h horizon.Horizon, schedule planner.Schedule) coreapi.Schedule {
	items := make([]coreapi.ScheduleItem, 0, len(schedule.Items))
	for _, item := range schedule.Items {
		out := coreapi.ScheduleItem{
			EntityID: item.EntityID,
			Kind:     string(item.Kind),
			PowerW:   seriesResponse(h, item.PowerW),
		}
		if temps, ok := item.State["temperature_c"]; ok {
			out.TemperatureC = seriesResponse(h, temps)
			if item.SetpointIsPlannedTemperature {
				out.SetpointC = seriesResponse(h, temps)
			}
		}
		if soc, ok := item.State["soc_wh"]; ok {
			out.SoCWh = seriesResponse(h, soc)
		}
		items = append(items, out)
	}
	return coreapi.Schedule{Items: items}
}

// toResults flattens the planner's interpreted Schedule into one
// tsdbwriter.Result per device per horizon step.
func toResults(h horizon.Horizon, schedule planner.Schedule) []tsdbwriter.Result {
	times := h.Times()
	var results []tsdbwriter.Result

	for _, item := range schedule.Items {
		temps := item.State["temperature_c"]
		soc := item.State["soc_wh"]

		for k := 0; k < len(times) && k < len(item.PowerW); k++ {
			r := tsdbwriter.Result{
				EntityID: item.EntityID,
				Kind:     string(item.Kind),
				Time:     times[k],
				PowerW:   floatPtr(item.PowerW[k]),
			}
			if k < len(temps) {
				r.TemperatureC = floatPtr(temps[k])
				if item.SetpointIsPlannedTemperature {
					r.SetpointC = floatPtr(temps[k])
				}
			}
			if k < len(soc) {
				r.SoCWh = floatPtr(soc[k])
			}
			results = append(results, r)
		}
	}

	return results
}

func floatPtr(v float64) *float64 { return &v }
