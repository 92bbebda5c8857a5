package planner

import (
	"github.com/cepro/hems-controller/internal/devicemodel"
	"github.com/cepro/hems-controller/internal/horizon"
	"github.com/cepro/hems-controller/internal/solver"
)

// Schedule is the interpreted output of a planning cycle: one entry per
// enabled device, each a dense per-step series ready for the Core API
// setpoint/schedule endpoints and the TSDB writer.
type Schedule struct {
	Items []ScheduleItem
}

// ScheduleItem is one device's interpreted plan.
type ScheduleItem struct {
	EntityID string
	Kind     devicemodel.Kind

	// PowerW is the device's dispatched power at each step, watts.
	PowerW []float64

	// State holds every named series the device contributed (e.g.
	// "temperature_c", "soc_wh"), keyed exactly as the device model named
	// them in Contribution.StateSeries.
	State map[string][]float64

	// SetpointIsPlannedTemperature is true for space heating: the planned
	// zone temperature trajectory IS the setpoint pushed to the device
	// (there is no separate "setpoint" decision variable), so the
	// published setpoint series IS the "temperature_c" state series.
	SetpointIsPlannedTemperature bool
}

// interpret extracts dense per-device series from a solved Solution.
func interpret(h horizon.Horizon, contributions []devicemodel.Contribution, sol *solver.Solution) Schedule {
	n := h.Steps()
	items := make([]ScheduleItem, 0, len(contributions))

	for _, c := range contributions {
		power := make([]float64, n)
		for k := 0; k < n && k < len(c.Dispatch); k++ {
			power[k] = sol.Eval(c.Dispatch[k])
		}

		state := make(map[string][]float64, len(c.StateSeries))
		for name, exprs := range c.StateSeries {
			series := make([]float64, len(exprs))
			for k, e := range exprs {
				series[k] = sol.Eval(e)
			}
			state[name] = series
		}

		items = append(items, ScheduleItem{
			EntityID:                     c.EntityID,
			Kind:                         c.Kind,
			PowerW:                       power,
			State:                        state,
			SetpointIsPlannedTemperature: c.Kind == devicemodel.KindSpaceHeating,
		})
	}

	return Schedule{Items: items}
}
