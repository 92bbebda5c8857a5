package devicemodel

import (
	"fmt"

	"github.com/cepro/hems-controller/internal/horizon"
	"github.com/cepro/hems-controller/internal/solver"
)

// WaterHeaterParams are the static parameters of a water heater device.
type WaterHeaterParams struct {
	CapacitanceCV  float64 // C*V, the tank's thermal capacitance (Wh/°C, matching PMaxW in watts)
	DrawLossCoeffC float64 // C, per-litre heat-loss coefficient applied to the draw term
	AmbientLossCoeff float64 // the fixed "2" conductance term of the tank-to-room loss
	PMaxW          float64 // maximum element power, watts
	TMinC          float64
	TMaxC          float64
	TInitialC      float64
	TInletC        float64
	ComfortWeight  float64 // P_wh
	ComfortDeltaC  float64 // Δα_wh, comfort normalization
	TargetC        float64 // T_d, desired tank temperature when no per-step setpoint series given
}

type waterHeaterModel struct {
	entity string
	params WaterHeaterParams
}

func newWaterHeaterModel(d Device) (Model, error) {
	p, ok := d.Params.(WaterHeaterParams)
	if !ok {
		return nil, fmt.Errorf("device %s: expected WaterHeaterParams, got %T", d.EntityID, d.Params)
	}
	return &waterHeaterModel{entity: d.EntityID, params: p}, nil
}

// Build implements Model for the water heater tank. Dynamics:
// T[k+1] = T[k] + (Δt/(C·V))·( p_wh[k] − C·V̇[k]·(T[k]−T_inlet) − 2·(T[k]−T_ambient[k]) )
// which is affine in T[k] and p_wh[k] since the draw V̇[k] and ambient
// temperature are known forecast series, not decision variables.
func (m *waterHeaterModel) Build(h horizon.Horizon, weather horizon.Series, prefs Preferences) (Contribution, error) {
	n := h.Steps()
	dt := h.StepHours()
	p := m.params

	draw, err := prefs.HotWaterDraw.Dense(h)
	if err != nil {
		return Contribution{}, fmt.Errorf("water heater %s: hot water draw: %w", m.entity, err)
	}
	ambient, err := weather.Dense(h)
	if err != nil {
		return Contribution{}, fmt.Errorf("water heater %s: ambient weather: %w", m.entity, err)
	}

	target := make([]float64, n)
	if dense, err := prefs.Setpoints.Dense(h); err == nil {
		target = dense
	} else {
		for k := range target {
			target[k] = p.TargetC
		}
	}

	dispatchVar := m.varName("p_wh")
	tempVar := m.varName("T")

	dispatchUpper := make([]float64, n)
	tempLower := make([]float64, n)
	tempUpper := make([]float64, n)
	for k := 0; k < n; k++ {
		dispatchUpper[k] = p.PMaxW
		tempLower[k] = p.TMinC
		tempUpper[k] = p.TMaxC
	}
	// T[0] fixed to the measured initial temperature.
	tempLower[0] = p.TInitialC
	tempUpper[0] = p.TInitialC

	c := Contribution{
		EntityID: m.entity,
		Kind:     KindWaterHeater,
		Variables: []solver.Variable{
			{Name: dispatchVar, N: n, Lower: zeros(n), Upper: dispatchUpper},
			{Name: tempVar, N: n, Lower: tempLower, Upper: tempUpper},
		},
		Dispatch:       make([]solver.Expr, n),
		StateSeries:    map[string][]solver.Expr{"temperature_c": make([]solver.Expr, n)},
		CriticalAction: m.CriticalAction(),
	}

	gainFactor := dt / p.CapacitanceCV
	for k := 0; k < n; k++ {
		c.Dispatch[k] = solver.Term(1, dispatchVar, k)
		c.StateSeries["temperature_c"][k] = solver.Term(1, tempVar, k)

		if k+1 < n {
			// T[k+1] - T[k] - gainFactor*(p[k] - C*V̇[k]*(T[k]-Tinlet) - loss*(T[k]-Tambient[k])) = 0
			// Expanded and collected on T[k]: coefficient is gainFactor*(C*V̇[k] + loss).
			lossSlope := p.DrawLossCoeffC*draw[k] + p.AmbientLossCoeff
			rhs := solver.Term(1, tempVar, k+1).
				Sub(solver.Term(1, tempVar, k)).
				Sub(solver.Term(gainFactor, dispatchVar, k)).
				Add(solver.Term(gainFactor*lossSlope, tempVar, k)).
				Sub(solver.NewExpr(gainFactor * (p.DrawLossCoeffC*draw[k]*p.TInletC + p.AmbientLossCoeff*ambient[k])))
			c.Ineqs = append(c.Ineqs, solver.Ineq{Expr: rhs, Lower: 0, Upper: 0})
		}
	}

	// Comfort: P_wh * sum_k ((T_d - T[k]) / Δα_wh)^2
	if p.ComfortWeight != 0 && p.ComfortDeltaC != 0 {
		scale := p.ComfortWeight / (p.ComfortDeltaC * p.ComfortDeltaC)
		terms := make([]solver.Expr, n)
		for k := 0; k < n; k++ {
			terms[k] = solver.NewExpr(target[k]).Sub(solver.Term(1, tempVar, k))
		}
		c.Quadratic = append(c.Quadratic, quadraticTerm{weight: scale, exprs: terms})
	}

	return c, nil
}

// CriticalAction implements Model.
func (m *waterHeaterModel) CriticalAction() CriticalAction {
	return CriticalAction{Kind: CriticalActionMinimumPower, Value: 0}
}

func (m *waterHeaterModel) varName(suffix string) string {
	return m.entity + "_" + suffix
}

func zeros(n int) []float64 {
	return make([]float64, n)
}
