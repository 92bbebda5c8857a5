package devicemodel

import (
	"fmt"
	"math"

	"github.com/cepro/hems-controller/internal/horizon"
	"github.com/cepro/hems-controller/internal/solver"
)

// SpaceHeatingParams are the static parameters of one space-heating zone.
// The full thermal model is a coupled state-space system
// across all zones (Ax, Au, Aw are Z×Z, Z×U, Z×D matrices - see
// internal/thermalmodel); each zone device instance carries only its own
// row of that system, so the zone's Contribution stays self-contained the
// same way every other device kind's does. The learner keeps AxSelf >= 0;
// it caps Ax row sums at 1 but does not cap AxSelf on its own.
type SpaceHeatingParams struct {
	AxSelf        float64   // this zone's Ax[z,z] entry
	AuRow         []float64 // this zone's Au[z,:] row, one coefficient per heater feeding the zone, all >= 0
	AwCoeff       float64   // this zone's Aw[z,:] coefficient on the outdoor-temperature channel
	HeaterPMaxW   float64   // 16000/U, shared per-heater cap
	RampLimitW    float64   // per-heater ramp limit between steps, default 2000 (2.0 kW)
	TMinC         float64
	TMaxC         float64
	TInitialC     float64
	ComfortWeight float64 // P_z
	ComfortDeltaC float64 // Δα_sh
}

type spaceHeatingModel struct {
	entity string
	params SpaceHeatingParams
}

func newSpaceHeatingModel(d Device) (Model, error) {
	p, ok := d.Params.(SpaceHeatingParams)
	if !ok {
		return nil, fmt.Errorf("device %s: expected SpaceHeatingParams, got %T", d.EntityID, d.Params)
	}
	if len(p.AuRow) == 0 {
		return nil, fmt.Errorf("device %s: space heating zone needs at least one heater", d.EntityID)
	}
	return &spaceHeatingModel{entity: d.EntityID, params: p}, nil
}

// Build implements Model for one space-heating zone. Dynamics (vectorized in
// the source, here restricted to this zone's row):
// T_z[k+1] = AxSelf*T_z[k] + AuRow·p[k+1] + AwCoeff·w[k+1]
func (m *spaceHeatingModel) Build(h horizon.Horizon, weather horizon.Series, prefs Preferences) (Contribution, error) {
	n := h.Steps()
	p := m.params
	numHeaters := len(p.AuRow)

	outdoor, err := weather.Dense(h)
	if err != nil {
		return Contribution{}, fmt.Errorf("space heating %s: outdoor weather: %w", m.entity, err)
	}
	target, err := prefs.Setpoints.Dense(h)
	if err != nil {
		return Contribution{}, fmt.Errorf("space heating %s: target temperature: %w", m.entity, err)
	}
	occupancy, err := prefs.Occupancy.Dense(h)
	if err != nil {
		// Occupancy defaults to always-occupied when no schedule is supplied.
		occupancy = make([]float64, n)
		for k := range occupancy {
			occupancy[k] = 1
		}
	}

	tempVar := m.varName("T")
	heaterVars := make([]string, numHeaters)
	for u := range heaterVars {
		heaterVars[u] = m.varName(fmt.Sprintf("p_%d", u))
	}

	tempLower := make([]float64, n)
	tempUpper := make([]float64, n)
	for k := 0; k < n; k++ {
		tempLower[k] = p.TMinC
		tempUpper[k] = p.TMaxC
	}
	tempLower[0] = p.TInitialC
	tempUpper[0] = p.TInitialC

	c := Contribution{
		EntityID:       m.entity,
		Kind:           KindSpaceHeating,
		Dispatch:       make([]solver.Expr, n),
		StateSeries:    map[string][]solver.Expr{"temperature_c": make([]solver.Expr, n)},
		CriticalAction: m.CriticalAction(),
	}
	c.Variables = append(c.Variables, solver.Variable{Name: tempVar, N: n, Lower: tempLower, Upper: tempUpper})
	for u := 0; u < numHeaters; u++ {
		upper := make([]float64, n)
		for k := range upper {
			upper[k] = p.HeaterPMaxW
		}
		c.Variables = append(c.Variables, solver.Variable{Name: heaterVars[u], N: n, Lower: zeros(n), Upper: upper})
	}

	for k := 0; k < n; k++ {
		dispatch := solver.NewExpr(0)
		for u := 0; u < numHeaters; u++ {
			dispatch = dispatch.Add(solver.Term(1, heaterVars[u], k))
		}
		c.Dispatch[k] = dispatch
		c.StateSeries["temperature_c"][k] = solver.Term(1, tempVar, k)

		if k+1 < n {
			// T[k+1] - AxSelf*T[k] - AuRow·p[k+1] - AwCoeff*w[k+1] = 0
			rhs := solver.Term(1, tempVar, k+1).Sub(solver.Term(p.AxSelf, tempVar, k))
			for u := 0; u < numHeaters; u++ {
				rhs = rhs.Sub(solver.Term(p.AuRow[u], heaterVars[u], k+1))
			}
			rhs = rhs.Sub(solver.NewExpr(p.AwCoeff * outdoor[k+1]))
			c.Ineqs = append(c.Ineqs, solver.Ineq{Expr: rhs, Lower: 0, Upper: 0})
		}

		if k >= 1 {
			for u := 0; u < numHeaters; u++ {
				ramp := solver.Term(1, heaterVars[u], k).Sub(solver.Term(1, heaterVars[u], k-1))
				c.Ineqs = append(c.Ineqs, solver.Ineq{Expr: ramp, Lower: -p.RampLimitW, Upper: p.RampLimitW})
			}
		}
	}

	// Comfort: P_z * sum_k O_z[k] * ((T_d,z,k - T_z[k]) / Δα_sh)^2, plus this
	// zone's share of the single joint infinity-norm penalty
	// 100*max_{z,k}(P_z*O_z[k]*|(T_d,z,k - T_z,k)/Δα_sh|) the planner takes
	// across every space-heating zone at once (see AddJointPenalties). Each
	// zone contributes its own P_z-scaled terms to that shared max, rather
	// than maximizing independently over its own steps.
	if p.ComfortWeight != 0 && p.ComfortDeltaC != 0 {
		quadTerms := make([]solver.Expr, n)
		penaltyTerms := make([]solver.Expr, n)
		for k := 0; k < n; k++ {
			scale := math.Sqrt(math.Max(occupancy[k], 0)) / p.ComfortDeltaC
			diff := solver.NewExpr(target[k]).Sub(solver.Term(1, tempVar, k))
			quadTerms[k] = diff.Scale(scale)
			penaltyTerms[k] = diff.Scale(p.ComfortWeight * occupancy[k] / p.ComfortDeltaC)
		}
		c.Quadratic = append(c.Quadratic, quadraticTerm{weight: p.ComfortWeight, exprs: quadTerms})
		c.JointInfNorm = append(c.JointInfNorm, penaltyTerms...)
	}

	return c, nil
}

// CriticalAction implements Model.
func (m *spaceHeatingModel) CriticalAction() CriticalAction {
	return CriticalAction{Kind: CriticalActionMinimumSetpoint, Value: m.params.TMinC}
}

func (m *spaceHeatingModel) varName(suffix string) string {
	return m.entity + "_" + suffix
}
