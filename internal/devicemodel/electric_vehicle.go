package devicemodel

import (
	"fmt"

	"github.com/cepro/hems-controller/internal/horizon"
	"github.com/cepro/hems-controller/internal/solver"
)

// ElectricVehicleParams are the static parameters of a V1G EV charger.
// This is the only device kind that introduces a binary
// decision variable, making the global planner problem mixed-integer convex.
type ElectricVehicleParams struct {
	PMaxW         float64
	EMinWh        float64
	EMaxWh        float64
	EInitialWh    float64
	EFinalWh      *float64
	Gamma         float64
	EtaCharge     float64
	ComfortWeight float64
	EDesiredWh    float64
}

type electricVehicleModel struct {
	entity string
	params ElectricVehicleParams
}

func newElectricVehicleModel(d Device) (Model, error) {
	p, ok := d.Params.(ElectricVehicleParams)
	if !ok {
		return nil, fmt.Errorf("device %s: expected ElectricVehicleParams, got %T", d.EntityID, d.Params)
	}
	return &electricVehicleModel{entity: d.EntityID, params: p}, nil
}

// Build implements Model for the EV. The binary charge gate u[k] multiplies
// the known connection profile B[k] and the fixed max power; since B[k] is
// data rather than a decision, u[k]*B[k]*P_max is still affine in u[k] once
// B[k] is folded into u[k]'s own per-step upper bound (0 when disconnected).
func (m *electricVehicleModel) Build(h horizon.Horizon, weather horizon.Series, prefs Preferences) (Contribution, error) {
	n := h.Steps()
	dt := h.StepHours()
	p := m.params

	conn, err := prefs.ConnectionProfile.Dense(h)
	if err != nil {
		return Contribution{}, fmt.Errorf("electric vehicle %s: connection profile: %w", m.entity, err)
	}

	gateVar := m.varName("u")
	energyVar := m.varName("E")

	gateLower := make([]float64, n)
	gateUpper := make([]float64, n)
	eLower := make([]float64, n)
	eUpper := make([]float64, n)
	for k := 0; k < n; k++ {
		gateUpper[k] = 1
		if conn[k] == 0 {
			gateUpper[k] = 0 // u[k] = 0 when disconnected
		}
		eLower[k] = p.EMinWh
		eUpper[k] = p.EMaxWh
	}
	eLower[0] = p.EInitialWh
	eUpper[0] = p.EInitialWh

	c := Contribution{
		EntityID: m.entity,
		Kind:     KindElectricVehicle,
		Variables: []solver.Variable{
			{Name: gateVar, N: n, Lower: gateLower, Upper: gateUpper, Integer: true},
			{Name: energyVar, N: n, Lower: eLower, Upper: eUpper},
		},
		Dispatch:       make([]solver.Expr, n),
		StateSeries:    map[string][]solver.Expr{"soc_wh": make([]solver.Expr, n)},
		CriticalAction: m.CriticalAction(),
	}

	chargeRate := p.EtaCharge * p.PMaxW * dt
	for k := 0; k < n; k++ {
		// p_ev[k] = u[k]*B[k]*P_max: the coefficient on u[k] is B[k]*P_max,
		// which is 0 when disconnected (where u[k]'s bound is also 0).
		c.Dispatch[k] = solver.Term(conn[k]*p.PMaxW, gateVar, k)
		c.StateSeries["soc_wh"][k] = solver.Term(1, energyVar, k)

		if k+1 < n {
			// E[k+1] - gamma*E[k] - eta_c*P_max*B[k]*u[k]*dt = 0
			rhs := solver.Term(1, energyVar, k+1).
				Sub(solver.Term(p.Gamma, energyVar, k)).
				Sub(solver.Term(chargeRate*conn[k], gateVar, k))
			c.Ineqs = append(c.Ineqs, solver.Ineq{Expr: rhs, Lower: 0, Upper: 0})
		}
	}

	if p.EFinalWh != nil {
		c.Ineqs = append(c.Ineqs, solver.Ineq{
			Expr:  solver.Term(1, energyVar, n-1),
			Lower: *p.EFinalWh,
			Upper: unboundedUpper,
		})
	}

	if p.ComfortWeight != 0 {
		terms := make([]solver.Expr, n)
		for k := 0; k < n; k++ {
			terms[k] = solver.NewExpr(p.EDesiredWh).Sub(solver.Term(1, energyVar, k))
		}
		c.Quadratic = append(c.Quadratic, quadraticTerm{weight: p.ComfortWeight, exprs: terms})
	}

	return c, nil
}

// CriticalAction implements Model. EVs have no safe partial-power state, so
// curtailment is always a full shutdown of the charge gate.
func (m *electricVehicleModel) CriticalAction() CriticalAction {
	return CriticalAction{Kind: CriticalActionShutdown}
}

func (m *electricVehicleModel) varName(suffix string) string {
	return m.entity + "_" + suffix
}
