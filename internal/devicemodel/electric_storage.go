package devicemodel

import (
	"fmt"

	"github.com/cepro/hems-controller/internal/horizon"
	"github.com/cepro/hems-controller/internal/solver"
)

// unboundedUpper is the large finite value used as the open side of a
// one-sided inequality, the same convention as the solver's own posInf and
// the planner's -1e18 lower bound on the net-power row.
const unboundedUpper = 1e18

// ElectricStorageParams are the static parameters of a battery device.
type ElectricStorageParams struct {
	PMaxW         float64 // maximum charge/discharge power, watts
	EMinWh        float64
	EMaxWh        float64
	EInitialWh    float64
	EFinalWh      *float64 // optional E[N] >= E_final
	Gamma         float64  // self-discharge retention per step
	EtaCharge     float64  // η_c
	EtaDischarge  float64  // η_d
	ComfortWeight float64
	EDesiredWh    float64
}

type electricStorageModel struct {
	entity string
	params ElectricStorageParams
}

func newElectricStorageModel(d Device) (Model, error) {
	p, ok := d.Params.(ElectricStorageParams)
	if !ok {
		return nil, fmt.Errorf("device %s: expected ElectricStorageParams, got %T", d.EntityID, d.Params)
	}
	return &electricStorageModel{entity: d.EntityID, params: p}, nil
}

// Build implements Model for the battery. Decisions p_c[k], p_d[k] >= 0 are
// kept separate rather than a single signed variable so that the energy
// dynamics and power limits stay linear; charge/discharge exclusivity is
// relaxed in the solve and corrected post-hoc via PostProcess.
func (m *electricStorageModel) Build(h horizon.Horizon, weather horizon.Series, prefs Preferences) (Contribution, error) {
	n := h.Steps()
	dt := h.StepHours()
	p := m.params

	chargeVar := m.varName("p_c")
	dischargeVar := m.varName("p_d")
	energyVar := m.varName("E")

	pUpper := make([]float64, n)
	eLower := make([]float64, n)
	eUpper := make([]float64, n)
	for k := 0; k < n; k++ {
		pUpper[k] = p.PMaxW
		eLower[k] = p.EMinWh
		eUpper[k] = p.EMaxWh
	}
	eLower[0] = p.EInitialWh
	eUpper[0] = p.EInitialWh

	c := Contribution{
		EntityID: m.entity,
		Kind:     KindElectricStorage,
		Variables: []solver.Variable{
			{Name: chargeVar, N: n, Lower: zeros(n), Upper: pUpper},
			{Name: dischargeVar, N: n, Lower: zeros(n), Upper: pUpper},
			{Name: energyVar, N: n, Lower: eLower, Upper: eUpper},
		},
		Dispatch:       make([]solver.Expr, n),
		StateSeries:    map[string][]solver.Expr{"soc_wh": make([]solver.Expr, n)},
		CriticalAction: m.CriticalAction(),
	}

	for k := 0; k < n; k++ {
		c.Dispatch[k] = solver.Term(1, chargeVar, k).Sub(solver.Term(1, dischargeVar, k))
		c.StateSeries["soc_wh"][k] = solver.Term(1, energyVar, k)

		if k+1 < n {
			// E[k+1] - gamma*E[k] - (eta_c*p_c[k] - p_d[k]/eta_d)*dt = 0
			rhs := solver.Term(1, energyVar, k+1).
				Sub(solver.Term(p.Gamma, energyVar, k)).
				Sub(solver.Term(p.EtaCharge*dt, chargeVar, k)).
				Add(solver.Term(dt/p.EtaDischarge, dischargeVar, k))
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

	// The relaxation may return simultaneously-nonzero p_c/p_d under
	// negative prices or zero losses; detect and zero the smaller.
	c.PostProcess = func(sol *solver.Solution) {
		pc := sol.Values[chargeVar]
		pd := sol.Values[dischargeVar]
		for k := range pc {
			if pc[k] > 0 && pd[k] > 0 {
				if pc[k] < pd[k] {
					pc[k] = 0
				} else {
					pd[k] = 0
				}
			}
		}
	}

	return c, nil
}

// CriticalAction implements Model.
func (m *electricStorageModel) CriticalAction() CriticalAction {
	return CriticalAction{Kind: CriticalActionMinimumPower, Value: 0}
}

func (m *electricStorageModel) varName(suffix string) string {
	return m.entity + "_" + suffix
}
