// Package planner implements the Model Predictive Planner (MPP):
// construction (gather device contributions into one convex program),
// solve (hand off to internal/solver), and interpretation (extract dense
// per-device result series). Grounded on
// controller.runControlLoop's "gather contributions from every enabled
// component, combine, act" shape, generalized from a fixed priority list to
// an assembled convex program.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cepro/hems-controller/internal/devicemodel"
	"github.com/cepro/hems-controller/internal/errkind"
	"github.com/cepro/hems-controller/internal/horizon"
	"github.com/cepro/hems-controller/internal/solver"
)

// Request is the planner's construction input.
type Request struct {
	Horizon      horizon.Horizon
	PriceProfile horizon.Series // π[k], currency per Wh (the cost term multiplies it by watts × hours)
	PowerLimit   horizon.Series // S_limit[k], watts

	EnableSpaceHeating    bool
	EnableElectricStorage bool
	EnableElectricVehicle bool
	EnableWaterHeater     bool
}

// enabled reports whether kind is requested by this Request.
func (r Request) enabled(kind devicemodel.Kind) bool {
	switch kind {
	case devicemodel.KindSpaceHeating:
		return r.EnableSpaceHeating
	case devicemodel.KindElectricStorage:
		return r.EnableElectricStorage
	case devicemodel.KindElectricVehicle:
		return r.EnableElectricVehicle
	case devicemodel.KindWaterHeater:
		return r.EnableWaterHeater
	default:
		return false
	}
}

// DataSource supplies every external input the planner needs to build a
// cycle's problem: the non-controllable load forecast, outdoor weather, and
// per-device preference series. Kept as a narrow interface so Planner has
// no direct HTTP dependency; NewCoreAPISource (datasource.go) provides the
// production implementation on top of internal/coreapi.
type DataSource interface {
	NonControllableForecast(ctx context.Context, h horizon.Horizon) (horizon.Series, error)
	Weather(ctx context.Context, h horizon.Horizon) (horizon.Series, error)
	Preferences(ctx context.Context, d devicemodel.Device, h horizon.Horizon) (devicemodel.Preferences, error)
}

// Planner runs one MPP cycle per Plan call: construct, solve, interpret.
type Planner struct {
	devices []devicemodel.Device
	source  DataSource
	logger  *slog.Logger
}

// New returns a Planner over the given device inventory.
func New(devices []devicemodel.Device, source DataSource, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{devices: devices, source: source, logger: logger}
}

// Result is the outcome of one planning cycle.
type Result struct {
	Status   solver.Status
	SolveDur time.Duration
	Schedule Schedule
}

// Plan executes one construction → solve → interpret cycle.
func (p *Planner) Plan(ctx context.Context, req Request) (*Result, error) {
	if err := req.Horizon.Validate(); err != nil {
		return nil, err
	}

	su, err := p.source.NonControllableForecast(ctx, req.Horizon)
	if err != nil {
		return nil, &errkind.DataUnavailable{Reason: "non-controllable load forecast", Err: err}
	}
	suDense, err := su.Dense(req.Horizon)
	if err != nil {
		return nil, err
	}

	weather, err := p.source.Weather(ctx, req.Horizon)
	if err != nil {
		return nil, &errkind.DataUnavailable{Reason: "weather forecast", Err: err}
	}

	prob := solver.NewProblem()
	contributions := make([]devicemodel.Contribution, 0, len(p.devices))

	for _, d := range p.devices {
		if !req.enabled(d.Kind) {
			continue
		}
		model, err := devicemodel.New(d)
		if err != nil {
			return nil, fmt.Errorf("planner: %w", err)
		}
		prefs, err := p.source.Preferences(ctx, d, req.Horizon)
		if err != nil {
			return nil, &errkind.DataUnavailable{Reason: fmt.Sprintf("preferences for %s", d.EntityID), Err: err}
		}
		contribution, err := model.Build(req.Horizon, weather, prefs)
		if err != nil {
			return nil, fmt.Errorf("planner: build %s: %w", d.EntityID, err)
		}
		if err := devicemodel.AddContribution(prob, contribution); err != nil {
			return nil, fmt.Errorf("planner: %w", err)
		}
		contributions = append(contributions, contribution)
	}

	if err := devicemodel.AddJointPenalties(prob, contributions); err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	if err := addGlobalConstraints(prob, req, contributions, suDense); err != nil {
		return nil, err
	}

	sol, err := prob.Solve()
	if err != nil {
		return nil, &errkind.SolverError{Err: err}
	}
	if !sol.Status.Accepted() {
		p.logger.Error("planner cycle infeasible", "status", sol.Status, "solve_dur", sol.SolveDur)
		res := &Result{Status: sol.Status, SolveDur: sol.SolveDur}
		if sol.Status == solver.StatusSolverError {
			return res, &errkind.SolverError{Err: fmt.Errorf("solver status %s", sol.Status)}
		}
		return res, &errkind.SolverInfeasible{Status: string(sol.Status)}
	}

	// The solver itself runs to completion uninterruptibly; cancellation is
	// only honored at this boundary, strictly after solve and before
	// interpretation begins.
	if err := ctx.Err(); err != nil {
		return &Result{Status: sol.Status, SolveDur: sol.SolveDur}, err
	}

	for _, c := range contributions {
		if c.PostProcess != nil {
			c.PostProcess(sol)
		}
	}

	schedule := interpret(req.Horizon, contributions, sol)

	return &Result{Status: sol.Status, SolveDur: sol.SolveDur, Schedule: schedule}, nil
}

// addGlobalConstraints adds the net power constraint S_net[k] <= S_limit[k]
// across all devices, plus the global price cost.
func addGlobalConstraints(prob *solver.Problem, req Request, contributions []devicemodel.Contribution, suDense []float64) error {
	n := req.Horizon.Steps()
	limit, err := req.PowerLimit.Dense(req.Horizon)
	if err != nil {
		return &errkind.DataUnavailable{Reason: "power limit profile", Err: err}
	}
	price, err := req.PriceProfile.Dense(req.Horizon)
	if err != nil {
		return &errkind.DataUnavailable{Reason: "price profile", Err: err}
	}
	dt := req.Horizon.StepHours()

	for k := 0; k < n; k++ {
		net := solver.NewExpr(suDense[k])
		for _, c := range contributions {
			net = net.Add(c.Dispatch[k])
		}
		prob.AddIneq(solver.Ineq{Expr: net, Lower: -1e18, Upper: limit[k]})
		prob.AddLinearCost(price[k]*dt, []solver.Expr{net})
	}
	return nil
}
