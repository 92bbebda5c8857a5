// Package devicemodel is the controllable-device model library.
//
// Each device class (space heating, water heater, electric storage, EV v1g)
// implements the shared Model contract: given the horizon and its own
// preference/state inputs, it contributes objective terms, constraints, and
// a dispatch expression to the planner's Problem, plus a critical-action
// fallback descriptor the real-time limiter applies directly. A registry
// maps device Kind to constructor, avoiding any class hierarchy.
package devicemodel

import (
	"fmt"

	"github.com/cepro/hems-controller/internal/horizon"
	"github.com/cepro/hems-controller/internal/solver"
)

// Kind identifies a device class.
type Kind string

const (
	KindSpaceHeating    Kind = "space_heating"
	KindWaterHeater     Kind = "water_heater"
	KindElectricStorage Kind = "electric_storage"
	KindElectricVehicle Kind = "electric_vehicle_v1g"
)

// CriticalActionKind is the shape of a device's minimum-impact fallback
// action, used when the real-time limiter curtails it.
type CriticalActionKind string

const (
	CriticalActionMinimumSetpoint CriticalActionKind = "minimum_setpoint"
	CriticalActionShutdown        CriticalActionKind = "shutdown"
	CriticalActionMinimumPower    CriticalActionKind = "minimum_power"
)

// CriticalAction is the descriptor returned by every device model and
// applied directly by the real-time limiter when a device must be curtailed.
type CriticalAction struct {
	Kind  CriticalActionKind
	Value float64 // meaning depends on Kind: the minimum setpoint (°C) or minimum power (W); unused for Shutdown
}

// Device is the immutable-within-a-cycle device record the planner and
// real-time limiter both operate on.
type Device struct {
	EntityID       string
	Kind           Kind
	Priority       int // higher = more important
	CriticalAction CriticalAction
	Params         any // kind-specific static parameters, see e.g. SpaceHeatingParams
}

// Contribution is what a device model hands to the planner: the decision
// variables it needs, the objective terms and constraints it contributes,
// and its instantaneous power dispatch expression.
type Contribution struct {
	EntityID string
	Kind     Kind

	Variables []solver.Variable
	Ineqs     []solver.Ineq
	Quadratic []quadraticTerm
	Linear    []linearTerm

	// JointInfNorm holds this device's terms for the single shared
	// infinity-norm penalty the planner adds once across every device that
	// contributes to it (space heating's comfort penalty is a joint max
	// over all zones and steps, not a per-zone max - see
	// internal/planner's AddContributions). Each expression here is
	// already scaled to its final per-unit weight; the planner applies one
	// shared multiplier across the combined set.
	JointInfNorm []solver.Expr

	// Dispatch[k] is the device's net power contribution at step k, in watts.
	Dispatch []solver.Expr

	// StateSeries holds named, per-step affine expressions the interpreter
	// extracts after solving (e.g. "temperature_c", "soc_wh") - these are
	// the quantities that end up in the published schedule and the TSDB
	// writer, beyond the raw dispatch power.
	StateSeries map[string][]solver.Expr

	CriticalAction CriticalAction

	// PostProcess, if non-nil, is applied by the planner interpreter after
	// solving.
	PostProcess func(sol *solver.Solution)
}

type quadraticTerm struct {
	weight float64
	exprs  []solver.Expr
}

type linearTerm struct {
	weight float64
	exprs  []solver.Expr
}

// addTo registers this contribution's variables, constraints and objective
// terms onto the planner's Problem.
func (c Contribution) addTo(p *solver.Problem) error {
	for _, v := range c.Variables {
		if err := p.AddVariable(v); err != nil {
			return fmt.Errorf("device %s: %w", c.EntityID, err)
		}
	}
	for _, ineq := range c.Ineqs {
		p.AddIneq(ineq)
	}
	for _, qt := range c.Quadratic {
		p.AddQuadratic(qt.weight, qt.exprs)
	}
	for _, lt := range c.Linear {
		p.AddLinearCost(lt.weight, lt.exprs)
	}
	return nil
}

// jointInfNormWeight is the shared multiplier on the single joint
// infinity-norm comfort penalty, per spec's "100*max_{z,k}(...)" term.
const jointInfNormWeight = 100

// AddJointPenalties combines every contribution's JointInfNorm terms into one
// shared infinity-norm penalty (a single epigraph max across all of them),
// rather than one max per device. Call once after every device's
// Contribution has been built and added via AddContribution.
func AddJointPenalties(p *solver.Problem, contributions []Contribution) error {
	var joint []solver.Expr
	for _, c := range contributions {
		joint = append(joint, c.JointInfNorm...)
	}
	if len(joint) == 0 {
		return nil
	}
	if err := p.AddInfNormPenalty(jointInfNormWeight, joint); err != nil {
		return fmt.Errorf("joint infinity-norm penalty: %w", err)
	}
	return nil
}

// Preferences bundles the per-device, horizon-aligned preference/forecast
// series a model needs to build its contribution.
type Preferences struct {
	Setpoints        horizon.Series // target temperature / SoC trajectory, meaning is device-kind specific
	Occupancy        horizon.Series // 0/1 occupancy signal (space heating zones)
	ConnectionProfile horizon.Series // B[k] in {0,1}: EV plugged in (electric vehicle)
	HotWaterDraw     horizon.Series // V̇[k], litres/step (water heater)
	FinalTarget      *float64       // not read by any model; the E[N] >= E_final constraint comes from EFinalWh in the storage/EV Params
}

// Model is the shared contract every device class implements.
type Model interface {
	// Build returns this device's contribution to the planner's problem for
	// the given horizon, outdoor weather series, and preferences.
	Build(h horizon.Horizon, weather horizon.Series, prefs Preferences) (Contribution, error)

	// CriticalAction returns this device's minimum-impact fallback
	// descriptor. It depends only on the device's static Params, so it is
	// available without a horizon or Preferences - BuildDevices calls it
	// once at startup to populate Device.CriticalAction for the RTL, and
	// Build calls it again per-cycle for Contribution.CriticalAction, so
	// both always agree by construction.
	CriticalAction() CriticalAction
}

// Constructor builds a Model for a Device's kind-specific Params.
type Constructor func(d Device) (Model, error)

// registry maps device Kind to its Model constructor.
var registry = map[Kind]Constructor{
	KindSpaceHeating:    newSpaceHeatingModel,
	KindWaterHeater:     newWaterHeaterModel,
	KindElectricStorage: newElectricStorageModel,
	KindElectricVehicle: newElectricVehicleModel,
}

// New constructs the Model for a device, dispatching on its Kind via the
// registry.
func New(d Device) (Model, error) {
	ctor, ok := registry[d.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown device kind %q for entity %q", d.Kind, d.EntityID)
	}
	return ctor(d)
}

// AddContribution is the single entry point the planner uses to fold a
// device's contribution into the shared Problem.
func AddContribution(p *solver.Problem, c Contribution) error {
	return c.addTo(p)
}
