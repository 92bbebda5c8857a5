package devicemodel

import (
	"testing"
	"time"

	"github.com/cepro/hems-controller/internal/horizon"
	"github.com/cepro/hems-controller/internal/solver"
)

func testHorizon(n int) horizon.Horizon {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return horizon.Horizon{Start: start, Stop: start.Add(time.Duration(n) * 10 * time.Minute), Interval: 10 * time.Minute}
}

func constSeries(h horizon.Horizon, v float64) horizon.Series {
	s := horizon.Series{}
	for _, t := range h.Times() {
		s[t] = v
	}
	return s
}

func TestWaterHeaterBuildAndSolve(t *testing.T) {
	h := testHorizon(6)
	d := Device{
		EntityID: "wh1",
		Kind:     KindWaterHeater,
		Params: WaterHeaterParams{
			CapacitanceCV:    5,
			DrawLossCoeffC:   0.001,
			AmbientLossCoeff: 0.02,
			PMaxW:            3000,
			TMinC:            45,
			TMaxC:            65,
			TInitialC:        55,
			TInletC:          10,
			ComfortWeight:    1,
			ComfortDeltaC:    5,
			TargetC:          55,
		},
	}
	model, err := New(d)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	prefs := Preferences{HotWaterDraw: constSeries(h, 0)}
	weather := constSeries(h, 18)

	c, err := model.Build(h, weather, prefs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(c.Dispatch) != h.Steps() {
		t.Fatalf("Dispatch length = %d, want %d", len(c.Dispatch), h.Steps())
	}
	if c.CriticalAction.Kind != CriticalActionMinimumPower {
		t.Fatalf("CriticalAction.Kind = %v, want minimum power", c.CriticalAction.Kind)
	}

	p := solver.NewProblem()
	if err := AddContribution(p, c); err != nil {
		t.Fatalf("AddContribution: %v", err)
	}
	sol, err := p.Solve()
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !sol.Status.Accepted() {
		t.Fatalf("status = %s, want accepted", sol.Status)
	}
}

func TestElectricStorageDispatchAndPostProcess(t *testing.T) {
	h := testHorizon(4)
	efinal := 5000.0
	d := Device{
		EntityID: "bs1",
		Kind:     KindElectricStorage,
		Params: ElectricStorageParams{
			PMaxW:         3000,
			EMinWh:        0,
			EMaxWh:        10000,
			EInitialWh:    4000,
			EFinalWh:      &efinal,
			Gamma:         0.999,
			EtaCharge:     0.95,
			EtaDischarge:  0.95,
			ComfortWeight: 1,
			EDesiredWh:    5000,
		},
	}
	model, err := New(d)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c, err := model.Build(h, constSeries(h, 10), Preferences{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	p := solver.NewProblem()
	if err := AddContribution(p, c); err != nil {
		t.Fatalf("AddContribution: %v", err)
	}
	sol, err := p.Solve()
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !sol.Status.Accepted() {
		t.Fatalf("status = %s, want accepted", sol.Status)
	}
	if c.PostProcess == nil {
		t.Fatal("PostProcess should be set for electric storage")
	}
	c.PostProcess(sol)
	pc := sol.Values["bs1_p_c"]
	pd := sol.Values["bs1_p_d"]
	for k := range pc {
		if pc[k] > 0 && pd[k] > 0 {
			t.Fatalf("step %d: p_c and p_d both nonzero after PostProcess", k)
		}
	}
}

func TestElectricVehicleGateZeroWhenDisconnected(t *testing.T) {
	h := testHorizon(4)
	d := Device{
		EntityID: "ev1",
		Kind:     KindElectricVehicle,
		Params: ElectricVehicleParams{
			PMaxW:         7000,
			EMinWh:        0,
			EMaxWh:        40000,
			EInitialWh:    10000,
			Gamma:         1,
			EtaCharge:     0.9,
			ComfortWeight: 1,
			EDesiredWh:    30000,
		},
	}
	model, err := New(d)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Disconnected across the entire horizon.
	conn := horizon.Series{}
	for _, tm := range h.Times() {
		conn[tm] = 0
	}
	c, err := model.Build(h, constSeries(h, 10), Preferences{ConnectionProfile: conn})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	p := solver.NewProblem()
	if err := AddContribution(p, c); err != nil {
		t.Fatalf("AddContribution: %v", err)
	}
	sol, err := p.Solve()
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !sol.Status.Accepted() {
		t.Fatalf("status = %s, want accepted", sol.Status)
	}
	for k, e := range c.Dispatch {
		if got := sol.Eval(e); got != 0 {
			t.Fatalf("step %d: dispatch = %v, want 0 when disconnected", k, got)
		}
	}
}

func TestSpaceHeatingStaysWithinBounds(t *testing.T) {
	h := testHorizon(6)
	d := Device{
		EntityID: "sh1",
		Kind:     KindSpaceHeating,
		Params: SpaceHeatingParams{
			AxSelf:        0.9,
			AuRow:         []float64{0.01},
			AwCoeff:       0.05,
			HeaterPMaxW:   4000,
			RampLimitW:    2000,
			TMinC:         18,
			TMaxC:         22,
			TInitialC:     20,
			ComfortWeight: 1,
			ComfortDeltaC: 1,
		},
	}
	model, err := New(d)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	prefs := Preferences{
		Setpoints: constSeries(h, 20),
		Occupancy: constSeries(h, 1),
	}
	c, err := model.Build(h, constSeries(h, 5), prefs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	p := solver.NewProblem()
	if err := AddContribution(p, c); err != nil {
		t.Fatalf("AddContribution: %v", err)
	}
	sol, err := p.Solve()
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !sol.Status.Accepted() {
		t.Fatalf("status = %s, want accepted", sol.Status)
	}
	temps := sol.Values["sh1_T"]
	for k, v := range temps {
		if v < d.Params.(SpaceHeatingParams).TMinC-1e-6 || v > d.Params.(SpaceHeatingParams).TMaxC+1e-6 {
			t.Fatalf("step %d: temperature = %v, out of bounds", k, v)
		}
	}
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New(Device{EntityID: "x", Kind: Kind("unknown")})
	if err == nil {
		t.Fatal("expected error for unknown device kind")
	}
}
