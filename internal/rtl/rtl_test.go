package rtl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cepro/hems-controller/internal/devicemodel"
	"github.com/cepro/hems-controller/internal/horizon"
	"github.com/cepro/hems-controller/internal/notify"
)

type fakeCore struct {
	mu          sync.Mutex
	consumption float64
	power       map[string]float64
	setpointLog []string
}

func (f *fakeCore) Consumption(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.consumption, nil
}

func (f *fakeCore) DeviceState(ctx context.Context, entityID, field string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.power[entityID], nil
}

func (f *fakeCore) PostSetpoint(ctx context.Context, entityID string, setpoint float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setpointLog = append(f.setpointLog, entityID)
	f.power[entityID] = 0
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (f *fakeNotifier) Publish(ctx context.Context, event notify.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func constProfile(v float64) horizon.Series {
	return horizon.Series{time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC): v}
}

func TestSelectDeviceCurtailsLowestPriorityFirst(t *testing.T) {
	core := &fakeCore{consumption: 8, power: map[string]float64{"wh1": 4000, "sh1": 4000}}
	l := New(core, &fakeNotifier{}, Options{}, nil)

	devices := []devicemodel.Device{
		{EntityID: "wh1", Kind: devicemodel.KindWaterHeater, Priority: 1, CriticalAction: devicemodel.CriticalAction{Kind: devicemodel.CriticalActionMinimumPower, Value: 0}},
		{EntityID: "sh1", Kind: devicemodel.KindSpaceHeating, Priority: 5, CriticalAction: devicemodel.CriticalAction{Kind: devicemodel.CriticalActionMinimumSetpoint, Value: 18}},
	}

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	selected := l.selectDevice(context.Background(), t0, devices)
	if selected == nil || selected.EntityID != "wh1" {
		t.Fatalf("expected wh1 (lowest priority) selected, got %+v", selected)
	}
}

func TestAntiReboundExcludesRecentlyAdjustedDevice(t *testing.T) {
	core := &fakeCore{power: map[string]float64{"wh1": 4000, "sh1": 4000}}
	l := New(core, &fakeNotifier{}, Options{AntiReboundDefault: 5 * time.Second}, nil)

	devices := []devicemodel.Device{
		{EntityID: "wh1", Kind: devicemodel.KindWaterHeater, Priority: 1, CriticalAction: devicemodel.CriticalAction{Kind: devicemodel.CriticalActionMinimumPower, Value: 0}},
		{EntityID: "sh1", Kind: devicemodel.KindSpaceHeating, Priority: 5, CriticalAction: devicemodel.CriticalAction{Kind: devicemodel.CriticalActionMinimumSetpoint, Value: 18}},
	}

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.lastAdjusted["wh1"] = t0

	selected := l.selectDevice(context.Background(), t0.Add(2*time.Second), devices)
	if selected == nil || selected.EntityID != "sh1" {
		t.Fatalf("expected sh1 selected since wh1 is within anti-rebound window, got %+v", selected)
	}
}

func TestTickNotifiesWhenNoDeviceEligible(t *testing.T) {
	core := &fakeCore{consumption: 8, power: map[string]float64{"wh1": 0}}
	notifier := &fakeNotifier{}
	l := New(core, notifier, Options{}, nil)

	devices := []devicemodel.Device{
		{EntityID: "wh1", Kind: devicemodel.KindWaterHeater, Priority: 1, CriticalAction: devicemodel.CriticalAction{Kind: devicemodel.CriticalActionMinimumPower, Value: 0}},
	}

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.tick(context.Background(), t0, devices, constProfile(5000))

	if len(notifier.events) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.events))
	}
	if notifier.events[0].Kind != notify.KindCurtailmentExhausted {
		t.Fatalf("unexpected event kind %v", notifier.events[0].Kind)
	}
	if len(core.setpointLog) != 0 {
		t.Fatalf("expected no setpoint writes, got %v", core.setpointLog)
	}
}

func TestTickCurtailsWhenOverLimit(t *testing.T) {
	core := &fakeCore{consumption: 8, power: map[string]float64{"wh1": 4000}}
	l := New(core, &fakeNotifier{}, Options{}, nil)

	devices := []devicemodel.Device{
		{EntityID: "wh1", Kind: devicemodel.KindWaterHeater, Priority: 1, CriticalAction: devicemodel.CriticalAction{Kind: devicemodel.CriticalActionMinimumPower, Value: 0}},
	}

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.tick(context.Background(), t0, devices, constProfile(5000))

	if len(core.setpointLog) != 1 || core.setpointLog[0] != "wh1" {
		t.Fatalf("expected wh1 to be curtailed, got %v", core.setpointLog)
	}
}

func TestTickNoActionWhenUnderLimitWithMargin(t *testing.T) {
	core := &fakeCore{consumption: 4, power: map[string]float64{"wh1": 4000}}
	l := New(core, &fakeNotifier{}, Options{SafetyMarginW: 500}, nil)

	devices := []devicemodel.Device{
		{EntityID: "wh1", Kind: devicemodel.KindWaterHeater, Priority: 1, CriticalAction: devicemodel.CriticalAction{Kind: devicemodel.CriticalActionMinimumPower, Value: 0}},
	}

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.tick(context.Background(), t0, devices, constProfile(5000))

	if len(core.setpointLog) != 0 {
		t.Fatalf("expected no curtailment, got %v", core.setpointLog)
	}
}

func TestStartStopTransitionsState(t *testing.T) {
	core := &fakeCore{power: map[string]float64{}}
	l := New(core, &fakeNotifier{}, Options{TickPeriod: 10 * time.Millisecond}, nil)

	if l.State() != StateStopped {
		t.Fatalf("expected initial state STOPPED, got %s", l.State())
	}

	ctx := context.Background()
	if err := l.Start(ctx, nil, constProfile(1000)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if l.State() != StateRunning {
		t.Fatalf("expected RUNNING after Start, got %s", l.State())
	}

	l.Stop()
	if l.State() != StateStopped {
		t.Fatalf("expected STOPPED after Stop, got %s", l.State())
	}
}
