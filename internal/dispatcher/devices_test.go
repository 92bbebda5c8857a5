package dispatcher

import (
	"encoding/json"
	"testing"

	"github.com/cepro/hems-controller/internal/coreapi"
	"github.com/cepro/hems-controller/internal/devicemodel"
)

func TestBuildDevicesDecodesEachKind(t *testing.T) {
	shParams, _ := json.Marshal(devicemodel.SpaceHeatingParams{AxSelf: 0.9, AuRow: []float64{0.01}, TMinC: 16, TMaxC: 24})
	whParams, _ := json.Marshal(devicemodel.WaterHeaterParams{CapacitanceCV: 5, PMaxW: 3000, TMinC: 45, TMaxC: 65})
	bsParams, _ := json.Marshal(devicemodel.ElectricStorageParams{PMaxW: 5000, EMaxWh: 10000})
	evParams, _ := json.Marshal(devicemodel.ElectricVehicleParams{PMaxW: 7000, EMaxWh: 40000})

	configs := []coreapi.DeviceConfig{
		{EntityID: "sh1", Kind: "space_heating", Priority: 5, Params: shParams},
		{EntityID: "wh1", Kind: "water_heater", Priority: 1, Params: whParams},
		{EntityID: "bs1", Kind: "electric_storage", Priority: 2, Params: bsParams},
		{EntityID: "ev1", Kind: "electric_vehicle_v1g", Priority: 3, Params: evParams},
	}

	devices, err := BuildDevices(configs)
	if err != nil {
		t.Fatalf("BuildDevices: %v", err)
	}
	if len(devices) != 4 {
		t.Fatalf("expected 4 devices, got %d", len(devices))
	}

	byID := map[string]devicemodel.Device{}
	for _, d := range devices {
		byID[d.EntityID] = d
	}

	if byID["sh1"].CriticalAction.Kind != devicemodel.CriticalActionMinimumSetpoint {
		t.Fatalf("space heating critical action = %v, want minimum_setpoint", byID["sh1"].CriticalAction.Kind)
	}
	if byID["sh1"].CriticalAction.Value != 16 {
		t.Fatalf("space heating critical action value = %v, want 16", byID["sh1"].CriticalAction.Value)
	}
	if byID["ev1"].CriticalAction.Kind != devicemodel.CriticalActionShutdown {
		t.Fatalf("ev critical action = %v, want shutdown", byID["ev1"].CriticalAction.Kind)
	}
	if byID["wh1"].CriticalAction.Kind != devicemodel.CriticalActionMinimumPower {
		t.Fatalf("water heater critical action = %v, want minimum_power", byID["wh1"].CriticalAction.Kind)
	}
	if byID["bs1"].CriticalAction.Kind != devicemodel.CriticalActionMinimumPower {
		t.Fatalf("electric storage critical action = %v, want minimum_power", byID["bs1"].CriticalAction.Kind)
	}
}

func TestBuildDevicesRejectsUnknownKind(t *testing.T) {
	_, err := BuildDevices([]coreapi.DeviceConfig{{EntityID: "x", Kind: "unknown_kind", Params: json.RawMessage(`{}`)}})
	if err == nil {
		t.Fatal("expected error for unknown device kind")
	}
}
