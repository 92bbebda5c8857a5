package dispatcher

import (
	"encoding/json"
	"fmt"

	"github.com/cepro/hems-controller/internal/coreapi"
	"github.com/cepro/hems-controller/internal/devicemodel"
)

// BuildDevices decodes the Core API's device inventory into the typed
// devicemodel.Device records the planner and RTL operate on, dispatching
// each config's Params by Kind into the matching kind-specific struct.
// Device.CriticalAction is read off the freshly-constructed Model itself
// (Model.CriticalAction), the same method Build calls to populate its own
// Contribution.CriticalAction, so the RTL's static descriptor and the
// planner's per-cycle descriptor can never diverge.
func BuildDevices(configs []coreapi.DeviceConfig) ([]devicemodel.Device, error) {
	devices := make([]devicemodel.Device, 0, len(configs))

	for _, cfg := range configs {
		d := devicemodel.Device{
			EntityID: cfg.EntityID,
			Kind:     devicemodel.Kind(cfg.Kind),
			Priority: cfg.Priority,
		}

		switch d.Kind {
		case devicemodel.KindSpaceHeating:
			var params devicemodel.SpaceHeatingParams
			if err := json.Unmarshal(cfg.Params, &params); err != nil {
				return nil, fmt.Errorf("dispatcher: decode space heating params for %s: %w", cfg.EntityID, err)
			}
			d.Params = params

		case devicemodel.KindWaterHeater:
			var params devicemodel.WaterHeaterParams
			if err := json.Unmarshal(cfg.Params, &params); err != nil {
				return nil, fmt.Errorf("dispatcher: decode water heater params for %s: %w", cfg.EntityID, err)
			}
			d.Params = params

		case devicemodel.KindElectricStorage:
			var params devicemodel.ElectricStorageParams
			if err := json.Unmarshal(cfg.Params, &params); err != nil {
				return nil, fmt.Errorf("dispatcher: decode electric storage params for %s: %w", cfg.EntityID, err)
			}
			d.Params = params

		case devicemodel.KindElectricVehicle:
			var params devicemodel.ElectricVehicleParams
			if err := json.Unmarshal(cfg.Params, &params); err != nil {
				return nil, fmt.Errorf("dispatcher: decode electric vehicle params for %s: %w", cfg.EntityID, err)
			}
			d.Params = params

		default:
			return nil, fmt.Errorf("dispatcher: unknown device kind %q for entity %q", cfg.Kind, cfg.EntityID)
		}

		model, err := devicemodel.New(d)
		if err != nil {
			return nil, fmt.Errorf("dispatcher: %w", err)
		}
		d.CriticalAction = model.CriticalAction()

		devices = append(devices, d)
	}

	return devices, nil
}
