package rtl

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/cepro/hems-controller/internal/devicemodel"
	"github.com/cepro/hems-controller/internal/errkind"
	"github.com/cepro/hems-controller/internal/horizon"
	"github.com/cepro/hems-controller/internal/notify"
)

const criticalActionEpsilon = 1e-6

// tick runs one sample-compare-curtail iteration of the control loop.
func (l *Limiter) tick(ctx context.Context, t time.Time, devices []devicemodel.Device, limitProfile horizon.Series) {
	total, err := l.core.Consumption(ctx)
	if err != nil {
		l.logger.Warn("rtl: sample total consumption failed, skipping tick", "error", &errkind.DataUnavailable{Reason: "total consumption", Err: err})
		return
	}
	totalW := total * 1000 // Consumption is reported in kW

	limit, ok := newPiecewiseProfile(limitProfile).lookup(t)
	if !ok {
		l.logger.Warn("rtl: no power limit defined at or before this tick, skipping", "time", t)
		return
	}

	if totalW <= limit-l.opts.SafetyMarginW {
		return
	}

	next := l.selectDevice(ctx, t, devices)
	if next == nil {
		l.logger.Warn("rtl: no eligible device to curtail", "total_w", totalW, "limit_w", limit)
		_ = l.notifier.Publish(ctx, notify.Event{
			Kind:    notify.KindCurtailmentExhausted,
			Message: "consumption exceeds limit and no eligible device remains to curtail",
			Time:    t,
		})
		return
	}

	value := criticalActionValue(next.CriticalAction)
	if err := l.core.PostSetpoint(ctx, next.EntityID, value); err != nil {
		l.logger.Error("rtl: curtailment setpoint write failed", "entity_id", next.EntityID, "error", &errkind.WriteFailed{Target: next.EntityID, Err: err})
		return
	}

	l.mu.Lock()
	l.lastAdjusted[next.EntityID] = t
	l.mu.Unlock()
	l.logger.Info("rtl: curtailed device", "entity_id", next.EntityID, "critical_action", next.CriticalAction.Kind)
}

// selectDevice picks the lowest-priority device that is not within its
// anti-rebound window and not already at its critical action.
func (l *Limiter) selectDevice(ctx context.Context, t time.Time, devices []devicemodel.Device) *devicemodel.Device {
	eligible := make([]devicemodel.Device, 0, len(devices))
	for _, d := range devices {
		if l.withinAntiRebound(d, t) {
			continue
		}
		atCritical, err := l.atCriticalAction(ctx, d)
		if err != nil {
			l.logger.Warn("rtl: device state read failed, treating as ineligible", "entity_id", d.EntityID, "error", err)
			continue
		}
		if atCritical {
			continue
		}
		eligible = append(eligible, d)
	}
	if len(eligible) == 0 {
		return nil
	}

	sort.Slice(eligible, func(i, j int) bool { return eligible[i].Priority < eligible[j].Priority })
	return &eligible[0]
}

// withinAntiRebound reports whether d was adjusted within its debounce
// window, which is longer for batteries than other device kinds.
func (l *Limiter) withinAntiRebound(d devicemodel.Device, t time.Time) bool {
	l.mu.Lock()
	last, ok := l.lastAdjusted[d.EntityID]
	l.mu.Unlock()
	if !ok {
		return false
	}
	window := l.opts.AntiReboundDefault
	if d.Kind == devicemodel.KindElectricStorage {
		window = l.opts.AntiReboundBattery
	}
	return t.Sub(last) < window
}

// atCriticalAction reports whether a device's current reported state
// already matches its critical action, per the action kind's meaning.
func (l *Limiter) atCriticalAction(ctx context.Context, d devicemodel.Device) (bool, error) {
	switch d.CriticalAction.Kind {
	case devicemodel.CriticalActionShutdown:
		power, err := l.readFloat(ctx, d.EntityID, "power")
		if err != nil {
			return false, err
		}
		return power <= criticalActionEpsilon, nil
	case devicemodel.CriticalActionMinimumPower:
		power, err := l.readFloat(ctx, d.EntityID, "power")
		if err != nil {
			return false, err
		}
		return power <= d.CriticalAction.Value+criticalActionEpsilon, nil
	case devicemodel.CriticalActionMinimumSetpoint:
		setpoint, err := l.readFloat(ctx, d.EntityID, "setpoint_c")
		if err != nil {
			return false, err
		}
		return setpoint <= d.CriticalAction.Value+criticalActionEpsilon, nil
	default:
		return false, nil
	}
}

func (l *Limiter) readFloat(ctx context.Context, entityID, field string) (float64, error) {
	raw, err := l.core.DeviceState(ctx, entityID, field)
	if err != nil {
		return 0, err
	}
	v, ok := toFloat(raw)
	if !ok {
		return 0, &errkind.DataUnavailable{Reason: "device state field " + field + " is not numeric"}
	}
	return v, nil
}

// toFloat coerces a decoded any (as produced by encoding/json) to float64.
func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// criticalActionValue returns the setpoint value to POST for a critical
// action.
func criticalActionValue(a devicemodel.CriticalAction) float64 {
	switch a.Kind {
	case devicemodel.CriticalActionShutdown:
		return 0
	default:
		return a.Value
	}
}
