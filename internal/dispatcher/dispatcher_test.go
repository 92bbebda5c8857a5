package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/cepro/hems-controller/internal/bus"
	"github.com/cepro/hems-controller/internal/notify"
	"github.com/cepro/hems-controller/internal/rtl"
)

type fakeRTLCore struct{}

func (fakeRTLCore) Consumption(ctx context.Context) (float64, error) { return 0, nil }
func (fakeRTLCore) DeviceState(ctx context.Context, entityID, field string) (any, error) {
	return 0.0, nil
}
func (fakeRTLCore) PostSetpoint(ctx context.Context, entityID string, setpoint float64) error {
	return nil
}

func TestHandleStopRequestDrainsRunningLimiter(t *testing.T) {
	limiter := rtl.New(fakeRTLCore{}, notify.LoggingPublisher{}, rtl.Options{TickPeriod: 5 * time.Millisecond}, nil)
	if err := limiter.Start(context.Background(), nil, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	d := &Dispatcher{
		rtlCore:    fakeRTLCore{},
		notifier:   notify.LoggingPublisher{},
		currentRTL: limiter,
	}

	ok := d.Handle(context.Background(), bus.Request{})
	if !ok {
		t.Fatal("expected stop request to ack true")
	}
	if limiter.State() != rtl.StateStopped {
		t.Fatalf("expected limiter to be STOPPED after stop request, got %s", limiter.State())
	}
	if d.currentRTL != nil {
		t.Fatal("expected dispatcher to clear currentRTL after stop request")
	}
}

func TestHandleNegativeAcksOnInvalidHorizon(t *testing.T) {
	d := &Dispatcher{}
	badParams := &bus.RequestParams{
		Start:           time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC),
		Stop:            time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), // stop before start
		IntervalSeconds: 600,
	}
	ok := d.Handle(context.Background(), bus.Request{Params: badParams})
	if ok {
		t.Fatal("expected negative ack for invalid horizon")
	}
}
