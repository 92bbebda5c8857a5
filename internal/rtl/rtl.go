// Package rtl implements the Real-Time Limiter: a ~1Hz reactive
// curtailment loop with anti-rebound debouncing and priority-ordered
// device selection, running independently of the MPP.
// Grounded directly on controller.Controller's Run loop shape (ticker +
// lifecycle channel select) and powerpack.PowerPack's Run (same shape,
// plus command issuance to an external device).
package rtl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cepro/hems-controller/internal/devicemodel"
	"github.com/cepro/hems-controller/internal/horizon"
	"github.com/cepro/hems-controller/internal/notify"
)

// State is the RTL lifecycle state: STOPPED -> RUNNING -> STOPPING ->
// STOPPED.
type State string

const (
	StateStopped  State = "STOPPED"
	StateRunning  State = "RUNNING"
	StateStopping State = "STOPPING"
)

const (
	defaultTickPeriod         = 1 * time.Second
	defaultSafetyMarginW      = 500 // 0.5 kW
	defaultAntiReboundDefault = 5 * time.Second
	defaultAntiReboundBattery = 30 * time.Second
)

// CoreSource is the subset of internal/coreapi.Client the limiter needs:
// sampling total site consumption, reading one device's current state, and
// writing a curtailment setpoint. Satisfied directly by *coreapi.Client.
type CoreSource interface {
	Consumption(ctx context.Context) (float64, error)
	DeviceState(ctx context.Context, entityID, field string) (any, error)
	PostSetpoint(ctx context.Context, entityID string, setpoint float64) error
}

// Options configures a Limiter's timing parameters.
type Options struct {
	TickPeriod         time.Duration
	SafetyMarginW      float64
	AntiReboundDefault time.Duration
	AntiReboundBattery time.Duration
}

func (o Options) withDefaults() Options {
	if o.TickPeriod <= 0 {
		o.TickPeriod = defaultTickPeriod
	}
	if o.SafetyMarginW <= 0 {
		o.SafetyMarginW = defaultSafetyMarginW
	}
	if o.AntiReboundDefault <= 0 {
		o.AntiReboundDefault = defaultAntiReboundDefault
	}
	if o.AntiReboundBattery <= 0 {
		o.AntiReboundBattery = defaultAntiReboundBattery
	}
	return o
}

// Limiter is one real-time-limiter instance. A fresh Limiter is created per
// dispatcher (re)start: the old instance drains to STOPPED before the new
// one enters RUNNING.
type Limiter struct {
	core     CoreSource
	notifier notify.Publisher
	logger   *slog.Logger
	opts     Options

	mu           sync.Mutex
	state        State
	lastAdjusted map[string]time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Limiter in the STOPPED state.
func New(core CoreSource, notifier notify.Publisher, opts Options, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.LoggingPublisher{Logger: logger}
	}
	return &Limiter{
		core:         core,
		notifier:     notifier,
		logger:       logger.With("component", "rtl"),
		opts:         opts.withDefaults(),
		state:        StateStopped,
		lastAdjusted: map[string]time.Time{},
	}
}

// State returns the limiter's current lifecycle state.
func (l *Limiter) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start transitions STOPPED -> RUNNING and begins ticking against the
// given devices and power-limit profile. It is an error to Start a Limiter
// that is not STOPPED; the dispatcher must Stop an outstanding instance
// first.
func (l *Limiter) Start(ctx context.Context, devices []devicemodel.Device, limitProfile horizon.Series) error {
	l.mu.Lock()
	if l.state != StateStopped {
		l.mu.Unlock()
		return fmt.Errorf("rtl: cannot start, current state is %s", l.state)
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.state = StateRunning
	l.mu.Unlock()

	l.logger.Info("rtl starting", "devices", len(devices))
	go l.run(runCtx, devices, limitProfile)
	return nil
}

// Stop transitions RUNNING -> STOPPING and blocks until the loop has
// exited (STOPPED), or until a hard upper bound of 2*TickPeriod elapses,
// whichever comes first.
func (l *Limiter) Stop() {
	l.mu.Lock()
	if l.state == StateStopped {
		l.mu.Unlock()
		return
	}
	l.state = StateStopping
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * l.opts.TickPeriod):
		l.logger.Warn("rtl stop exceeded hard upper bound, proceeding anyway")
	}

	l.mu.Lock()
	l.state = StateStopped
	l.mu.Unlock()
	l.logger.Info("rtl stopped")
}

// run is the ~1Hz tick loop.
func (l *Limiter) run(ctx context.Context, devices []devicemodel.Device, limitProfile horizon.Series) {
	defer close(l.done)

	ticker := time.NewTicker(l.opts.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			l.tick(ctx, t, devices, limitProfile)
		}
	}
}
