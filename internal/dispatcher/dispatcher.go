// Package dispatcher turns bus messages into planner jobs and RTL
// (re)starts, enforcing "at most one planner job and one RTL instance at a
// time; a new request cancels and replaces both". Grounded on main.go's
// top-level orchestration (the fan-out select loop wiring readings to the
// controller/data-platform/axle consumers) and axlemgr.AxleMgr.Run's
// poll-push pattern, generalized from
// "poll an external schedule on a timer" to "react to a bus request and
// replace the running job/loop".
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cepro/hems-controller/internal/bus"
	"github.com/cepro/hems-controller/internal/coreapi"
	"github.com/cepro/hems-controller/internal/devicemodel"
	"github.com/cepro/hems-controller/internal/errkind"
	"github.com/cepro/hems-controller/internal/horizon"
	"github.com/cepro/hems-controller/internal/notify"
	"github.com/cepro/hems-controller/internal/planner"
	"github.com/cepro/hems-controller/internal/rtl"
	"github.com/cepro/hems-controller/internal/thermalmodel"
	"github.com/cepro/hems-controller/internal/tsdbwriter"
)

// SchedulePoster is the subset of *coreapi.Client the dispatcher needs to
// publish an interpreted schedule.
type SchedulePoster interface {
	PostSchedule(ctx context.Context, priority int, schedule coreapi.Schedule) error
}

// Dispatcher owns the single outstanding planner job and the single
// running rtl.Limiter, and mediates both against incoming bus requests.
type Dispatcher struct {
	planner  *planner.Planner
	devices  []devicemodel.Device
	poster   SchedulePoster
	writer   *tsdbwriter.Writer
	rtlCore  rtl.CoreSource
	notifier notify.Publisher
	rtlOpts  rtl.Options
	priority int
	logger   *slog.Logger

	// thermalMgr and historyFetcher are optional: when both are set,
	// runPlanner refreshes the space heating devices' learned rows from
	// the thermal-model learner before every planning cycle. Either may be
	// nil, in which case devices keep whatever SpaceHeatingParams they
	// were built with.
	thermalMgr     *thermalmodel.Manager
	historyFetcher thermalmodel.HistoryFetcher

	mu            sync.Mutex
	currentRTL    *rtl.Limiter
	cancelPlanner context.CancelFunc
}

// Config bundles a Dispatcher's collaborators.
type Config struct {
	Planner  *planner.Planner
	Devices  []devicemodel.Device
	Poster   SchedulePoster
	Writer   *tsdbwriter.Writer
	RTLCore  rtl.CoreSource
	Notifier notify.Publisher
	RTLOpts  rtl.Options
	Priority int
	Logger   *slog.Logger

	ThermalModel   *thermalmodel.Manager
	HistoryFetcher thermalmodel.HistoryFetcher
}

// New returns a Dispatcher ready to handle bus requests.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		planner:        cfg.Planner,
		devices:        cfg.Devices,
		poster:         cfg.Poster,
		writer:         cfg.Writer,
		rtlCore:        cfg.RTLCore,
		notifier:       cfg.Notifier,
		rtlOpts:        cfg.RTLOpts,
		priority:       cfg.Priority,
		logger:         logger.With("component", "dispatcher"),
		thermalMgr:     cfg.ThermalModel,
		historyFetcher: cfg.HistoryFetcher,
	}
}

// Handle implements bus.Handler: it is the single entry point the bus
// subscriber calls for every decoded Request.
func (d *Dispatcher) Handle(ctx context.Context, req bus.Request) bool {
	if req.IsStopRequest() {
		d.logger.Info("dispatcher: stop request received")
		d.stopRTL()
		return true
	}

	params := *req.Params
	h := horizon.Horizon{
		Start:    params.Start,
		Stop:     params.Stop,
		Interval: time.Duration(params.IntervalSeconds) * time.Second,
	}
	if err := h.Validate(); err != nil {
		d.logger.Error("dispatcher: request horizon invalid, negative ack", "error", err)
		return false
	}

	// RTL start failure is reported but never blocks the planner result.
	if err := d.restartRTL(params, h); err != nil {
		d.logger.Error("dispatcher: rtl restart failed", "error", err)
	}

	if err := d.runPlanner(ctx, params, h); err != nil {
		d.logger.Error("dispatcher: planner job failed, negative ack", "error", err)
		return false
	}

	return true
}

// runPlanner cancels any outstanding planner job, then assembles and runs
// a new one, publishing its result on success.
func (d *Dispatcher) runPlanner(ctx context.Context, params bus.RequestParams, h horizon.Horizon) error {
	d.mu.Lock()
	if d.cancelPlanner != nil {
		d.cancelPlanner()
	}
	jobCtx, cancel := context.WithCancel(ctx)
	d.cancelPlanner = cancel
	d.mu.Unlock()

	if d.thermalMgr != nil && d.historyFetcher != nil {
		model := d.thermalMgr.Ensure(time.Now(), d.historyFetcher)
		applyThermalModel(d.devices, model)
	}

	priceProfile, err := parseSeries(params.PriceProfile, 1/kWToW)
	if err != nil {
		return &errkind.HorizonInvalid{Reason: fmt.Sprintf("price_profile: %v", err)}
	}
	powerLimit, err := parseSeries(params.PowerLimit, kWToW)
	if err != nil {
		return &errkind.HorizonInvalid{Reason: fmt.Sprintf("power_limit: %v", err)}
	}

	req := planner.Request{
		Horizon:               h,
		PriceProfile:          priceProfile,
		PowerLimit:            powerLimit,
		EnableSpaceHeating:    params.SpaceHeating,
		EnableElectricStorage: params.ElectricStorage,
		EnableElectricVehicle: params.ElectricVehicle,
		EnableWaterHeater:     params.WaterHeater,
	}

	result, err := d.planner.Plan(jobCtx, req)
	if err != nil {
		return err
	}

	schedule := toCoreAPISchedule(h, result.Schedule)
	if err := d.poster.PostSchedule(ctx, d.priority, schedule); err != nil {
		d.logger.Error("dispatcher: post schedule failed", "error", &errkind.WriteFailed{Target: "schedule", Err: err})
	}

	d.writer.Write(toResults(h, result.Schedule))
	return nil
}

// restartRTL stops any running limiter, draining it to STOPPED before
// starting a fresh one over the new limit profile, so the old and new
// limiters never run concurrently.
func (d *Dispatcher) restartRTL(params bus.RequestParams, h horizon.Horizon) error {
	d.stopRTL()

	limitProfile, err := parseSeries(params.PowerLimit, kWToW)
	if err != nil {
		return fmt.Errorf("dispatcher: parse power limit for rtl: %w", err)
	}

	limiter := rtl.New(d.rtlCore, d.notifier, d.rtlOpts, d.logger)
	if err := limiter.Start(context.Background(), d.devices, limitProfile); err != nil {
		return err
	}

	d.mu.Lock()
	d.currentRTL = limiter
	d.mu.Unlock()
	return nil
}

// stopRTL stops the currently-running limiter, if any, and blocks until it
// has drained to STOPPED.
func (d *Dispatcher) stopRTL() {
	d.mu.Lock()
	current := d.currentRTL
	d.currentRTL = nil
	d.mu.Unlock()

	if current != nil {
		current.Stop()
	}
}
