package thermalmodel

import (
	"log/slog"
	"time"
)

// HistoryFetcher supplies the aligned historical matrices Fit needs. The
// planner's caller wires this to the Core API historic/weather endpoints;
// kept as a narrow interface so thermalmodel has no HTTP dependency of its
// own.
type HistoryFetcher interface {
	FetchThermalHistory(zones, heaters, weatherChannels int) (X, U, W [][]float64, err error)
}

// Manager owns the single persisted artifact path and applies the
// freshness/fallback policy: relearn when missing, stale, or unparsable; on
// learn failure fall back to the previous in-memory model or a documented
// default; never fail the planner cycle.
type Manager struct {
	Path            string
	TTL             time.Duration
	Zones           int
	Heaters         int
	WeatherChannels int
	Logger          *slog.Logger

	current *Model
}

// NewManager constructs a Manager and attempts an initial load from Path,
// falling back to Default if the artifact is absent or unparsable.
func NewManager(path string, ttl time.Duration, zones, heaters, weatherChannels int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	mgr := &Manager{
		Path: path, TTL: ttl,
		Zones: zones, Heaters: heaters, WeatherChannels: weatherChannels,
		Logger: logger,
	}
	if loaded, err := Load(path); err == nil {
		mgr.current = loaded
	} else {
		logger.Warn("thermal model artifact unavailable at startup, using default", "path", path, "error", err)
		mgr.current = Default(zones, heaters, weatherChannels)
	}
	return mgr
}

// Ensure returns a fresh model for the current planning cycle, relearning
// via fetcher if the held model is stale or missing. A relearn failure
// never propagates: the previous model (or a default, if none has ever
// loaded) is returned instead, and the failure is only logged - failures
// here are never fatal to the planner.
func (mgr *Manager) Ensure(now time.Time, fetcher HistoryFetcher) *Model {
	if mgr.current.Fresh(now, mgr.TTL) {
		return mgr.current
	}

	X, U, W, err := fetcher.FetchThermalHistory(mgr.Zones, mgr.Heaters, mgr.WeatherChannels)
	if err != nil {
		mgr.Logger.Warn("thermal model relearn: history fetch failed, using previous model", "error", err)
		return mgr.fallback()
	}

	learned, err := Fit(X, U, W, now)
	if err != nil {
		mgr.Logger.Warn("thermal model relearn failed, using previous model", "error", err)
		return mgr.fallback()
	}

	if err := Save(mgr.Path, learned); err != nil {
		mgr.Logger.Warn("thermal model persist failed, using in-memory result anyway", "error", err)
	}
	mgr.current = learned
	return mgr.current
}

// fallback returns the held model, manufacturing a default on first-ever
// failure when no model has ever loaded successfully.
func (mgr *Manager) fallback() *Model {
	if mgr.current == nil {
		mgr.current = Default(mgr.Zones, mgr.Heaters, mgr.WeatherChannels)
	}
	return mgr.current
}
