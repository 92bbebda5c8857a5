// Package horizon defines the discrete time grid that the planner optimizes over,
// and the dense time-series type that all time-indexed planner inputs are aligned to.
package horizon

import (
	"fmt"
	"time"

	"github.com/cepro/hems-controller/internal/errkind"
)

// Horizon is the finite planning window (start, stop, interval). It yields
// N discrete steps of duration Interval.
type Horizon struct {
	Start    time.Time
	Stop     time.Time
	Interval time.Duration
}

// Validate checks that Stop is strictly after Start and that Interval
// divides the (Stop-Start) range exactly.
func (h Horizon) Validate() error {
	if !h.Stop.After(h.Start) {
		return &errkind.HorizonInvalid{Reason: fmt.Sprintf("stop (%s) must be after start (%s)", h.Stop, h.Start)}
	}
	if h.Interval <= 0 {
		return &errkind.HorizonInvalid{Reason: "interval must be positive"}
	}
	span := h.Stop.Sub(h.Start)
	if span%h.Interval != 0 {
		return &errkind.HorizonInvalid{Reason: fmt.Sprintf("interval (%s) does not divide span (%s) exactly", h.Interval, span)}
	}
	return nil
}

// Steps returns N, the number of discrete steps in the horizon.
func (h Horizon) Steps() int {
	return int(h.Stop.Sub(h.Start) / h.Interval)
}

// StepHours returns Δt, the step duration in hours (used throughout the device models).
func (h Horizon) StepHours() float64 {
	return h.Interval.Hours()
}

// Times returns the N timestamps of the step grid, i.e. Start, Start+Interval, ... Stop-Interval.
func (h Horizon) Times() []time.Time {
	n := h.Steps()
	times := make([]time.Time, n)
	t := h.Start
	for i := 0; i < n; i++ {
		times[i] = t
		t = t.Add(h.Interval)
	}
	return times
}

// Series is a dense or sparse mapping from timestamp to value: the "Time
// series input" type that every planner input is expressed in.
type Series map[time.Time]float64

// Dense converts s into an N-length slice aligned to h's step grid. Every
// timestamp in h.Times() must be present in s, otherwise an error is
// returned - every time-indexed input to the planner must have length N
// and align to the step grid.
func (s Series) Dense(h Horizon) ([]float64, error) {
	times := h.Times()
	out := make([]float64, len(times))
	for i, t := range times {
		v, ok := s[t]
		if !ok {
			return nil, &errkind.DataUnavailable{Reason: fmt.Sprintf("series missing value at step %d (%s)", i, t)}
		}
		out[i] = v
	}
	return out, nil
}

// DenseFromSlice is the inverse of Dense: given a set of already-aligned
// values, it builds a Series keyed by the horizon's step grid. Steps beyond
// len(values) are left out of the Series.
func DenseFromSlice(h Horizon, values []float64) Series {
	times := h.Times()
	s := make(Series, len(times))
	for i, t := range times {
		if i < len(values) {
			s[t] = values[i]
		}
	}
	return s
}
