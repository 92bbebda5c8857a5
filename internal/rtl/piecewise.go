package rtl

import (
	"sort"
	"time"

	"github.com/cepro/hems-controller/internal/horizon"
)

// piecewiseProfile is a horizon.Series read as a piecewise-constant
// function of time: lookup(t) returns the value at the latest timestamp
// <= t in the limit profile.
type piecewiseProfile struct {
	times  []time.Time
	values []float64
}

func newPiecewiseProfile(s horizon.Series) piecewiseProfile {
	times := make([]time.Time, 0, len(s))
	for t := range s {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	values := make([]float64, len(times))
	for i, t := range times {
		values[i] = s[t]
	}
	return piecewiseProfile{times: times, values: values}
}

// lookup returns the value at the latest timestamp <= t, and false if t
// precedes every timestamp in the profile.
func (p piecewiseProfile) lookup(t time.Time) (float64, bool) {
	if len(p.times) == 0 {
		return 0, false
	}
	idx := sort.Search(len(p.times), func(i int) bool { return p.times[i].After(t) })
	if idx == 0 {
		return 0, false
	}
	return p.values[idx-1], true
}
