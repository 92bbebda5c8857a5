// Package thermalmodel fits and persists the space-heating state-space
// system (Ax, Au, Aw): a per-zone linear recurrence T[k+1] = Ax·T[k] +
// Au·p[k+1] + Aw·w[k+1] learned from historical data, with a freshness TTL
// and fallback-to-previous/default semantics so a failed fit is never
// fatal to the planner.
package thermalmodel

import (
	"encoding/json"
	"os"
	"time"
)

// Model is the persisted state-space system: Ax is Z×Z, Au is Z×U, Aw is
// Z×D, stored as plain row-major slices so the JSON artifact round-trips
// without any matrix-library dependency in the wire format.
type Model struct {
	Ax        [][]float64 `json:"ax"`
	Au        [][]float64 `json:"au"`
	Aw        [][]float64 `json:"aw"`
	LearnedAt time.Time   `json:"learned_at"`
}

// Zones, Heaters and WeatherChannels report the system's dimensions.
func (m *Model) Zones() int           { return len(m.Ax) }
func (m *Model) Heaters() int {
	if len(m.Au) == 0 {
		return 0
	}
	return len(m.Au[0])
}
func (m *Model) WeatherChannels() int {
	if len(m.Aw) == 0 {
		return 0
	}
	return len(m.Aw[0])
}

// Fresh reports whether the model was learned within ttl of now - the
// manager relearns whenever the artifact is missing, stale, or fails to
// load/parse.
func (m *Model) Fresh(now time.Time, ttl time.Duration) bool {
	if m == nil {
		return false
	}
	return now.Sub(m.LearnedAt) < ttl
}

// Default returns a documented diagonal-stable fallback model: each zone
// retains 90% of its temperature per step with no heater or weather
// coupling. Used when learning fails and no previous artifact exists.
func Default(zones, heaters, weatherChannels int) *Model {
	m := &Model{
		Ax: make([][]float64, zones),
		Au: make([][]float64, zones),
		Aw: make([][]float64, zones),
	}
	for z := 0; z < zones; z++ {
		row := make([]float64, zones)
		row[z] = 0.9
		m.Ax[z] = row
		m.Au[z] = make([]float64, heaters)
		m.Aw[z] = make([]float64, weatherChannels)
	}
	return m
}

// Load reads and parses a persisted model artifact from path.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save writes m as the persisted JSON artifact at path, owned single-writer
// by the learner: the thermal-model artifact is single-writer (learner) and
// single-reader-per-cycle (planner).
func Save(path string, m *Model) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
