package thermalmodel

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitRespectsConstraints(t *testing.T) {
	zones, heaters, weatherChannels := 2, 2, 1
	need := MinSamples(zones, heaters, weatherChannels)
	m := need + 50

	X := make([][]float64, zones)
	U := make([][]float64, heaters)
	W := make([][]float64, weatherChannels)
	for z := range X {
		X[z] = make([]float64, m)
		for c := range X[z] {
			X[z][c] = 20 + math.Sin(float64(c)/5+float64(z))
		}
	}
	for u := range U {
		U[u] = make([]float64, m)
		for c := range U[u] {
			U[u][c] = math.Mod(float64(c), 3) * 1000
		}
	}
	for d := range W {
		W[d] = make([]float64, m)
		for c := range W[d] {
			W[d][c] = 5 + math.Cos(float64(c)/7)
		}
	}

	model, err := Fit(X, U, W, time.Now())
	require.NoError(t, err)
	assert.Equal(t, zones, model.Zones())
	for z, row := range model.Au {
		for u, v := range row {
			assert.GreaterOrEqualf(t, v, 0.0, "Au[%d][%d]", z, u)
		}
	}
	for z, row := range model.Ax {
		assert.GreaterOrEqualf(t, row[z], 0.0, "diag(Ax)[%d]", z)
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		assert.LessOrEqualf(t, sum, 1+1e-9, "row-sum(Ax)[%d]", z)
	}
}

func TestFitInsufficientSamples(t *testing.T) {
	zones, heaters, weatherChannels := 2, 1, 1
	m := 3 // far fewer than MinSamples requires
	X := [][]float64{make([]float64, m), make([]float64, m)}
	U := [][]float64{make([]float64, m)}
	W := [][]float64{make([]float64, m)}

	_, err := Fit(X, U, W, time.Now())
	assert.Error(t, err)
}

func TestModelRoundTrip(t *testing.T) {
	m := &Model{
		Ax:        [][]float64{{0.8, 0.1}, {0.05, 0.9}},
		Au:        [][]float64{{0.01, 0}, {0, 0.02}},
		Aw:        [][]float64{{0.3}, {0.4}},
		LearnedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	path := filepath.Join(t.TempDir(), "thermal_model.json")
	require.NoError(t, Save(path, m))
	loaded, err := Load(path)
	require.NoError(t, err)

	want, _ := json.Marshal(m)
	got, _ := json.Marshal(loaded)
	assert.JSONEq(t, string(want), string(got))
}

func TestModelFreshness(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	fresh := &Model{LearnedAt: now.Add(-1 * time.Hour)}
	stale := &Model{LearnedAt: now.Add(-25 * time.Hour)}

	assert.True(t, fresh.Fresh(now, 24*time.Hour), "expected fresh model to be fresh")
	assert.False(t, stale.Fresh(now, 24*time.Hour), "expected stale model to be stale")
}

type fakeFetcher struct {
	X, U, W [][]float64
	err     error
}

func (f fakeFetcher) FetchThermalHistory(zones, heaters, weatherChannels int) ([][]float64, [][]float64, [][]float64, error) {
	return f.X, f.U, f.W, f.err
}

func TestManagerFallsBackOnFetchFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	mgr := NewManager(path, 24*time.Hour, 1, 1, 1, nil)
	before := mgr.current

	got := mgr.Ensure(time.Now(), fakeFetcher{err: errors.New("history unavailable")})
	assert.Same(t, before, got, "expected fallback to return the previously-held model unchanged")
}

func TestManagerRelearnsWhenStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thermal_model.json")
	old := &Model{
		Ax:        [][]float64{{0.9}},
		Au:        [][]float64{{0}},
		Aw:        [][]float64{{0}},
		LearnedAt: time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, Save(path, old))

	zones, heaters, weatherChannels := 1, 1, 1
	need := MinSamples(zones, heaters, weatherChannels)
	m := need + 20
	X := [][]float64{make([]float64, m)}
	U := [][]float64{make([]float64, m)}
	W := [][]float64{make([]float64, m)}
	for c := 0; c < m; c++ {
		X[0][c] = 20 + math.Sin(float64(c)/4)
		U[0][c] = math.Mod(float64(c), 2) * 500
		W[0][c] = 5
	}

	mgr := NewManager(path, 24*time.Hour, zones, heaters, weatherChannels, nil)
	got := mgr.Ensure(time.Now(), fakeFetcher{X: X, U: U, W: W})
	assert.NotSame(t, old, got, "expected a newly-learned model, not the stale one")
	assert.True(t, got.Fresh(time.Now(), 24*time.Hour), "expected the newly-learned model to be fresh")

	persisted, err := os.ReadFile(path)
	require.NoError(t, err)
	var reloaded Model
	require.NoError(t, json.Unmarshal(persisted, &reloaded))
}
