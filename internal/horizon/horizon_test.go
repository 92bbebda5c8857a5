package horizon

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return ts
}

func TestHorizonValidate(t *testing.T) {
	start := mustParse(t, "2026-01-01T00:00:00Z")

	cases := []struct {
		name    string
		h       Horizon
		wantErr bool
	}{
		{
			name:    "valid 10 min step over 1 hour",
			h:       Horizon{Start: start, Stop: start.Add(time.Hour), Interval: 10 * time.Minute},
			wantErr: false,
		},
		{
			name:    "stop before start",
			h:       Horizon{Start: start, Stop: start.Add(-time.Hour), Interval: 10 * time.Minute},
			wantErr: true,
		},
		{
			name:    "stop equals start",
			h:       Horizon{Start: start, Stop: start, Interval: 10 * time.Minute},
			wantErr: true,
		},
		{
			name:    "interval does not divide span",
			h:       Horizon{Start: start, Stop: start.Add(time.Hour), Interval: 7 * time.Minute},
			wantErr: true,
		},
		{
			name:    "zero interval",
			h:       Horizon{Start: start, Stop: start.Add(time.Hour), Interval: 0},
			wantErr: true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.h.Validate()
			if (err != nil) != c.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestHorizonSteps(t *testing.T) {
	start := mustParse(t, "2026-01-01T00:00:00Z")
	h := Horizon{Start: start, Stop: start.Add(time.Hour), Interval: 10 * time.Minute}

	if got := h.Steps(); got != 6 {
		t.Fatalf("Steps() = %d, want 6", got)
	}
	times := h.Times()
	if len(times) != 6 {
		t.Fatalf("Times() length = %d, want 6", len(times))
	}
	if !times[0].Equal(start) {
		t.Fatalf("Times()[0] = %v, want %v", times[0], start)
	}
	if !times[5].Equal(start.Add(50 * time.Minute)) {
		t.Fatalf("Times()[5] = %v, want %v", times[5], start.Add(50*time.Minute))
	}
}

func TestSeriesDense(t *testing.T) {
	start := mustParse(t, "2026-01-01T00:00:00Z")
	h := Horizon{Start: start, Stop: start.Add(30 * time.Minute), Interval: 10 * time.Minute}

	s := Series{
		start:                            1.0,
		start.Add(10 * time.Minute):      2.0,
		start.Add(20 * time.Minute):      3.0,
	}

	dense, err := s.Dense(h)
	if err != nil {
		t.Fatalf("Dense() error = %v", err)
	}
	want := []float64{1.0, 2.0, 3.0}
	for i := range want {
		if dense[i] != want[i] {
			t.Fatalf("Dense()[%d] = %v, want %v", i, dense[i], want[i])
		}
	}
}

func TestSeriesDenseMissingValue(t *testing.T) {
	start := mustParse(t, "2026-01-01T00:00:00Z")
	h := Horizon{Start: start, Stop: start.Add(20 * time.Minute), Interval: 10 * time.Minute}

	s := Series{start: 1.0} // missing the second step

	if _, err := s.Dense(h); err == nil {
		t.Fatal("expected error for missing series value, got nil")
	}
}

func TestDenseFromSliceRoundTrip(t *testing.T) {
	start := mustParse(t, "2026-01-01T00:00:00Z")
	h := Horizon{Start: start, Stop: start.Add(20 * time.Minute), Interval: 10 * time.Minute}

	values := []float64{5.0, 6.0}
	s := DenseFromSlice(h, values)

	dense, err := s.Dense(h)
	if err != nil {
		t.Fatalf("Dense() error = %v", err)
	}
	for i := range values {
		if dense[i] != values[i] {
			t.Fatalf("round trip [%d] = %v, want %v", i, dense[i], values[i])
		}
	}
}
