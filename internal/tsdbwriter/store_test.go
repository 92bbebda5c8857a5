package tsdbwriter

import (
	"path/filepath"
	"testing"
	"time"
)

func floatPtr(v float64) *float64 { return &v }

func TestStoreRoundTripAndAttemptCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.sqlite")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	results := []Result{
		{EntityID: "wh1", Kind: "water_heater", Time: now, PowerW: floatPtr(1500), TemperatureC: floatPtr(52)},
		{EntityID: "bs1", Kind: "electric_storage", Time: now, PowerW: floatPtr(-2000), SoCWh: floatPtr(5000)},
	}
	if err := store.StoreResults(results); err != nil {
		t.Fatalf("StoreResults: %v", err)
	}

	pending, err := store.PendingResults(10)
	if err != nil {
		t.Fatalf("PendingResults: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending length = %d, want 2", len(pending))
	}
	for _, p := range pending {
		if p.UploadAttemptCount != 0 {
			t.Fatalf("new row should start with attempt count 0, got %d", p.UploadAttemptCount)
		}
	}

	if err := store.IncrementUploadAttemptCount(pending); err != nil {
		t.Fatalf("IncrementUploadAttemptCount: %v", err)
	}
	pendingAfter, err := store.PendingResults(10)
	if err != nil {
		t.Fatalf("PendingResults: %v", err)
	}
	for _, p := range pendingAfter {
		if p.UploadAttemptCount != 1 {
			t.Fatalf("attempt count after increment = %d, want 1", p.UploadAttemptCount)
		}
	}

	if err := store.DeleteResults(pendingAfter); err != nil {
		t.Fatalf("DeleteResults: %v", err)
	}
	remaining, err := store.PendingResults(10)
	if err != nil {
		t.Fatalf("PendingResults: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("remaining = %d, want 0 after delete", len(remaining))
	}
}
