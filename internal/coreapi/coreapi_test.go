package coreapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDevicesDecodesList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/devices" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]DeviceConfig{{EntityID: "wh1", Kind: "water_heater", Priority: 1}})
	}))
	defer srv.Close()

	c := New(srv.URL, nil, nil)
	devices, err := c.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(devices) != 1 || devices[0].EntityID != "wh1" {
		t.Fatalf("unexpected devices: %+v", devices)
	}
}

func TestHistoricParsesSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("type") != "consumption" {
			t.Fatalf("missing type query param: %v", r.URL.Query())
		}
		json.NewEncoder(w).Encode(TimeSeriesResponse{
			"2026-01-01T00:00:00Z": 1.5,
			"2026-01-01T00:10:00Z": 2.5,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil, nil)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stop := start.Add(20 * time.Minute)
	series, err := c.Historic(context.Background(), "consumption", start, stop, "")
	if err != nil {
		t.Fatalf("Historic: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("series length = %d, want 2", len(series))
	}
	if series[start] != 1.5 {
		t.Fatalf("series[start] = %v, want 1.5", series[start])
	}
}

func TestPostSetpointRetriesOnServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, nil, nil)
	if err := c.PostSetpoint(context.Background(), "wh1", 55.0); err != nil {
		t.Fatalf("PostSetpoint: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestPostSetpointFailsAfterExhaustingRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, nil, nil)
	if err := c.PostSetpoint(context.Background(), "wh1", 55.0); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}
