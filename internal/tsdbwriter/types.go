// Package tsdbwriter writes per-device result measurements - tags
// {entity_id, kind}; fields power_w, temperature_c, soc_wh, setpoint_c as
// applicable; timestamps at the horizon step grid. It buffers writes
// locally in sqlite before uploading to a Postgrest-fronted remote store:
// local buffer is single-writer-per-cycle, remote upload is best-effort and
// retried on the next write cycle rather than blocking the planner.
package tsdbwriter

import "time"

// Result is one device's measurement at one horizon step.
type Result struct {
	EntityID     string
	Kind         string
	Time         time.Time
	PowerW       *float64
	TemperatureC *float64
	SoCWh        *float64
	SetpointC    *float64
}

// storedResult is Result plus the local buffer's upload bookkeeping,
// mirroring repository.StoredBessReading's embed-plus-attempt-count shape.
type storedResult struct {
	ID                 uint `gorm:"primaryKey"`
	Result
	UploadAttemptCount uint
}

func newStoredResult(r Result) storedResult {
	return storedResult{Result: r, UploadAttemptCount: 0}
}
