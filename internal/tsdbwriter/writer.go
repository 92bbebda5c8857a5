package tsdbwriter

import (
	"log/slog"

	"github.com/cepro/hems-controller/internal/errkind"
)

const uploadBatchLimit = 500

// Writer is the TSDB write path: buffer locally, then best-effort upload to
// the remote store. A remote failure on a single result is logged and does
// not block the planner cycle.
type Writer struct {
	store  *Store
	remote *RemoteClient
	logger *slog.Logger
}

// NewWriter returns a Writer over the given local buffer and remote client.
func NewWriter(store *Store, remote *RemoteClient, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, remote: remote, logger: logger}
}

// Write buffers results locally then attempts to flush the next pending
// batch (PendingResults order: least-attempted, then most recent, first)
// to the remote store. Every failure is wrapped as
// errkind.WriteFailed and logged, never returned to the caller, so a TSDB
// outage never fails the planning cycle that produced the results.
func (w *Writer) Write(results []Result) {
	if err := w.store.StoreResults(results); err != nil {
		w.logger.Error("tsdbwriter: local buffer write failed", "error", &errkind.WriteFailed{Target: "local_buffer", Err: err})
		return
	}
	w.flush()
}

// flush uploads the next pending batch (as ordered by PendingResults) and
// deletes it locally on success, or bumps its retry counter on failure.
func (w *Writer) flush() {
	pending, err := w.store.PendingResults(uploadBatchLimit)
	if err != nil {
		w.logger.Error("tsdbwriter: read pending batch failed", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	results := make([]Result, len(pending))
	for i, p := range pending {
		results[i] = p.Result
	}

	if err := w.remote.UploadResults(results); err != nil {
		w.logger.Warn("tsdbwriter: remote upload failed, will retry next cycle", "error", &errkind.WriteFailed{Target: "remote_store", Err: err})
		if incErr := w.store.IncrementUploadAttemptCount(pending); incErr != nil {
			w.logger.Error("tsdbwriter: increment upload attempt count failed", "error", incErr)
		}
		return
	}

	if err := w.store.DeleteResults(pending); err != nil {
		w.logger.Error("tsdbwriter: delete uploaded batch failed", "error", err)
	}
}
