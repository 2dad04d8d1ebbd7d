// Package results writes probe outcomes to durable storage. It is a thin
// wrapper around the store adapter's AppendResult: retries, idempotency, and
// throttling all live in internal/store, so this package only adds the
// fire-and-forget logging a background write needs.
package results

import (
	"context"
	"log/slog"

	"uptimemesh"
	"uptimemesh/internal/store"
	"uptimemesh/internal/telemetry"
)

// Writer appends CheckResult rows without blocking its caller's control flow
// on a slow or failing store: a write that errors is logged and dropped, not
// retried by the caller, since the caller's dispatch loop (internal/scheduler)
// must keep making forward progress regardless of storage health.
type Writer struct {
	store  store.Store
	logger *slog.Logger
}

// New constructs a Writer around a store adapter.
func New(st store.Store, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: st, logger: logger}
}

// Write appends one result row. Call it from its own goroutine per probe;
// it blocks on the store's retry budget but never panics and never returns
// anything the caller must act on.
func (w *Writer) Write(ctx context.Context, row uptimemesh.CheckResult) {
	if err := w.store.AppendResult(ctx, row); err != nil {
		telemetry.ResultWriteFailures.Inc()
		w.logger.Error("append result failed",
			"check_id", row.CheckID,
			"region", row.Region,
			"scheduled_at_micros", row.ScheduledAtMicros,
			"outcome", row.Outcome,
			"error", err,
		)
	}
}
