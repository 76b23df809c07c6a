package report

import (
	"context"
	"log/slog"

	"bugbridge/internal/bridge/metrics"
)

// Worker drains a buffered inbox into a Publisher so report delivery never
// blocks event processing. Enqueue drops when the buffer is full: losing a
// report is preferable to backpressuring the webhook path.
type Worker struct {
	publisher Publisher
	inbox     chan Report
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewWorker(publisher Publisher, buffer int, logger *slog.Logger, m *metrics.Metrics) *Worker {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		publisher: publisher,
		inbox:     make(chan Report, buffer),
		logger:    logger,
		metrics:   m,
	}
}

// Enqueue submits a report for asynchronous publishing. Returns false if
// the buffer was full and the report was dropped.
func (w *Worker) Enqueue(r Report) bool {
	select {
	case w.inbox <- r:
		return true
	default:
		w.logger.Warn("report buffer full, dropping report",
			"source_id", r.SourceID, "result", string(r.Result))
		w.metrics.IncrementReportsDropped()
		return false
	}
}

// Run consumes the inbox until the context is canceled. Publish failures
// are logged and dropped; reports are advisory, not part of the engine's
// correctness surface.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-w.inbox:
			if err := w.publisher.Publish(ctx, r); err != nil {
				w.logger.Error("publish report failed",
					"source_id", r.SourceID, "error", err)
			}
		}
	}
}
