// Package report hands execution outcomes to outbound sinks. The engine
// only produces result values; formatting and transmission live here, off
// the processing path.
package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bugbridge/internal/bridge/models"
)

// Report is the serialized outcome of processing one event.
type Report struct {
	ID           uuid.UUID          `json:"id"`
	SourceID     string             `json:"source_id"`
	Action       string             `json:"action,omitempty"`
	Result       models.ResultKind  `json:"result"`
	TargetID     string             `json:"target_id,omitempty"`
	Reason       string             `json:"reason,omitempty"`
	Failure      models.FailureKind `json:"failure,omitempty"`
	Error        string             `json:"error,omitempty"`
	StepsApplied int                `json:"steps_applied"`
	ProcessedAt  time.Time          `json:"processed_at"`
}

// FromResult builds a Report for the event's terminal result.
func FromResult(sourceID string, res models.ExecutionResult) Report {
	r := Report{
		ID:           uuid.New(),
		SourceID:     sourceID,
		Action:       res.Action,
		Result:       res.Kind,
		TargetID:     res.TargetID,
		Reason:       res.Reason,
		Failure:      res.Failure,
		StepsApplied: res.StepsApplied,
		ProcessedAt:  time.Now().UTC(),
	}
	if res.Err != nil {
		r.Error = res.Err.Error()
	}
	return r
}

// Publisher delivers reports to one outbound sink.
type Publisher interface {
	Publish(ctx context.Context, r Report) error
}

// LogPublisher writes reports to the structured log. It is the default sink
// and the fallback when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, r Report) error {
	attrs := []any{
		"report_id", r.ID.String(),
		"source_id", r.SourceID,
		"result", string(r.Result),
		"steps_applied", r.StepsApplied,
	}
	if r.Action != "" {
		attrs = append(attrs, "action", r.Action)
	}
	if r.TargetID != "" {
		attrs = append(attrs, "target_id", r.TargetID)
	}
	if r.Reason != "" {
		attrs = append(attrs, "reason", r.Reason)
	}
	switch r.Result {
	case models.ResultFailed, models.ResultPartiallyApplied:
		attrs = append(attrs, "failure", string(r.Failure), "error", r.Error)
		p.logger.Error("event processing failed", attrs...)
	default:
		p.logger.Info("event processed", attrs...)
	}
	return nil
}
