// Package service is the engine facade: one call takes an inbound event
// through matching, rendering, and step execution to its single terminal
// result. Each event is an independent unit of work; the only shared state
// between concurrent calls is the correlation store inside the executor.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bugbridge/internal/bridge/actions"
	"bugbridge/internal/bridge/executor"
	"bugbridge/internal/bridge/metrics"
	"bugbridge/internal/bridge/models"
	"bugbridge/internal/bridge/render"
	"bugbridge/internal/bridge/report"
)

const skipNoMatch = "no matching action"

// Reporter receives terminal results for outbound delivery.
type Reporter interface {
	Enqueue(r report.Report) bool
}

// Service orchestrates event processing.
type Service struct {
	actions  atomic.Pointer[actions.Set]
	executor *executor.Executor
	logger   *slog.Logger
	metrics  *metrics.Metrics
	reporter Reporter
	tracer   trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithReporter(r Reporter) Option {
	return func(s *Service) { s.reporter = r }
}

func New(set *actions.Set, exec *executor.Executor, opts ...Option) (*Service, error) {
	if set == nil {
		return nil, fmt.Errorf("action set is required")
	}
	if exec == nil {
		return nil, fmt.Errorf("executor is required")
	}
	s := &Service{
		executor: exec,
		logger:   slog.Default(),
		tracer:   otel.Tracer("bugbridge/bridge"),
	}
	s.actions.Store(set)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Reload swaps the action set wholesale. In-flight events keep the set they
// started with.
func (s *Service) Reload(set *actions.Set) {
	if set == nil {
		return
	}
	s.actions.Store(set)
	s.logger.Info("action set reloaded", "actions", set.Len())
}

// Process resolves one event to exactly one terminal result. Failures of
// any phase are folded into the result value; no error escapes.
func (s *Service) Process(ctx context.Context, event models.Event) models.ExecutionResult {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "bridge.process",
		trace.WithAttributes(attribute.String("event.source_id", event.SourceID)))
	defer span.End()

	res := s.process(ctx, event)

	span.SetAttributes(
		attribute.String("bridge.result", string(res.Kind)),
		attribute.Int("bridge.steps_applied", res.StepsApplied),
	)
	s.metrics.ObserveProcessed(string(res.Kind), time.Since(start))
	if s.reporter != nil {
		s.reporter.Enqueue(report.FromResult(event.SourceID, res))
	}
	return res
}

func (s *Service) process(ctx context.Context, event models.Event) models.ExecutionResult {
	set := s.actions.Load()

	action, ok := set.Match(event)
	if !ok {
		s.logger.Debug("no action matched event", "source_id", event.SourceID)
		return models.Skipped(skipNoMatch)
	}

	fields, err := render.Fields(event, action)
	if err != nil {
		// A data problem, not a transient one: fail closed with zero remote
		// calls rather than shipping a partially rendered issue.
		var renderErr *render.Error
		if !errors.As(err, &renderErr) {
			s.logger.Error("unexpected render failure", "source_id", event.SourceID, "error", err)
		}
		return models.Failed(action.Name, models.FailureRender, err)
	}

	return s.executor.Execute(ctx, event, action, fields)
}
