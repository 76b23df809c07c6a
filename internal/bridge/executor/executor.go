// Package executor runs an action's step sequence against the target
// system. It owns the correlation lifecycle: create-vs-update decisions,
// idempotent creation under duplicate delivery, and the partial-failure
// surface when a sequence stops midway.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"bugbridge/internal/bridge/metrics"
	"bugbridge/internal/bridge/models"
	"bugbridge/internal/bridge/render"
	"bugbridge/internal/bridge/retry"
	"bugbridge/internal/bridge/store/correlation"
	"bugbridge/pkg/platform/sentinel"
)

// Skip reasons surfaced on no-op outcomes.
const (
	ReasonNoCorrelation = "no correlated target record"
	ReasonNoCommentStep = "no comment step for comment event"
)

// TargetClient is the thin interface to the target issue tracker. All calls
// may fail with errors the retry classifier can distinguish.
type TargetClient interface {
	CreateIssue(ctx context.Context, project string, fields map[string]any) (string, error)
	UpdateFields(ctx context.Context, key string, fields map[string]any) error
	AddComment(ctx context.Context, key, text string) error
	TransitionStatus(ctx context.Context, key, status string) error
}

// Executor executes step sequences. Client, store, policy, and classifier
// are explicit dependencies so tests substitute fakes freely.
type Executor struct {
	client       TargetClient
	correlations correlation.Store
	policy       retry.Policy
	classify     retry.Classifier
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// Option configures the Executor.
type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

func New(client TargetClient, correlations correlation.Store, policy retry.Policy, classify retry.Classifier, opts ...Option) (*Executor, error) {
	if client == nil {
		return nil, fmt.Errorf("target client is required")
	}
	if correlations == nil {
		return nil, fmt.Errorf("correlation store is required")
	}
	if classify == nil {
		return nil, fmt.Errorf("error classifier is required")
	}
	e := &Executor{
		client:       client,
		correlations: correlations,
		policy:       policy,
		classify:     classify,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute runs the action's steps for the event in declared order.
//
// Cancellation is honored only up to the first side effect: once step
// execution begins, the sequence runs to completion on a detached context
// so a mid-flight abandon cannot strand the correlation store and the
// target system in disagreement.
func (e *Executor) Execute(ctx context.Context, event models.Event, action models.ActionConfig, fields *render.FieldSet) models.ExecutionResult {
	steps := stepsFor(event, action)
	if len(steps) == 0 {
		return models.Skipped(ReasonNoCommentStep)
	}

	targetID, err := e.resolveCorrelation(ctx, event.SourceID)
	if err != nil {
		return models.Failed(action.Name, models.FailureStore, err)
	}

	// An absent correlation only makes sense when the sequence starts by
	// creating the target record; the engine never creates one implicitly
	// to satisfy an update or comment.
	if targetID == "" && steps[0].Kind != models.StepCreateIssue {
		return models.Skipped(ReasonNoCorrelation)
	}

	if err := ctx.Err(); err != nil {
		return models.Failed(action.Name, models.FailureCanceled, err)
	}
	ctx = context.WithoutCancel(ctx)

	applied := 0
	for _, step := range steps {
		advanced, stepErr := e.executeStep(ctx, event, action, step, fields, &targetID)
		if stepErr != nil {
			kind := models.FailureRemoteTerminal
			var exhausted *retry.ExhaustedError
			if errors.As(stepErr, &exhausted) {
				kind = models.FailureRetryExhausted
			}
			if applied > 0 {
				return models.PartiallyApplied(action.Name, targetID, applied, kind, stepErr)
			}
			return models.Failed(action.Name, kind, stepErr)
		}
		if advanced {
			applied++
			e.metrics.IncrementStep(string(step.Kind))
		}
	}
	return models.Applied(action.Name, targetID, applied)
}

func (e *Executor) resolveCorrelation(ctx context.Context, sourceID string) (string, error) {
	rec, err := e.correlations.Get(ctx, sourceID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve correlation: %w", err)
	}
	return rec.TargetID, nil
}

// executeStep runs one step. It reports whether a remote operation actually
// reached the target system; benign no-ops (create for an already
// correlated record, empty comment body, unmapped status) advance the
// sequence without counting as applied.
func (e *Executor) executeStep(ctx context.Context, event models.Event, action models.ActionConfig, step models.Step, fields *render.FieldSet, targetID *string) (bool, error) {
	switch step.Kind {
	case models.StepCreateIssue:
		return e.createIssue(ctx, event, action, step, fields, targetID)

	case models.StepUpdateFields:
		payload := fieldPayload(step, fields)
		err := e.withRetry(ctx, func(ctx context.Context) error {
			return e.client.UpdateFields(ctx, *targetID, payload)
		})
		return err == nil, err

	case models.StepAddComment:
		body := fields.Values[step.Template]
		if strings.TrimSpace(body) == "" {
			e.logger.Debug("comment body rendered empty, skipping step",
				"source_id", event.SourceID, "action", action.Name)
			return false, nil
		}
		err := e.withRetry(ctx, func(ctx context.Context) error {
			return e.client.AddComment(ctx, *targetID, body)
		})
		return err == nil, err

	case models.StepSyncStatus:
		status := targetStatus(event, action)
		if status == "" {
			e.logger.Debug("no status mapping for source state, skipping step",
				"source_id", event.SourceID, "action", action.Name,
				"status", event.Bug.Status, "resolution", event.Bug.Resolution)
			return false, nil
		}
		err := e.withRetry(ctx, func(ctx context.Context) error {
			return e.client.TransitionStatus(ctx, *targetID, status)
		})
		return err == nil, err

	default:
		// Unreachable for validated configs.
		return false, fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

// createIssue creates the target record and persists the correlation before
// any later step runs. Each retry attempt re-resolves the correlation
// first: if a previous attempt's create actually succeeded remotely but the
// response was lost, the stored record is adopted instead of creating a
// duplicate.
func (e *Executor) createIssue(ctx context.Context, event models.Event, action models.ActionConfig, step models.Step, fields *render.FieldSet, targetID *string) (bool, error) {
	if *targetID != "" {
		// Duplicate delivery after a prior successful create: benign no-op.
		e.logger.Debug("issue already correlated, skipping create",
			"source_id", event.SourceID, "target_id", *targetID)
		return false, nil
	}

	payload := fieldPayload(step, fields)
	payload["issuetype"] = issueType(event)

	var createdKey string
	err := e.withRetry(ctx, func(ctx context.Context) error {
		if rec, err := e.correlations.Get(ctx, event.SourceID); err == nil {
			*targetID = rec.TargetID
			createdKey = ""
			return nil
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return fmt.Errorf("re-resolve correlation: %w", err)
		}
		key, err := e.client.CreateIssue(ctx, action.Project, payload)
		if err != nil {
			return err
		}
		createdKey = key
		return nil
	})
	if err != nil {
		return false, err
	}
	if createdKey == "" {
		// Adopted an existing correlation mid-retry; nothing was created.
		return false, nil
	}

	rec, created, err := e.correlations.CreateIfAbsent(ctx, event.SourceID, createdKey)
	if err != nil {
		// The remote issue exists but the correlation write failed. The next
		// delivery re-enters createIssue and adopts or re-creates; surfacing
		// the store failure keeps the operator in the loop.
		return false, fmt.Errorf("persist correlation for %s: %w", event.SourceID, err)
	}
	if !created {
		// Lost the race to a concurrent delivery. Adopt the winner and flag
		// the orphaned remote issue for manual cleanup.
		e.logger.Warn("concurrent create detected, adopting existing correlation",
			"source_id", event.SourceID, "adopted_target", rec.TargetID, "orphaned_target", createdKey)
		*targetID = rec.TargetID
		return false, nil
	}

	*targetID = rec.TargetID
	e.metrics.IncrementIssuesCreated()
	return true, nil
}

// withRetry wraps a remote call in the policy and feeds the attempt count
// past the first into the retry metric.
func (e *Executor) withRetry(ctx context.Context, op func(context.Context) error) error {
	calls := 0
	err := e.policy.Execute(ctx, e.classify, func(ctx context.Context) error {
		calls++
		return op(ctx)
	})
	e.metrics.AddRetries(calls - 1)
	return err
}

// stepsFor narrows the sequence by event target: comment events run only
// the action's comment steps against an already-correlated issue.
func stepsFor(event models.Event, action models.ActionConfig) []models.Step {
	if event.Target != models.TargetComment {
		return action.Steps
	}
	var steps []models.Step
	for _, step := range action.Steps {
		if step.Kind == models.StepAddComment {
			steps = append(steps, step)
		}
	}
	return steps
}

// fieldPayload resolves a step's field-to-template references against the
// rendered set and attaches whiteboard labels when present.
func fieldPayload(step models.Step, fields *render.FieldSet) map[string]any {
	payload := make(map[string]any, len(step.Fields)+1)
	for field, tmpl := range step.Fields {
		payload[field] = fields.Values[tmpl]
	}
	if len(fields.Labels) > 0 {
		payload["labels"] = fields.Labels
	}
	return payload
}

// targetStatus picks the mapped target workflow status: a mapped
// resolution wins over a mapped status, since resolution is the more
// specific terminal state.
func targetStatus(event models.Event, action models.ActionConfig) string {
	if event.Bug.Resolution != "" {
		if mapped, ok := action.ResolutionMap[event.Bug.Resolution]; ok {
			return mapped
		}
	}
	return action.StatusMap[event.Bug.Status]
}

// issueType mirrors the source bug type onto the target's issue types.
func issueType(event models.Event) string {
	switch strings.ToLower(event.Bug.Type) {
	case "enhancement", "task":
		return "Task"
	default:
		return "Bug"
	}
}
