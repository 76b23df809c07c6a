package models

import "time"

// ResultKind is the terminal outcome of processing one event.
type ResultKind string

const (
	ResultApplied ResultKind = "applied"
	ResultSkipped ResultKind = "skipped"
	// ResultPartiallyApplied means some steps reached the target system
	// before a terminal failure. The target has no rollback primitive, so
	// this is surfaced distinctly for manual reconciliation.
	ResultPartiallyApplied ResultKind = "partially_applied"
	ResultFailed           ResultKind = "failed"
)

// FailureKind classifies terminal failures for operators and metrics.
type FailureKind string

const (
	FailureNone           FailureKind = ""
	FailureRender         FailureKind = "render"
	FailureRemoteTerminal FailureKind = "remote_terminal"
	FailureRetryExhausted FailureKind = "retry_exhausted"
	FailureStore          FailureKind = "store"
	FailureCanceled       FailureKind = "canceled"
)

// ExecutionResult is the single value every processed event resolves to.
// The engine never lets a remote-call error escape unclassified; failures
// are folded into this value and handed back to the boundary.
type ExecutionResult struct {
	Kind     ResultKind
	Action   string
	TargetID string

	// Reason explains skipped outcomes ("no matching action", ...).
	Reason string

	// StepsApplied counts steps that reached the target system.
	StepsApplied int

	Failure FailureKind
	Err     error
}

// Applied builds a success result.
func Applied(action, targetID string, steps int) ExecutionResult {
	return ExecutionResult{Kind: ResultApplied, Action: action, TargetID: targetID, StepsApplied: steps}
}

// Skipped builds a no-op result. Skips are not errors.
func Skipped(reason string) ExecutionResult {
	return ExecutionResult{Kind: ResultSkipped, Reason: reason}
}

// Failed builds a terminal failure result.
func Failed(action string, kind FailureKind, err error) ExecutionResult {
	return ExecutionResult{Kind: ResultFailed, Action: action, Failure: kind, Err: err}
}

// PartiallyApplied builds a partial-failure result: stepsApplied steps
// reached the target before err stopped the sequence.
func PartiallyApplied(action, targetID string, steps int, kind FailureKind, err error) ExecutionResult {
	return ExecutionResult{
		Kind:         ResultPartiallyApplied,
		Action:       action,
		TargetID:     targetID,
		StepsApplied: steps,
		Failure:      kind,
		Err:          err,
	}
}

// CorrelationRecord durably associates a source record with the target
// record created for it. At most one record exists per source id; the
// target id is assigned exactly once and never reassigned.
type CorrelationRecord struct {
	SourceID  string    `json:"source_id"`
	TargetID  string    `json:"target_id"`
	CreatedAt time.Time `json:"created_at"`
}
