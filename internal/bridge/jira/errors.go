package jira

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"bugbridge/internal/bridge/retry"
)

// RemoteError is a failed target-system call, carrying enough to classify
// it without re-parsing transport details upstream.
type RemoteError struct {
	Op     string
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("jira %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Retryable reports whether the failure is plausibly transient: request
// timeout, rate limiting, or a server-side error.
func (e *RemoteError) Retryable() bool {
	switch {
	case e.Status == 408, e.Status == 429:
		return true
	case e.Status >= 500:
		return true
	default:
		return false
	}
}

// Classify maps client failures onto retry classes: transport-level
// failures and retryable statuses are worth another attempt; everything
// else (bad request, auth, not-found, malformed responses) is terminal.
func Classify(err error) retry.Class {
	var remote *RemoteError
	if errors.As(err, &remote) {
		if remote.Retryable() {
			return retry.Retryable
		}
		return retry.Terminal
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return retry.Retryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return retry.Retryable
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return retry.Retryable
	}
	return retry.Terminal
}
