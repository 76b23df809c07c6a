package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and clients return these
// (optionally wrapped) so the engine can translate them into processing
// outcomes without inspecting backend-specific error types.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in store / issue absent on remote
// - ErrConflict: record already exists (lost a create race)
// - ErrUnavailable: backend temporarily unreachable
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
