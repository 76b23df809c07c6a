package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"bugbridge/internal/bridge/models"
)

// BridgeService is the engine surface the transport needs. The handler does
// schema decoding and result-to-status mapping only; processing semantics
// stay in the engine.
type BridgeService interface {
	Process(ctx context.Context, event models.Event) models.ExecutionResult
}

// Handler is the thin HTTP layer over the bridge engine.
type Handler struct {
	bridge BridgeService
	logger *slog.Logger
	ready  func(ctx context.Context) error
}

// NewHandler builds the transport handler. ready reports backend
// connectivity for the readiness endpoint and may be nil.
func NewHandler(bridge BridgeService, logger *slog.Logger, ready func(ctx context.Context) error) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{bridge: bridge, logger: logger, ready: ready}
}

type webhookResponse struct {
	Result       string `json:"result"`
	Action       string `json:"action,omitempty"`
	TargetID     string `json:"target_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
	StepsApplied int    `json:"steps_applied"`
	Error        string `json:"error,omitempty"`
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var event models.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed event payload"})
		return
	}
	if event.SourceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event source_id is required"})
		return
	}
	if event.Target == "" {
		event.Target = models.TargetBug
	}

	res := h.bridge.Process(r.Context(), event)

	resp := webhookResponse{
		Result:       string(res.Kind),
		Action:       res.Action,
		TargetID:     res.TargetID,
		Reason:       res.Reason,
		StepsApplied: res.StepsApplied,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	writeJSON(w, statusFor(res), resp)
}

// statusFor maps terminal results onto response codes. Skips are 200s: a
// non-matching event is the common case, not a client mistake.
func statusFor(res models.ExecutionResult) int {
	switch res.Kind {
	case models.ResultApplied, models.ResultSkipped:
		return http.StatusOK
	case models.ResultPartiallyApplied:
		return http.StatusConflict
	default:
		switch res.Failure {
		case models.FailureRender:
			return http.StatusUnprocessableEntity
		case models.FailureRemoteTerminal, models.FailureRetryExhausted:
			return http.StatusBadGateway
		default:
			return http.StatusInternalServerError
		}
	}
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
