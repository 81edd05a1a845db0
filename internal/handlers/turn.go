package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/textjianghu/jianghu-engine/internal/engine"
	"github.com/textjianghu/jianghu-engine/internal/storage"
	"github.com/textjianghu/jianghu-engine/pkg/chat"
)

// TurnHandler handles player turn requests.
type TurnHandler struct {
	processor *engine.Processor
	logger    *slog.Logger
}

func NewTurnHandler(processor *engine.Processor, logger *slog.Logger) *TurnHandler {
	return &TurnHandler{
		processor: processor,
		logger:    logger,
	}
}

func (h *TurnHandler) writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(chat.TurnResponse{Error: msg}); err != nil {
		h.logger.Error("Failed to encode error response", "error", err)
	}
}

// ServeHTTP handles POST /v1/turn. The request blocks for the duration
// of the LLM call, which dominates latency.
func (h *TurnHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		h.logger.Warn("Method not allowed for turn endpoint",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr)
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.")
		return
	}

	var request chat.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body. Expected JSON with 'session_id' and 'action' fields.")
		return
	}

	if err := request.Validate(); err != nil {
		h.logger.Warn("Invalid turn request", "error", err)
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("Turn requested",
		"session_id", request.SessionID.String(),
		"remote_addr", r.RemoteAddr)

	result, err := h.processor.PlayTurn(r.Context(), request.SessionID, request.Action)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			h.logger.Warn("Session not found for turn", "session_id", request.SessionID.String())
			h.writeError(w, http.StatusNotFound, "Session not found")

		case errors.Is(err, storage.ErrConflict):
			h.logger.Warn("Turn lost transaction race", "session_id", request.SessionID.String())
			h.writeError(w, http.StatusConflict, "The world changed mid-turn. Please retry your action.")

		default:
			h.logger.Error("Failed to process turn", "error", err, "session_id", request.SessionID.String())
			h.writeError(w, http.StatusInternalServerError, "Failed to process turn. Please try again.")
		}
		return
	}

	response := chat.TurnResponse{
		SessionID:        request.SessionID,
		Segments:         result.Segments,
		MutationWarnings: result.MutationWarnings,
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode turn response", "error", err)
	}
}
