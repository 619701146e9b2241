package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ClareAI/astra-sales-engine/internal/services/conversation"
	"github.com/ClareAI/astra-sales-engine/pkg/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ConversationHandler exposes the conversation engine over HTTP.
type ConversationHandler struct {
	service *conversation.Service
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(service *conversation.Service) *ConversationHandler {
	return &ConversationHandler{service: service}
}

type processMessageRequest struct {
	Message string `json:"message"`
}

type archetypeOverrideRequest struct {
	Archetype string `json:"archetype"`
	Unlock    bool   `json:"unlock"`
}

// ProcessMessage handles POST /api/v1/conversations/{contactId}/messages
func (h *ConversationHandler) ProcessMessage(w http.ResponseWriter, r *http.Request) {
	contactID := mux.Vars(r)["contactId"]

	var req processMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSONError(w, http.StatusBadRequest, "message is required")
		return
	}

	resp, err := h.service.ProcessMessage(r.Context(), contactID, req.Message)
	if err != nil {
		logger.Base().Error("process message failed",
			zap.String("contact_id", contactID), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Progress handles GET /api/v1/conversations/{contactId}/progress
func (h *ConversationHandler) Progress(w http.ResponseWriter, r *http.Request) {
	contactID := mux.Vars(r)["contactId"]

	progress, err := h.service.Progress(r.Context(), contactID)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, progress)
}

// Snapshot handles GET /api/v1/conversations/{contactId}/snapshot
func (h *ConversationHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	contactID := mux.Vars(r)["contactId"]

	snap, err := h.service.Snapshot(r.Context(), contactID)
	if err != nil {
		logger.Base().Error("snapshot read failed",
			zap.String("contact_id", contactID), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// OverrideArchetype handles POST /api/v1/conversations/{contactId}/archetype
func (h *ConversationHandler) OverrideArchetype(w http.ResponseWriter, r *http.Request) {
	contactID := mux.Vars(r)["contactId"]

	var req archetypeOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Unlock && req.Archetype == "" {
		writeJSONError(w, http.StatusBadRequest, "archetype is required")
		return
	}

	result, err := h.service.OverrideArchetype(r.Context(), contactID, req.Archetype, req.Unlock)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Health handles GET /health
func (h *ConversationHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Base().Error("response encode failed", zap.Error(err))
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
