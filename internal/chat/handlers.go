package chat

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"lifebuilder-backend/internal/httpx"
)

// Handler serves POST /api/chat.
func Handler(o *Orchestrator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SessionID string   `json:"sessionId"`
			Message   string   `json:"message"`
			Images    []string `json:"images"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if body.SessionID == "" {
			httpx.WriteError(w, http.StatusBadRequest, "sessionId is required")
			return
		}
		if strings.TrimSpace(body.Message) == "" {
			httpx.WriteError(w, http.StatusBadRequest, "message is required")
			return
		}

		res, err := o.HandleTurn(r.Context(), body.SessionID, body.Message, body.Images)
		if err != nil {
			log.Warn("chat turn failed", zap.String("session", body.SessionID), zap.Error(err))
			httpx.WriteFailure(w, err)
			return
		}

		httpx.WriteJSON(w, http.StatusOK, res)
	}
}
