package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fuomag9/onlinetracker/internal/agentproto"
	"github.com/fuomag9/onlinetracker/internal/models"
	"github.com/fuomag9/onlinetracker/internal/store"
	"github.com/fuomag9/onlinetracker/internal/websocket"
)

// HandleGetAgents lists agents with their liveness
func HandleGetAgents(agents *agentproto.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := agents.List(r.Context())
		if err != nil {
			http.Error(w, "Failed to fetch agents", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// HandleApproveAgent approves a pending or rejected agent
func HandleApproveAgent(agents *agentproto.Registry, hub *websocket.Hub, logger *zap.Logger) http.HandlerFunc {
	return handleTransition(agents.Approve, hub, logger)
}

// HandleRejectAgent rejects a pending or approved agent
func HandleRejectAgent(agents *agentproto.Registry, hub *websocket.Hub, logger *zap.Logger) http.HandlerFunc {
	return handleTransition(agents.Reject, hub, logger)
}

func handleTransition(apply func(ctx context.Context, uuid string) (*models.Agent, error), hub *websocket.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, err := apply(r.Context(), chi.URLParam(r, "uuid"))
		switch {
		case errors.Is(err, agentproto.ErrInvalidUUID):
			http.Error(w, "Invalid agent uuid", http.StatusBadRequest)
			return
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "Agent not found", http.StatusNotFound)
			return
		case errors.Is(err, agentproto.ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
			return
		case err != nil:
			logger.Error("failed to change agent status", zap.Error(err))
			http.Error(w, "Failed to update agent", http.StatusInternalServerError)
			return
		}

		logger.Info("operator changed agent status",
			zap.String("operator", SubjectFromContext(r.Context())),
			zap.String("uuid", agent.UUID),
			zap.String("status", string(agent.Status)))

		if hub != nil {
			if err := hub.Broadcast(websocket.TypeAgent, 0, agent); err != nil {
				logger.Warn("failed to broadcast agent change", zap.Error(err))
			}
		}

		writeJSON(w, http.StatusOK, agent)
	}
}
