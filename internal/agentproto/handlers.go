package agentproto

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fuomag9/onlinetracker/internal/models"
)

// maxRequestBytes caps agent request bodies
const maxRequestBytes = 4 << 20

// NewRouter mounts the agent endpoints
func NewRouter(reg *Registry) http.Handler {
	r := chi.NewRouter()
	r.Post("/register", HandleRegister(reg))
	r.Get("/assignments", HandleAssignments(reg))
	r.Post("/report", HandleReport(reg))
	r.Post("/heartbeat", HandleHeartbeat(reg))
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// credentials fills blank body fields from the agent headers
func credentials(r *http.Request, uuid, secret string) (string, string) {
	if uuid == "" {
		uuid = r.Header.Get(HeaderUUID)
	}
	if secret == "" {
		secret = r.Header.Get(HeaderSecret)
	}
	return uuid, secret
}

func writeAuthError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, ErrNotApproved):
		http.Error(w, "Agent not approved", http.StatusForbidden)
	case errors.Is(err, ErrInvalidUUID):
		http.Error(w, "Invalid agent uuid", http.StatusBadRequest)
	default:
		return false
	}
	return true
}

// HandleRegister handles agent registration
func HandleRegister(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if !decode(w, r, &req) {
			return
		}
		req.UUID, req.Secret = credentials(r, req.UUID, req.Secret)

		status, err := reg.Register(r.Context(), req)
		if err != nil {
			if !writeAuthError(w, err) {
				reg.logger.Sugar().Errorw("agent registration failed", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		switch status {
		case models.AgentApproved:
			writeJSON(w, http.StatusOK, RegisterResponse{Status: status})
		case models.AgentPending:
			writeJSON(w, http.StatusAccepted, RegisterResponse{Status: status, Message: "Awaiting operator approval"})
		default:
			writeJSON(w, http.StatusForbidden, RegisterResponse{Status: status, Message: "Agent rejected"})
		}
	}
}

// HandleAssignments returns the agent's monitors
func HandleAssignments(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uuid, secret := credentials(r, r.URL.Query().Get("uuid"), r.URL.Query().Get("secret"))

		resp, err := reg.Assignments(r.Context(), uuid, secret)
		if err != nil {
			if !writeAuthError(w, err) {
				reg.logger.Sugar().Errorw("failed to build assignments", "uuid", uuid, "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleReport accepts a batch of results
func HandleReport(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReportRequest
		if !decode(w, r, &req) {
			return
		}
		req.UUID, req.Secret = credentials(r, req.UUID, req.Secret)

		resp, err := reg.Report(r.Context(), req)
		if err != nil {
			if !writeAuthError(w, err) {
				reg.logger.Sugar().Errorw("failed to process report", "uuid", req.UUID, "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleHeartbeat marks the agent as seen
func HandleHeartbeat(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req HeartbeatRequest
		if r.ContentLength != 0 && !decode(w, r, &req) {
			return
		}
		req.UUID, req.Secret = credentials(r, req.UUID, req.Secret)

		if err := reg.Heartbeat(r.Context(), req.UUID, req.Secret); err != nil {
			if !writeAuthError(w, err) {
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
