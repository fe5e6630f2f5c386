package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fuomag9/onlinetracker/internal/agentproto"
	"github.com/fuomag9/onlinetracker/internal/notification"
	"github.com/fuomag9/onlinetracker/internal/settings"
	"github.com/fuomag9/onlinetracker/internal/store"
	"github.com/fuomag9/onlinetracker/internal/websocket"
)

// Deps are the collaborators the admin API reads from
type Deps struct {
	Store       store.Store
	Agents      *agentproto.Registry
	Settings    settings.Provider
	Hub         *websocket.Hub
	Dispatcher  *notification.Dispatcher
	Gatherer    prometheus.Gatherer
	Limiter     *RateLimiter
	JWTSecret   string
	CORSOrigins []string
	Production  bool
	Logger      *zap.Logger
}

// NewRouter creates a new HTTP router
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware(d.Production))
	if d.Limiter != nil {
		r.Use(RateLimitMiddleware(d.Limiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(d.JWTSecret))

		r.Get("/status/overview", HandleGetOverview(d.Store, d.Agents, d.Logger))

		r.Get("/monitors/{id}/results", HandleGetResults(d.Store))
		r.Get("/monitors/{id}/uptime", HandleGetMonitorUptime(d.Store))
		r.Get("/monitors/{id}/alerts", HandleGetAlerts(d.Store))

		r.Get("/agents", HandleGetAgents(d.Agents))
		r.Post("/agents/{uuid}/approve", HandleApproveAgent(d.Agents, d.Hub, d.Logger))
		r.Post("/agents/{uuid}/reject", HandleRejectAgent(d.Agents, d.Hub, d.Logger))

		r.Get("/settings", HandleGetSettings(d.Settings))

		r.Get("/notifications/providers", HandleGetAvailableProviders())
		r.Post("/notifications/{id}/test", HandleTestNotification(d.Store, d.Dispatcher))
	})

	r.Get("/metrics", HandlePrometheusMetrics(d.Gatherer))

	if d.Hub != nil {
		r.Get("/ws", d.Hub.HandleWebSocket)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
