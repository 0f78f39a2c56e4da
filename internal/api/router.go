package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/triagehub/triagehub/internal/api/recovery"
	"github.com/triagehub/triagehub/internal/broadcast"
	"github.com/triagehub/triagehub/internal/health"
	"github.com/triagehub/triagehub/internal/ingest"
	"github.com/triagehub/triagehub/internal/store"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Store              store.Store
	Coordinator        *ingest.Coordinator
	Hub                *broadcast.Hub
	Health             *health.ServiceHealthChecker
	SlackSigningSecret string
	Log                zerolog.Logger
}

// NewRouter creates the HTTP router with all API routes.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()

	// Global middlewares
	router.Use(recovery.Middleware)

	issueHandler := NewIssueHandler(d.Store, d.Coordinator, d.Log)
	slackHandler := NewSlackHandler(d.Coordinator, d.SlackSigningSecret, d.Log)
	eventsHandler := NewEventsHandler(d.Hub, d.Log)
	healthHandler := NewHealthHandler(d.Health)

	// Health and metrics
	router.HandleFunc("/v0/health", healthHandler.CheckHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Ingestion surfaces
	router.HandleFunc("/slack/events", slackHandler.HandleEvent).Methods("POST")
	router.HandleFunc("/v0/messages", slackHandler.HandleIngest).Methods("POST")

	// Issue read side and resolve command
	router.HandleFunc("/v0/issues", issueHandler.ListIssues).Methods("GET")
	router.HandleFunc("/v0/issues/{issueId:[0-9a-fA-F-]{36}}", issueHandler.GetIssue).Methods("GET")
	router.HandleFunc("/v0/issues/{issueId:[0-9a-fA-F-]{36}}/messages", issueHandler.ListIssueMessages).Methods("GET")
	router.HandleFunc("/v0/issues/{issueId:[0-9a-fA-F-]{36}}/resolve", issueHandler.ResolveIssue).Methods("POST")
	router.HandleFunc("/v0/stats", issueHandler.GetStats).Methods("GET")

	// Live event stream
	router.HandleFunc("/v0/events", eventsHandler.Stream).Methods("GET")

	return router
}
