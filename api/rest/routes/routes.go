package routes

import (
	"net/http"

	"command-center/api/rest/handlers"
	"command-center/core/engine"
	"command-center/core/monitoring"

	"github.com/gorilla/mux"
)

// Options are the optional collaborators of the API
type Options struct {
	Archive handlers.JobArchive
	Journal handlers.EventJournal
	Events  http.Handler // websocket event stream
}

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, eng *engine.Engine, opts Options) {
	jobHandler := handlers.NewJobHandler(eng, opts.Archive, opts.Journal)
	systemHandler := handlers.NewSystemHandler(eng, monitoring.NewMetricsExporter(eng.Registry()))

	r.HandleFunc("/health", systemHandler.Health).Methods("GET")
	r.HandleFunc("/metrics", systemHandler.Metrics).Methods("GET")

	api := r.PathPrefix("/v1").Subrouter()

	// Job endpoints
	api.HandleFunc("/jobs", jobHandler.SubmitJob).Methods("POST")
	api.HandleFunc("/jobs/scaffold", jobHandler.SubmitScaffold).Methods("POST")
	api.HandleFunc("/jobs/uplink", jobHandler.SubmitUplink).Methods("POST")
	api.HandleFunc("/jobs/remote", jobHandler.SubmitRemote).Methods("POST")
	api.HandleFunc("/jobs", jobHandler.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", jobHandler.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}/events", jobHandler.GetJobEvents).Methods("GET")
	api.HandleFunc("/jobs/{id}/approve", jobHandler.ApprovePlan).Methods("POST")
	api.HandleFunc("/jobs/{id}/refine", jobHandler.RefinePlan).Methods("POST")
	api.HandleFunc("/jobs/{id}/merge", jobHandler.MergePR).Methods("POST")
	api.HandleFunc("/jobs/{id}/cancel", jobHandler.CancelJob).Methods("POST")
	api.HandleFunc("/recipes", jobHandler.ListRecipes).Methods("GET")

	api.HandleFunc("/auth/status", systemHandler.AuthStatus).Methods("GET")
	if opts.Events != nil {
		api.Handle("/events", opts.Events).Methods("GET")
	}
}
