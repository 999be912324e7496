// Package httpapi exposes the engine's Store, Orchestrator, and ontology
// Extractor over the REST surface described in the specification, built on
// gorilla/mux the way the teacher's services/secrets package routes its own
// resource tree (internal/app/httpapi/service.go wires the equivalent
// stdlib-mux server this package generalizes to mux.Router).
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/processlens/engine/internal/ontology"
	"github.com/processlens/engine/internal/orchestrator"
	"github.com/processlens/engine/internal/store"
	"github.com/processlens/engine/pkg/logger"
	"github.com/processlens/engine/pkg/metrics"
)

// Server holds every collaborator the HTTP layer dispatches to.
type Server struct {
	st      store.Store
	orch    *orchestrator.Orchestrator
	extract *ontology.Extractor
	log     *logger.Logger
}

// NewServer builds a Server. extract is the same Extractor instance the
// orchestrator's jobs use, so rule edits take effect on the very next run.
func NewServer(st store.Store, orch *orchestrator.Orchestrator, extract *ontology.Extractor, log *logger.Logger) *Server {
	return &Server{st: st, orch: orch, extract: extract, log: log}
}

// NewRouter builds the full mux.Router. Logging, metrics and CORS apply to
// every route; the request-timeout wrapper (innermost, before the handler)
// applies to the resource routes but not to healthz, system/version,
// /metrics or the websocket job-watch endpoint, which cannot survive
// http.TimeoutHandler's buffering.
func NewRouter(s *Server) *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(s.log))
	r.Use(metrics.InstrumentHandler)
	r.Use(corsMiddleware)

	api := r.PathPrefix("/api/0").Subrouter()

	api.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	api.HandleFunc("/system/version", s.systemVersion).Methods(http.MethodGet)

	api.HandleFunc("/object-types", timeoutMiddleware(http.HandlerFunc(s.listObjectTypes)).ServeHTTP).Methods(http.MethodGet)
	api.HandleFunc("/object-types", timeoutMiddleware(http.HandlerFunc(s.createObjectType)).ServeHTTP).Methods(http.MethodPost)
	api.HandleFunc("/object-types/{id}", timeoutMiddleware(http.HandlerFunc(s.getObjectType)).ServeHTTP).Methods(http.MethodGet)
	api.HandleFunc("/object-types/{id}", timeoutMiddleware(http.HandlerFunc(s.updateObjectType)).ServeHTTP).Methods(http.MethodPut)
	api.HandleFunc("/object-types/{id}", timeoutMiddleware(http.HandlerFunc(s.deleteObjectType)).ServeHTTP).Methods(http.MethodDelete)

	api.HandleFunc("/objects", timeoutMiddleware(http.HandlerFunc(s.listObjects)).ServeHTTP).Methods(http.MethodGet)
	api.HandleFunc("/objects", timeoutMiddleware(http.HandlerFunc(s.createObject)).ServeHTTP).Methods(http.MethodPost)
	api.HandleFunc("/objects/{id}", timeoutMiddleware(http.HandlerFunc(s.getObject)).ServeHTTP).Methods(http.MethodGet)
	api.HandleFunc("/objects/{id}", timeoutMiddleware(http.HandlerFunc(s.updateObject)).ServeHTTP).Methods(http.MethodPut)
	api.HandleFunc("/objects/{id}", timeoutMiddleware(http.HandlerFunc(s.deleteObject)).ServeHTTP).Methods(http.MethodDelete)
	api.HandleFunc("/objects/{id}/events", timeoutMiddleware(http.HandlerFunc(s.eventsForObject)).ServeHTTP).Methods(http.MethodGet)

	api.HandleFunc("/extraction-rules", timeoutMiddleware(http.HandlerFunc(s.listRules)).ServeHTTP).Methods(http.MethodGet)
	api.HandleFunc("/extraction-rules", timeoutMiddleware(http.HandlerFunc(s.createRule)).ServeHTTP).Methods(http.MethodPost)
	api.HandleFunc("/extraction-rules/run", timeoutMiddleware(http.HandlerFunc(s.runRules)).ServeHTTP).Methods(http.MethodPost)
	api.HandleFunc("/extraction-rules/{id}", timeoutMiddleware(http.HandlerFunc(s.getRule)).ServeHTTP).Methods(http.MethodGet)
	api.HandleFunc("/extraction-rules/{id}", timeoutMiddleware(http.HandlerFunc(s.updateRule)).ServeHTTP).Methods(http.MethodPut)
	api.HandleFunc("/extraction-rules/{id}", timeoutMiddleware(http.HandlerFunc(s.deleteRule)).ServeHTTP).Methods(http.MethodDelete)
	api.HandleFunc("/extraction-rules/{id}/test", timeoutMiddleware(http.HandlerFunc(s.testRule)).ServeHTTP).Methods(http.MethodPost)

	api.HandleFunc("/buckets/{bucket}/events/{event}/objects", timeoutMiddleware(http.HandlerFunc(s.linkEventObject)).ServeHTTP).Methods(http.MethodPost)
	api.HandleFunc("/buckets/{bucket}/events/{event}/objects", timeoutMiddleware(http.HandlerFunc(s.listEventObjects)).ServeHTTP).Methods(http.MethodGet)
	api.HandleFunc("/buckets/{bucket}/events/{event}/objects/{object_id}", timeoutMiddleware(http.HandlerFunc(s.unlinkEventObject)).ServeHTTP).Methods(http.MethodDelete)

	api.HandleFunc("/training/pending", timeoutMiddleware(http.HandlerFunc(s.listPendingTraining)).ServeHTTP).Methods(http.MethodGet)
	api.HandleFunc("/training/{task_id}/confirm", timeoutMiddleware(http.HandlerFunc(s.confirmTraining)).ServeHTTP).Methods(http.MethodPost)
	api.HandleFunc("/training/{task_id}/reject", timeoutMiddleware(http.HandlerFunc(s.rejectTraining)).ServeHTTP).Methods(http.MethodPost)
	api.HandleFunc("/training/{task_id}/correct", timeoutMiddleware(http.HandlerFunc(s.correctTraining)).ServeHTTP).Methods(http.MethodPost)
	api.HandleFunc("/training/{task_id}", timeoutMiddleware(http.HandlerFunc(s.deleteReviewTask)).ServeHTTP).Methods(http.MethodDelete)

	api.HandleFunc("/steps", timeoutMiddleware(http.HandlerFunc(s.listSteps)).ServeHTTP).Methods(http.MethodGet)
	api.HandleFunc("/steps", timeoutMiddleware(http.HandlerFunc(s.createStep)).ServeHTTP).Methods(http.MethodPost)
	api.HandleFunc("/steps/{id}", timeoutMiddleware(http.HandlerFunc(s.getStep)).ServeHTTP).Methods(http.MethodGet)
	api.HandleFunc("/steps/{id}", timeoutMiddleware(http.HandlerFunc(s.updateStep)).ServeHTTP).Methods(http.MethodPut)
	api.HandleFunc("/steps/{id}", timeoutMiddleware(http.HandlerFunc(s.deleteStep)).ServeHTTP).Methods(http.MethodDelete)
	api.HandleFunc("/steps/{id}/objects", timeoutMiddleware(http.HandlerFunc(s.addStepObject)).ServeHTTP).Methods(http.MethodPost)
	api.HandleFunc("/steps/{id}/objects/{obj}", timeoutMiddleware(http.HandlerFunc(s.removeStepObject)).ServeHTTP).Methods(http.MethodDelete)

	api.HandleFunc("/workflows", timeoutMiddleware(http.HandlerFunc(s.listWorkflows)).ServeHTTP).Methods(http.MethodGet)
	api.HandleFunc("/workflows", timeoutMiddleware(http.HandlerFunc(s.createWorkflow)).ServeHTTP).Methods(http.MethodPost)
	api.HandleFunc("/workflows/{id}", timeoutMiddleware(http.HandlerFunc(s.getWorkflow)).ServeHTTP).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}", timeoutMiddleware(http.HandlerFunc(s.updateWorkflow)).ServeHTTP).Methods(http.MethodPut)
	api.HandleFunc("/workflows/{id}", timeoutMiddleware(http.HandlerFunc(s.deleteWorkflow)).ServeHTTP).Methods(http.MethodDelete)
	api.HandleFunc("/workflows/{id}/objects", timeoutMiddleware(http.HandlerFunc(s.addWorkflowObject)).ServeHTTP).Methods(http.MethodPost)
	api.HandleFunc("/workflows/{id}/objects/{obj}", timeoutMiddleware(http.HandlerFunc(s.removeWorkflowObject)).ServeHTTP).Methods(http.MethodDelete)
	api.HandleFunc("/workflows/{id}/occurrences", timeoutMiddleware(http.HandlerFunc(s.listOccurrences)).ServeHTTP).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}/occurrences/{occ_id}", timeoutMiddleware(http.HandlerFunc(s.getOccurrence)).ServeHTTP).Methods(http.MethodGet)

	api.HandleFunc("/mining/patterns", timeoutMiddleware(http.HandlerFunc(s.miningPatterns)).ServeHTTP).Methods(http.MethodPost)
	api.HandleFunc("/mining/group-events", timeoutMiddleware(http.HandlerFunc(s.miningGroupEvents)).ServeHTTP).Methods(http.MethodPost)
	api.HandleFunc("/mining/discover-workflows", timeoutMiddleware(http.HandlerFunc(s.miningDiscoverWorkflows)).ServeHTTP).Methods(http.MethodPost)
	api.HandleFunc("/mining/match-workflow", timeoutMiddleware(http.HandlerFunc(s.miningMatchWorkflow)).ServeHTTP).Methods(http.MethodPost)

	api.HandleFunc("/jobs/{job_id}", timeoutMiddleware(http.HandlerFunc(s.getJob)).ServeHTTP).Methods(http.MethodGet)
	// Not request-timeout-wrapped: the connection is meant to stay open for
	// the life of the job, not 10s.
	api.HandleFunc("/jobs/{job_id}/watch", s.watchJob).Methods(http.MethodGet)

	r.Handle("/metrics", metrics.Handler())
	return r
}
