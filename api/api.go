// Package api exposes the enrichment engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"argus/core"
	"argus/storage"
)

// Enricher runs the enrichment pipeline for a single alert.
type Enricher interface {
	EnrichAlert(ctx context.Context, alert core.RawAlert) (*core.EnrichedAlert, error)
}

// BatchRunner runs a batch enrichment pass against the alert source.
type BatchRunner interface {
	ProcessBatch(ctx context.Context, limit, offset int, severity string) *core.RunSummary
}

// AlertStore reads back persisted enrichment records.
type AlertStore interface {
	GetByID(ctx context.Context, id string) (*core.EnrichedAlert, error)
	Recent(ctx context.Context, limit int) ([]*core.EnrichedAlert, error)
}

// API is the HTTP server for enrichment operations.
type API struct {
	router  *mux.Router
	server  *http.Server
	engine  Enricher
	batch   BatchRunner
	store   AlertStore
	logger  *zap.SugaredLogger
}

// NewAPI creates a new API server. The store may be nil when persistence is
// disabled; the read-back endpoints then return 404.
func NewAPI(engine Enricher, batch BatchRunner, store AlertStore, logger *zap.SugaredLogger) *API {
	api := &API{
		router: mux.NewRouter(),
		engine: engine,
		batch:  batch,
		store:  store,
		logger: logger,
	}
	api.setupRoutes()
	return api
}

// setupRoutes sets up the API routes
func (a *API) setupRoutes() {
	a.router.HandleFunc("/api/enrich", a.enrichAlert).Methods("POST")
	a.router.HandleFunc("/api/enrich/batch", a.runBatch).Methods("POST")
	a.router.HandleFunc("/api/alerts", a.getAlerts).Methods("GET")
	a.router.HandleFunc("/api/alerts/{id}", a.getAlert).Methods("GET")
	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.HandleFunc("/healthz", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler())
}

// Handler returns the router, used by tests.
func (a *API) Handler() http.Handler { return a.router }

// Start starts the API server
func (a *API) Start(addr string) error {
	a.server = &http.Server{
		Addr:    addr,
		Handler: a.router,
	}
	return a.server.ListenAndServe()
}

// Stop stops the API server
func (a *API) Stop(ctx context.Context) error {
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}

func (a *API) enrichAlert(w http.ResponseWriter, r *http.Request) {
	var alert core.RawAlert
	if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid alert payload")
		return
	}
	if len(alert) == 0 {
		a.writeError(w, http.StatusBadRequest, "empty alert payload")
		return
	}

	enriched, err := a.engine.EnrichAlert(r.Context(), alert)
	if err != nil {
		a.logger.Errorw("Enrichment failed", "error", err)
		a.writeError(w, http.StatusInternalServerError, "enrichment failed")
		return
	}
	a.writeJSON(w, http.StatusOK, enriched)
}

func (a *API) runBatch(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 25)
	offset := queryInt(r, "offset", 0)
	severity := r.URL.Query().Get("severity")

	summary := a.batch.ProcessBatch(r.Context(), limit, offset, severity)
	a.writeJSON(w, http.StatusOK, summary)
}

func (a *API) getAlerts(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		a.writeError(w, http.StatusNotFound, "persistence disabled")
		return
	}
	limit := queryInt(r, "limit", 50)

	alerts, err := a.store.Recent(r.Context(), limit)
	if err != nil {
		a.logger.Errorw("Failed to list enriched alerts", "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []*core.EnrichedAlert{}
	}
	a.writeJSON(w, http.StatusOK, alerts)
}

func (a *API) getAlert(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		a.writeError(w, http.StatusNotFound, "persistence disabled")
		return
	}
	id := mux.Vars(r)["id"]

	alert, err := a.store.GetByID(r.Context(), id)
	if err == storage.ErrAlertNotFound {
		a.writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	if err != nil {
		a.logger.Errorw("Failed to fetch enriched alert", "id", id, "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to fetch alert")
		return
	}
	a.writeJSON(w, http.StatusOK, alert)
}

func (a *API) healthCheck(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Errorw("Failed to encode response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
