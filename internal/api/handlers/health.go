package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/redforge/riskscan/internal/health"
	"github.com/redforge/riskscan/internal/logging"
)

// HealthHandler serves liveness, readiness, and version routes. These
// routes are unauthenticated.
type HealthHandler struct {
	checker *health.Checker
	version string
	logger  *logging.Logger
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(checker *health.Checker, version string) *HealthHandler {
	return &HealthHandler{
		checker: checker,
		version: version,
		logger:  logging.Default().WithComponent("api.health"),
	}
}

// Register wires the health routes onto the router.
func (h *HealthHandler) Register(router *mux.Router) {
	router.HandleFunc("/health", h.Readiness).Methods(http.MethodGet)
	router.HandleFunc("/health/live", h.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/version", h.Version).Methods(http.MethodGet)
}

// Readiness handles GET /health. An error-grade report yields 503 so
// load balancers stop routing to the instance.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	report := h.checker.Run(r.Context())

	status := http.StatusOK
	if report.Status == health.StatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, h.logger, status, report)
}

// Liveness handles GET /health/live.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "alive"})
}

// Version handles GET /version.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"version": h.version})
}
