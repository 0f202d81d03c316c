package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/redforge/riskscan/internal/logging"
	"github.com/redforge/riskscan/internal/scanning"
	"github.com/redforge/riskscan/internal/scans"
)

// listDefaultLimit and listMaxLimit bound scan listings.
const (
	listDefaultLimit = 20
	listMaxLimit     = 100
)

// ScanService is the lifecycle manager surface the handlers depend on.
// Satisfied by scans.Service.
type ScanService interface {
	Create(ctx context.Context, owner string, req scans.CreateRequest) (*scans.Scan, error)
	GetScan(ctx context.Context, scanID, requester string) (*scans.Scan, error)
	ListScans(ctx context.Context, requester, status string, limit, offset int) ([]*scans.Scan, error)
	ListHosts(ctx context.Context, scanID, requester string) ([]scanning.HostResult, error)
	GetProgress(ctx context.Context, scanID, requester string) (*scans.ProgressInfo, error)
	Cancel(ctx context.Context, scanID, requester string) bool
	Delete(ctx context.Context, scanID, requester string) bool
	GetStatistics(ctx context.Context, requester string) (*scans.Statistics, error)
	ValidateTargets(ctx context.Context, raw string) scanning.TargetValidationResult
}

// ScanHandler serves the /scans routes.
type ScanHandler struct {
	service ScanService
	logger  *logging.Logger
}

// NewScanHandler creates a scan handler over the lifecycle manager.
func NewScanHandler(service ScanService) *ScanHandler {
	return &ScanHandler{
		service: service,
		logger:  logging.Default().WithComponent("api.scans"),
	}
}

// Register wires the scan routes onto the router.
func (h *ScanHandler) Register(router *mux.Router) {
	router.HandleFunc("/scans", h.CreateScan).Methods(http.MethodPost)
	router.HandleFunc("/scans", h.ListScans).Methods(http.MethodGet)
	router.HandleFunc("/scans/stats", h.GetStatistics).Methods(http.MethodGet)
	router.HandleFunc("/scans/validate", h.ValidateTargets).Methods(http.MethodPost)
	router.HandleFunc("/scans/{id}", h.GetScan).Methods(http.MethodGet)
	router.HandleFunc("/scans/{id}", h.DeleteScan).Methods(http.MethodDelete)
	router.HandleFunc("/scans/{id}/hosts", h.ListHosts).Methods(http.MethodGet)
	router.HandleFunc("/scans/{id}/progress", h.GetProgress).Methods(http.MethodGet)
	router.HandleFunc("/scans/{id}/cancel", h.CancelScan).Methods(http.MethodPost)
}

// CreateScan handles POST /scans.
func (h *ScanHandler) CreateScan(w http.ResponseWriter, r *http.Request) {
	owner, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, http.StatusUnauthorized, err)
		return
	}

	var req scans.CreateRequest
	if err := parseJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, http.StatusBadRequest, err)
		return
	}

	scan, err := h.service.Create(r.Context(), owner, req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, scan)
}

// ListScans handles GET /scans with status, limit, and offset parameters.
func (h *ScanHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	owner, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, http.StatusUnauthorized, err)
		return
	}

	limit := queryInt(r, "limit", listDefaultLimit)
	if limit > listMaxLimit {
		limit = listMaxLimit
	}
	offset := queryInt(r, "offset", 0)
	status := r.URL.Query().Get("status")

	result, err := h.service.ListScans(r.Context(), owner, status, limit, offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"scans":  result,
		"count":  len(result),
		"limit":  limit,
		"offset": offset,
	})
}

// GetScan handles GET /scans/{id}.
func (h *ScanHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	owner, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, http.StatusUnauthorized, err)
		return
	}

	scan, err := h.service.GetScan(r.Context(), mux.Vars(r)["id"], owner)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, scan)
}

// ListHosts handles GET /scans/{id}/hosts.
func (h *ScanHandler) ListHosts(w http.ResponseWriter, r *http.Request) {
	owner, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, http.StatusUnauthorized, err)
		return
	}

	hosts, err := h.service.ListHosts(r.Context(), mux.Vars(r)["id"], owner)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"hosts": hosts,
		"count": len(hosts),
	})
}

// GetProgress handles GET /scans/{id}/progress.
func (h *ScanHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	owner, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, http.StatusUnauthorized, err)
		return
	}

	progress, err := h.service.GetProgress(r.Context(), mux.Vars(r)["id"], owner)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, progress)
}

// CancelScan handles POST /scans/{id}/cancel. A scan that is missing,
// foreign, or already terminal yields 404.
func (h *ScanHandler) CancelScan(w http.ResponseWriter, r *http.Request) {
	owner, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, http.StatusUnauthorized, err)
		return
	}

	scanID := mux.Vars(r)["id"]
	if !h.service.Cancel(r.Context(), scanID, owner) {
		writeJSON(w, h.logger, http.StatusNotFound, map[string]interface{}{
			"cancelled": false,
			"scan_id":   scanID,
		})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"cancelled": true,
		"scan_id":   scanID,
	})
}

// DeleteScan handles DELETE /scans/{id}.
func (h *ScanHandler) DeleteScan(w http.ResponseWriter, r *http.Request) {
	owner, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, http.StatusUnauthorized, err)
		return
	}

	scanID := mux.Vars(r)["id"]
	if !h.service.Delete(r.Context(), scanID, owner) {
		writeJSON(w, h.logger, http.StatusNotFound, map[string]interface{}{
			"deleted": false,
			"scan_id": scanID,
		})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"deleted": true,
		"scan_id": scanID,
	})
}

// GetStatistics handles GET /scans/stats.
func (h *ScanHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	owner, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, http.StatusUnauthorized, err)
		return
	}

	stats, err := h.service.GetStatistics(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, stats)
}

// validateRequest is the POST /scans/validate payload.
type validateRequest struct {
	Targets string `json:"targets" validate:"required"`
}

// ValidateTargets handles POST /scans/validate. The result is reported
// with 200 whether or not the targets are acceptable; rejection is data,
// not an HTTP error.
func (h *ScanHandler) ValidateTargets(w http.ResponseWriter, r *http.Request) {
	if _, err := requester(r); err != nil {
		writeError(w, r, h.logger, http.StatusUnauthorized, err)
		return
	}

	var req validateRequest
	if err := parseJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, h.service.ValidateTargets(r.Context(), req.Targets))
}
