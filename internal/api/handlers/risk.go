package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/redforge/riskscan/internal/logging"
	"github.com/redforge/riskscan/internal/risk"
)

// RiskHandler serves ad-hoc risk assessments that are not tied to a
// stored scan.
type RiskHandler struct {
	logger *logging.Logger
}

// NewRiskHandler creates the risk assessment handler.
func NewRiskHandler() *RiskHandler {
	return &RiskHandler{logger: logging.Default().WithComponent("api.risk")}
}

// Register wires the risk routes onto the router.
func (h *RiskHandler) Register(router *mux.Router) {
	router.HandleFunc("/risk/assess", h.Assess).Methods(http.MethodPost)
}

// assessRequest is the POST /risk/assess payload.
type assessRequest struct {
	Asset    risk.AssetContext `json:"asset"`
	Findings []risk.Finding    `json:"findings"`
}

// Assess handles POST /risk/assess.
func (h *RiskHandler) Assess(w http.ResponseWriter, r *http.Request) {
	if _, err := requester(r); err != nil {
		writeError(w, r, h.logger, http.StatusUnauthorized, err)
		return
	}

	var req assessRequest
	if err := parseJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, risk.AssessAsset(req.Asset, req.Findings))
}
