package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/redforge/riskscan/internal/logging"
	"github.com/redforge/riskscan/internal/schedule"
)

// ScheduleHandler serves the /schedules routes.
type ScheduleHandler struct {
	scheduler *schedule.Scheduler
	logger    *logging.Logger
}

// NewScheduleHandler creates the schedule handler.
func NewScheduleHandler(scheduler *schedule.Scheduler) *ScheduleHandler {
	return &ScheduleHandler{
		scheduler: scheduler,
		logger:    logging.Default().WithComponent("api.schedules"),
	}
}

// Register wires the schedule routes onto the router.
func (h *ScheduleHandler) Register(router *mux.Router) {
	router.HandleFunc("/schedules", h.CreateSchedule).Methods(http.MethodPost)
	router.HandleFunc("/schedules", h.ListSchedules).Methods(http.MethodGet)
	router.HandleFunc("/schedules/{id}", h.DeleteSchedule).Methods(http.MethodDelete)
	router.HandleFunc("/schedules/{id}/enabled", h.SetEnabled).Methods(http.MethodPut)
}

// createScheduleRequest is the POST /schedules payload.
type createScheduleRequest struct {
	Name           string `json:"name" validate:"required"`
	CronExpression string `json:"cron_expression" validate:"required"`
	Targets        string `json:"targets" validate:"required"`
	Profile        string `json:"profile" validate:"required"`
}

// CreateSchedule handles POST /schedules.
func (h *ScheduleHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	owner, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, http.StatusUnauthorized, err)
		return
	}

	var req createScheduleRequest
	if err := parseJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, http.StatusBadRequest, err)
		return
	}

	sched, err := h.scheduler.AddSchedule(r.Context(), owner, req.Name, req.CronExpression, req.Targets, req.Profile)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, sched)
}

// ListSchedules handles GET /schedules.
func (h *ScheduleHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	owner, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, http.StatusUnauthorized, err)
		return
	}

	schedules, err := h.scheduler.ListSchedules(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"schedules": schedules,
		"count":     len(schedules),
	})
}

// DeleteSchedule handles DELETE /schedules/{id}.
func (h *ScheduleHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	owner, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, http.StatusUnauthorized, err)
		return
	}

	scheduleID := mux.Vars(r)["id"]
	if err := h.scheduler.RemoveSchedule(r.Context(), scheduleID, owner); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"deleted":     true,
		"schedule_id": scheduleID,
	})
}

// enabledRequest is the PUT /schedules/{id}/enabled payload.
type enabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// SetEnabled handles PUT /schedules/{id}/enabled.
func (h *ScheduleHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	owner, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, http.StatusUnauthorized, err)
		return
	}

	var req enabledRequest
	if err := parseJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, http.StatusBadRequest, err)
		return
	}

	scheduleID := mux.Vars(r)["id"]
	if err := h.scheduler.SetEnabled(r.Context(), scheduleID, owner, *req.Enabled); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"schedule_id": scheduleID,
		"enabled":     *req.Enabled,
	})
}
