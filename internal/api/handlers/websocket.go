package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/redforge/riskscan/internal/logging"
)

const (
	progressInterval = 2 * time.Second
	writeWait        = 10 * time.Second
)

// WatchHandler streams live scan progress over a websocket.
type WatchHandler struct {
	service  ScanService
	upgrader websocket.Upgrader
	logger   *logging.Logger

	// interval is overridable for tests
	interval time.Duration
}

// NewWatchHandler creates the progress streaming handler.
func NewWatchHandler(service ScanService) *WatchHandler {
	return &WatchHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:   logging.Default().WithComponent("api.watch"),
		interval: progressInterval,
	}
}

// Register wires the watch route onto the router.
func (h *WatchHandler) Register(router *mux.Router) {
	router.HandleFunc("/scans/{id}/watch", h.Watch).Methods(http.MethodGet)
}

// Watch handles GET /scans/{id}/watch. Progress frames are sent
// immediately and then on every tick until the scan reaches a terminal
// status or the client disconnects.
func (h *WatchHandler) Watch(w http.ResponseWriter, r *http.Request) {
	owner, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, http.StatusUnauthorized, err)
		return
	}

	scanID := mux.Vars(r)["id"]

	// Reject unknown or foreign scans before upgrading.
	if _, err := h.service.GetProgress(r.Context(), scanID, owner); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "scan_id", scanID, "error", err)
		return
	}
	defer conn.Close()

	// Drain control frames so close messages from the client surface as
	// read errors.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		progress, err := h.service.GetProgress(r.Context(), scanID, owner)
		if err != nil {
			h.logger.Warn("progress lookup failed mid-stream", "scan_id", scanID, "error", err)
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(progress); err != nil {
			return
		}

		if progress.Status.Terminal() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(progress.Status)),
				time.Now().Add(writeWait))
			return
		}

		select {
		case <-ticker.C:
		case <-clientGone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
