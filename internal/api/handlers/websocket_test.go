package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scanerrors "github.com/redforge/riskscan/internal/errors"
	"github.com/redforge/riskscan/internal/scans"
)

// progressSequence replays a fixed series of progress snapshots, holding
// the last one once exhausted.
type progressSequence struct {
	stubService

	mu    sync.Mutex
	steps []scans.ProgressInfo
	calls int
}

func (p *progressSequence) GetProgress(context.Context, string, string) (*scans.ProgressInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.calls
	if idx >= len(p.steps) {
		idx = len(p.steps) - 1
	}
	p.calls++
	step := p.steps[idx]
	return &step, nil
}

func newWatchServer(t *testing.T, service ScanService) *httptest.Server {
	t.Helper()

	router := mux.NewRouter()
	handler := NewWatchHandler(service)
	handler.interval = 10 * time.Millisecond
	handler.Register(router)

	srv := httptest.NewServer(asPrincipal("alice", router))
	t.Cleanup(srv.Close)
	return srv
}

func TestWatchStreamsUntilTerminal(t *testing.T) {
	service := &progressSequence{
		steps: []scans.ProgressInfo{
			{ScanID: "scan-1", Status: scans.StatusRunning, Progress: 40},
			{ScanID: "scan-1", Status: scans.StatusRunning, Progress: 75},
			{ScanID: "scan-1", Status: scans.StatusCompleted, Progress: 100},
		},
	}
	srv := newWatchServer(t, service)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/scans/scan-1/watch"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var frames []scans.ProgressInfo
	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame scans.ProgressInfo
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}
		frames = append(frames, frame)
		if frame.Status.Terminal() {
			break
		}
	}

	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	assert.Equal(t, scans.StatusCompleted, last.Status)
	assert.InDelta(t, 100.0, last.Progress, 0.001)

	// The pre-upgrade ownership probe consumes one call before streaming.
	assert.GreaterOrEqual(t, len(frames), 2)
}

func TestWatchRejectsUnknownScanBeforeUpgrade(t *testing.T) {
	service := &stubService{scanErr: scanerrors.ErrScanNotFound("missing")}
	srv := newWatchServer(t, service)

	resp, err := http.Get(srv.URL + "/scans/missing/watch")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
