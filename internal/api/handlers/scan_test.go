package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scanerrors "github.com/redforge/riskscan/internal/errors"
	"github.com/redforge/riskscan/internal/identity"
	"github.com/redforge/riskscan/internal/scanning"
	"github.com/redforge/riskscan/internal/scans"
)

// stubService records calls and serves canned responses.
type stubService struct {
	createdOwner string
	createdReq   scans.CreateRequest
	createErr    error

	scan     *scans.Scan
	scanErr  error
	list     []*scans.Scan
	hosts    []scanning.HostResult
	progress *scans.ProgressInfo
	stats    *scans.Statistics

	cancelResult bool
	deleteResult bool
	validation   scanning.TargetValidationResult

	listStatus string
	listLimit  int
	listOffset int
}

func (s *stubService) Create(_ context.Context, owner string, req scans.CreateRequest) (*scans.Scan, error) {
	s.createdOwner = owner
	s.createdReq = req
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.scan, nil
}

func (s *stubService) GetScan(context.Context, string, string) (*scans.Scan, error) {
	return s.scan, s.scanErr
}

func (s *stubService) ListScans(_ context.Context, _, status string, limit, offset int) ([]*scans.Scan, error) {
	s.listStatus, s.listLimit, s.listOffset = status, limit, offset
	return s.list, nil
}

func (s *stubService) ListHosts(context.Context, string, string) ([]scanning.HostResult, error) {
	return s.hosts, s.scanErr
}

func (s *stubService) GetProgress(context.Context, string, string) (*scans.ProgressInfo, error) {
	return s.progress, s.scanErr
}

func (s *stubService) Cancel(context.Context, string, string) bool { return s.cancelResult }
func (s *stubService) Delete(context.Context, string, string) bool { return s.deleteResult }

func (s *stubService) GetStatistics(context.Context, string) (*scans.Statistics, error) {
	return s.stats, nil
}

func (s *stubService) ValidateTargets(context.Context, string) scanning.TargetValidationResult {
	return s.validation
}

// asPrincipal injects an authenticated principal, standing in for the
// authentication middleware.
func asPrincipal(id string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := identity.WithPrincipal(r.Context(), &identity.Principal{ID: id, Method: "test"})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newScanRouter(service ScanService, principal string) http.Handler {
	router := mux.NewRouter()
	NewScanHandler(service).Register(router)
	if principal == "" {
		return router
	}
	return asPrincipal(principal, router)
}

func TestCreateScan(t *testing.T) {
	service := &stubService{
		scan: &scans.Scan{ID: "scan-1", Owner: "alice", Status: scans.StatusPending},
	}
	router := newScanRouter(service, "alice")

	body := bytes.NewBufferString(`{"targets":"192.168.1.0/24","profile":"quick"}`)
	req := httptest.NewRequest(http.MethodPost, "/scans", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "alice", service.createdOwner)
	assert.Equal(t, "192.168.1.0/24", service.createdReq.Targets)

	var scan scans.Scan
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&scan))
	assert.Equal(t, "scan-1", scan.ID)
}

func TestCreateScanRejectsBadPayloads(t *testing.T) {
	service := &stubService{}
	router := newScanRouter(service, "alice")

	cases := map[string]string{
		"malformed json":  `{"targets":`,
		"missing targets": `{"profile":"quick"}`,
		"unknown field":   `{"targets":"10.0.0.1","profile":"quick","bogus":true}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/scans", bytes.NewBufferString(payload))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateScanMapsValidationErrors(t *testing.T) {
	service := &stubService{
		createErr: scanerrors.NewFieldValidationError("target contains forbidden characters", "targets"),
	}
	router := newScanRouter(service, "alice")

	body := bytes.NewBufferString(`{"targets":"10.0.0.1; reboot","profile":"quick"}`)
	req := httptest.NewRequest(http.MethodPost, "/scans", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Contains(t, resp.Error, "forbidden characters")
}

func TestRequestsWithoutPrincipalAreRejected(t *testing.T) {
	router := newScanRouter(&stubService{}, "")

	req := httptest.NewRequest(http.MethodGet, "/scans", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListScansPassesQueryParameters(t *testing.T) {
	service := &stubService{
		list: []*scans.Scan{{ID: "a"}, {ID: "b"}},
	}
	router := newScanRouter(service, "alice")

	req := httptest.NewRequest(http.MethodGet, "/scans?status=completed&limit=5&offset=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", service.listStatus)
	assert.Equal(t, 5, service.listLimit)
	assert.Equal(t, 10, service.listOffset)

	var payload struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	assert.Equal(t, 2, payload.Count)
}

func TestListScansCapsLimit(t *testing.T) {
	service := &stubService{}
	router := newScanRouter(service, "alice")

	req := httptest.NewRequest(http.MethodGet, "/scans?limit=5000", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, listMaxLimit, service.listLimit)
}

func TestGetScanNotFound(t *testing.T) {
	service := &stubService{scanErr: scanerrors.ErrScanNotFound("missing")}
	router := newScanRouter(service, "alice")

	req := httptest.NewRequest(http.MethodGet, "/scans/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelScan(t *testing.T) {
	t.Run("cancellable scan yields 200", func(t *testing.T) {
		router := newScanRouter(&stubService{cancelResult: true}, "alice")
		req := httptest.NewRequest(http.MethodPost, "/scans/scan-1/cancel", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var payload struct {
			Cancelled bool `json:"cancelled"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
		assert.True(t, payload.Cancelled)
	})

	t.Run("terminal or missing scan yields 404", func(t *testing.T) {
		router := newScanRouter(&stubService{cancelResult: false}, "alice")
		req := httptest.NewRequest(http.MethodPost, "/scans/scan-1/cancel", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDeleteScan(t *testing.T) {
	router := newScanRouter(&stubService{deleteResult: true}, "alice")
	req := httptest.NewRequest(http.MethodDelete, "/scans/scan-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	router = newScanRouter(&stubService{deleteResult: false}, "alice")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/scans/scan-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStatistics(t *testing.T) {
	now := time.Now().UTC()
	service := &stubService{
		stats: &scans.Statistics{TotalScans: 5, AverageRiskScore: 7.5, LastScanAt: &now},
	}
	router := newScanRouter(service, "alice")

	req := httptest.NewRequest(http.MethodGet, "/scans/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var stats scans.Statistics
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 5, stats.TotalScans)
	assert.InDelta(t, 7.5, stats.AverageRiskScore, 0.001)
}

func TestValidateTargets(t *testing.T) {
	service := &stubService{
		validation: scanning.TargetValidationResult{
			Target:  "10.0.0.0/8",
			IsValid: false,
			Message: "network range too large",
		},
	}
	router := newScanRouter(service, "alice")

	body := bytes.NewBufferString(`{"targets":"10.0.0.0/8"}`)
	req := httptest.NewRequest(http.MethodPost, "/scans/validate", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Rejection is reported as data, not as an HTTP error.
	assert.Equal(t, http.StatusOK, rec.Code)
	var result scanning.TargetValidationResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Message, "too large")
}
