package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/apperrors"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/services"
)

func newIngestionMux(svc *mockIngestionService, log *mockIngestionLog) *http.ServeMux {
	mux := http.NewServeMux()
	h := NewIngestionHandler(svc, nil, zap.NewNop())
	if log != nil {
		h = NewIngestionHandler(svc, log, zap.NewNop())
	}
	h.RegisterRoutes(mux)
	return mux
}

func TestIngestionHandler_Run(t *testing.T) {
	svc := &mockIngestionService{summary: &services.RunSummary{Kind: "manual", Considered: 3, Committed: 2, Queued: 1, Entries: 5}}
	mux := newIngestionMux(svc, nil)

	body := `{"after":"2026-03-01","before":"2026-03-08T00:00:00Z","max_messages":20}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ingestion/run", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var summary services.RunSummary
	resp := decodeEnvelope(t, rec, &summary)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, summary.Committed)
	assert.Equal(t, 5, summary.Entries)

	assert.Equal(t, 20, svc.lastOpts.MaxMessages)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), svc.lastOpts.After)
	assert.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), svc.lastOpts.Before)
}

func TestIngestionHandler_Run_EmptyBody(t *testing.T) {
	svc := &mockIngestionService{summary: &services.RunSummary{}}
	mux := newIngestionMux(svc, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ingestion/run", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, services.RunOptions{}, svc.lastOpts)
}

func TestIngestionHandler_Run_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		summary    *services.RunSummary
		err        error
		wantStatus int
		wantCode   string
		wantRuns   int
	}{
		{
			name:       "busy",
			err:        apperrors.ErrRunInProgress,
			wantStatus: http.StatusConflict,
			wantCode:   "busy",
			wantRuns:   1,
		},
		{
			name:       "bad date",
			body:       `{"after":"last tuesday"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_after",
		},
		{
			name:       "negative max",
			body:       `{"max_messages":-1}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "unknown field",
			body:       `{"folder":"inbox"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "lock store failure",
			err:        errors.New("redis: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "ingestion_run_failed",
			wantRuns:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockIngestionService{summary: tt.summary, err: tt.err}
			mux := newIngestionMux(svc, nil)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ingestion/run", bytes.NewBufferString(tt.body)))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec)["error"])
			assert.Equal(t, tt.wantRuns, svc.runs)
		})
	}
}

func TestIngestionHandler_Run_SearchFailureReportsPartialSummary(t *testing.T) {
	svc := &mockIngestionService{
		summary: &services.RunSummary{Kind: "manual"},
		err:     fmt.Errorf("mailbox search failed: %w", errors.New("503 backend error")),
	}
	mux := newIngestionMux(svc, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ingestion/run", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var summary services.RunSummary
	resp := decodeEnvelope(t, rec, &summary)
	assert.False(t, resp.Success)
	assert.Equal(t, "ingestion_run_incomplete", resp.Error)
	assert.Equal(t, "manual", summary.Kind)
}

func TestIngestionHandler_LastRun(t *testing.T) {
	t.Run("none yet", func(t *testing.T) {
		mux := newIngestionMux(&mockIngestionService{}, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ingestion/last-run", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "no_runs", decodeError(t, rec)["error"])
	})

	t.Run("after a run", func(t *testing.T) {
		mux := newIngestionMux(&mockIngestionService{last: &services.RunSummary{Kind: "scheduled", Failed: 1}}, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ingestion/last-run", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var summary services.RunSummary
		decodeEnvelope(t, rec, &summary)
		assert.Equal(t, "scheduled", summary.Kind)
		assert.Equal(t, 1, summary.Failed)
	})
}

func TestIngestionHandler_Log(t *testing.T) {
	log := &mockIngestionLog{records: []*models.IngestionLogRecord{
		{MessageID: "m-1", Status: models.IngestionStatusSuccess, ItemCount: 2},
		{MessageID: "m-2", Status: models.IngestionStatusFailed, ErrorText: "no items"},
	}}
	mux := newIngestionMux(&mockIngestionService{}, log)

	tests := []struct {
		query     string
		wantCode  int
		wantLimit int
	}{
		{"", http.StatusOK, 50},
		{"?limit=5", http.StatusOK, 5},
		{"?limit=-2", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			log.lastLimit = 0
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ingestion/log"+tt.query, nil))

			require.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantLimit, log.lastLimit)
			if tt.wantCode == http.StatusOK {
				var records []models.IngestionLogRecord
				decodeEnvelope(t, rec, &records)
				assert.Len(t, records, 2)
			}
		})
	}
}

func TestIngestionHandler_LogRouteNeedsRepository(t *testing.T) {
	mux := newIngestionMux(&mockIngestionService{}, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ingestion/log", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
