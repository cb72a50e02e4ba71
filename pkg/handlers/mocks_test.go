package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/email"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/resolver"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/services"
)

// ============================================================================
// Mock Implementations
// ============================================================================

type mockIngestionService struct {
	summary  *services.RunSummary
	err      error
	last     *services.RunSummary
	lastOpts services.RunOptions
	runs     int
}

func (m *mockIngestionService) Run(ctx context.Context, opts services.RunOptions) (*services.RunSummary, error) {
	m.runs++
	m.lastOpts = opts
	return m.summary, m.err
}

func (m *mockIngestionService) Backfill(ctx context.Context, from, to time.Time) (*services.RunSummary, error) {
	return nil, nil
}

func (m *mockIngestionService) ProcessMessage(ctx context.Context, msg *email.Message) *services.MessageOutcome {
	return nil
}

func (m *mockIngestionService) RunScheduler(ctx context.Context, interval time.Duration) {}

func (m *mockIngestionService) LastRun() *services.RunSummary {
	return m.last
}

type mockIngestionLog struct {
	records   []*models.IngestionLogRecord
	lastLimit int
}

func (m *mockIngestionLog) Exists(ctx context.Context, messageID string) (bool, error) {
	return false, nil
}

func (m *mockIngestionLog) Record(ctx context.Context, rec *models.IngestionLogRecord) error {
	return nil
}

func (m *mockIngestionLog) ListRecent(ctx context.Context, limit int) ([]*models.IngestionLogRecord, error) {
	m.lastLimit = limit
	return m.records, nil
}

type mockReviewService struct {
	items map[uuid.UUID]*models.ReviewQueueItem
	err   error

	listStatus    models.ReviewStatus
	listLimit     int
	lastReviewer  string
	lastReason    string
	lastCorrected *models.ReviewCorrections
}

func newMockReviewService(items ...*models.ReviewQueueItem) *mockReviewService {
	m := &mockReviewService{items: make(map[uuid.UUID]*models.ReviewQueueItem)}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

func (m *mockReviewService) Enqueue(ctx context.Context, source models.SourceMessage, ext *models.ExtractionResult, preview *models.ResolutionPreview) (*models.ReviewQueueItem, error) {
	return nil, nil
}

func (m *mockReviewService) List(ctx context.Context, status models.ReviewStatus, limit int) ([]*models.ReviewQueueItem, error) {
	m.listStatus, m.listLimit = status, limit
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.ReviewQueueItem
	for _, it := range m.items {
		out = append(out, it)
	}
	return out, nil
}

func (m *mockReviewService) Get(ctx context.Context, id uuid.UUID) (*models.ReviewQueueItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.items[id], nil
}

func (m *mockReviewService) Approve(ctx context.Context, id uuid.UUID, reviewer string) (*services.ReviewOutcome, error) {
	m.lastReviewer = reviewer
	if m.err != nil {
		return nil, m.err
	}
	item := m.items[id]
	item.Status = models.ReviewApproved
	return &services.ReviewOutcome{Item: item, Entries: 2}, nil
}

func (m *mockReviewService) Reject(ctx context.Context, id uuid.UUID, reviewer, reason string) (*models.ReviewQueueItem, error) {
	m.lastReviewer, m.lastReason = reviewer, reason
	if m.err != nil {
		return nil, m.err
	}
	item := m.items[id]
	item.Status = models.ReviewRejected
	return item, nil
}

func (m *mockReviewService) Correct(ctx context.Context, id uuid.UUID, reviewer string, corrections models.ReviewCorrections) (*services.ReviewOutcome, error) {
	m.lastReviewer = reviewer
	m.lastCorrected = &corrections
	if m.err != nil {
		return nil, m.err
	}
	item := m.items[id]
	item.Status = models.ReviewCorrected
	return &services.ReviewOutcome{Item: item, Entries: 1, Aliases: 1}, nil
}

type mockTelemetryService struct {
	stats     *models.TelemetryStats
	patterns  []models.FailurePattern
	err       error
	lastSince time.Time
	lastLimit int
}

func (m *mockTelemetryService) RecordParse(ctx context.Context, rec *models.ParsingHistoryRecord) error {
	return nil
}

func (m *mockTelemetryService) RecordFailure(ctx context.Context, rec *models.ParsingFailureRecord) error {
	return nil
}

func (m *mockTelemetryService) Stats(ctx context.Context, since time.Time) (*models.TelemetryStats, error) {
	m.lastSince = since
	return m.stats, m.err
}

func (m *mockTelemetryService) FailurePatterns(ctx context.Context, limit int) ([]models.FailurePattern, error) {
	m.lastLimit = limit
	return m.patterns, m.err
}

type mockResolver struct {
	reloadErr   error
	reloads     int
	material    models.MatchResult
	client      models.MatchResult
	lastText    string
	lastClientQ resolver.ClientQuery
}

func (m *mockResolver) Reload(ctx context.Context) error {
	m.reloads++
	return m.reloadErr
}

func (m *mockResolver) Size() (int, int, int) {
	return 12, 4, 3
}

func (m *mockResolver) MatchMaterial(text string) models.MatchResult {
	m.lastText = text
	return m.material
}

func (m *mockResolver) MatchClient(q resolver.ClientQuery) models.MatchResult {
	m.lastClientQ = q
	return m.client
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}

// ============================================================================
// Helpers
// ============================================================================

// decodeEnvelope decodes an ApiResponse and unmarshals its data into v.
func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, v any) ApiResponse {
	t.Helper()
	var raw struct {
		ApiResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	if v != nil {
		require.NoError(t, json.Unmarshal(raw.Data, v))
	}
	return raw.ApiResponse
}

// decodeError decodes an ErrorResponse body.
func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}
