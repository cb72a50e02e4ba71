package tools

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/email"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/services"
)

type mockReviewService struct {
	items map[uuid.UUID]*models.ReviewQueueItem

	listStatus models.ReviewStatus
	listLimit  int

	approveErr    error
	rejectErr     error
	correctErr    error
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
	var out []*models.ReviewQueueItem
	for _, it := range m.items {
		if status == "" || it.Status == status {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockReviewService) Get(ctx context.Context, id uuid.UUID) (*models.ReviewQueueItem, error) {
	return m.items[id], nil
}

func (m *mockReviewService) Approve(ctx context.Context, id uuid.UUID, reviewer string) (*services.ReviewOutcome, error) {
	m.lastReviewer = reviewer
	if m.approveErr != nil {
		return nil, m.approveErr
	}
	item := m.items[id]
	item.Status = models.ReviewApproved
	return &services.ReviewOutcome{Item: item, Entries: len(item.Payload.Extraction.Items)}, nil
}

func (m *mockReviewService) Reject(ctx context.Context, id uuid.UUID, reviewer, reason string) (*models.ReviewQueueItem, error) {
	m.lastReviewer, m.lastReason = reviewer, reason
	if m.rejectErr != nil {
		return nil, m.rejectErr
	}
	item := m.items[id]
	item.Status = models.ReviewRejected
	return item, nil
}

func (m *mockReviewService) Correct(ctx context.Context, id uuid.UUID, reviewer string, corrections models.ReviewCorrections) (*services.ReviewOutcome, error) {
	m.lastReviewer = reviewer
	m.lastCorrected = &corrections
	if m.correctErr != nil {
		return nil, m.correctErr
	}
	item := m.items[id]
	item.Status = models.ReviewCorrected
	return &services.ReviewOutcome{Item: item, Entries: 1, Aliases: 1}, nil
}

type mockTelemetryService struct {
	stats        *models.TelemetryStats
	patterns     []models.FailurePattern
	statsSince   time.Time
	patternLimit int
	err          error
}

func (m *mockTelemetryService) RecordParse(ctx context.Context, rec *models.ParsingHistoryRecord) error {
	return nil
}

func (m *mockTelemetryService) RecordFailure(ctx context.Context, rec *models.ParsingFailureRecord) error {
	return nil
}

func (m *mockTelemetryService) Stats(ctx context.Context, since time.Time) (*models.TelemetryStats, error) {
	m.statsSince = since
	if m.err != nil {
		return nil, m.err
	}
	return m.stats, nil
}

func (m *mockTelemetryService) FailurePatterns(ctx context.Context, limit int) ([]models.FailurePattern, error) {
	m.patternLimit = limit
	return m.patterns, nil
}

type mockIngestionService struct {
	last *services.RunSummary
}

func (m *mockIngestionService) Run(ctx context.Context, opts services.RunOptions) (*services.RunSummary, error) {
	return m.last, nil
}

func (m *mockIngestionService) Backfill(ctx context.Context, from, to time.Time) (*services.RunSummary, error) {
	return m.last, nil
}

func (m *mockIngestionService) ProcessMessage(ctx context.Context, msg *email.Message) *services.MessageOutcome {
	return nil
}

func (m *mockIngestionService) RunScheduler(ctx context.Context, interval time.Duration) {}

func (m *mockIngestionService) LastRun() *services.RunSummary {
	return m.last
}
