package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/logging"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/repositories"
)

// DefaultStatsWindow is the reporting window when no start time is given.
const DefaultStatsWindow = 7 * 24 * time.Hour

// TelemetryService records parse outcomes and reports on them.
type TelemetryService interface {
	RecordParse(ctx context.Context, rec *models.ParsingHistoryRecord) error
	// RecordFailure scrubs credentials from the error text and bounds its length.
	RecordFailure(ctx context.Context, rec *models.ParsingFailureRecord) error
	// Stats summarises parse history since the given time. A zero time means
	// the last DefaultStatsWindow.
	Stats(ctx context.Context, since time.Time) (*models.TelemetryStats, error)
	FailurePatterns(ctx context.Context, limit int) ([]models.FailurePattern, error)
}

type telemetryService struct {
	repo    repositories.TelemetryRepository
	reviews repositories.ReviewRepository
	logger  *zap.Logger
}

// NewTelemetryService creates a new TelemetryService.
func NewTelemetryService(repo repositories.TelemetryRepository, reviews repositories.ReviewRepository, logger *zap.Logger) TelemetryService {
	return &telemetryService{
		repo:    repo,
		reviews: reviews,
		logger:  logger.Named("telemetry-service"),
	}
}

var _ TelemetryService = (*telemetryService)(nil)

func (s *telemetryService) RecordParse(ctx context.Context, rec *models.ParsingHistoryRecord) error {
	rec.Confidence = models.Clamp(rec.Confidence, 0, 1)
	return s.repo.RecordParse(ctx, rec)
}

func (s *telemetryService) RecordFailure(ctx context.Context, rec *models.ParsingFailureRecord) error {
	rec.ErrorText = logging.TruncateString(logging.SanitizeText(rec.ErrorText), logging.MaxErrorTextLength)
	if rec.Method == "" {
		rec.Method = models.MethodNone
	}
	return s.repo.RecordFailure(ctx, rec)
}

func (s *telemetryService) Stats(ctx context.Context, since time.Time) (*models.TelemetryStats, error) {
	if since.IsZero() {
		since = time.Now().Add(-DefaultStatsWindow)
	}

	methods, err := s.repo.MethodStats(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load method stats: %w", err)
	}
	failures, err := s.repo.CountFailures(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count failures: %w", err)
	}
	pending, err := s.reviews.CountByStatus(ctx, models.ReviewPending)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending reviews: %w", err)
	}

	stats := &models.TelemetryStats{
		Since:          since,
		Methods:        methods,
		Failures:       failures,
		PendingReviews: pending,
	}
	if stats.Methods == nil {
		stats.Methods = []models.MethodStats{}
	}
	for _, m := range methods {
		stats.TotalCostUSD += m.CostUSD
	}
	return stats, nil
}

func (s *telemetryService) FailurePatterns(ctx context.Context, limit int) ([]models.FailurePattern, error) {
	if limit <= 0 {
		limit = 20
	}
	patterns, err := s.repo.FailurePatterns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load failure patterns: %w", err)
	}
	if patterns == nil {
		patterns = []models.FailurePattern{}
	}
	return patterns, nil
}
