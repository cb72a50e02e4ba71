package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/database"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
)

// TelemetryRepository stores parse outcomes and failures for tuning.
type TelemetryRepository interface {
	RecordParse(ctx context.Context, rec *models.ParsingHistoryRecord) error
	RecordFailure(ctx context.Context, rec *models.ParsingFailureRecord) error
	MethodStats(ctx context.Context, since time.Time) ([]models.MethodStats, error)
	CountFailures(ctx context.Context, since time.Time) (int, error)
	// FailurePatterns groups failures by stage and error text, most frequent first.
	FailurePatterns(ctx context.Context, limit int) ([]models.FailurePattern, error)
}

type telemetryRepository struct {
	db *database.DB
}

// NewTelemetryRepository creates a new TelemetryRepository.
func NewTelemetryRepository(db *database.DB) TelemetryRepository {
	return &telemetryRepository{db: db}
}

var _ TelemetryRepository = (*telemetryRepository)(nil)

func (r *telemetryRepository) RecordParse(ctx context.Context, rec *models.ParsingHistoryRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := `
		INSERT INTO parsing_history (
			id, message_id, method, confidence, item_count, cost_usd,
			prompt_tokens, completion_tokens, latency_ms
		) VALUES ($1, $2, $3, $4, $5, $6::float8, $7, $8, $9)
		RETURNING created_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		rec.ID, rec.MessageID, rec.Method, rec.Confidence, rec.ItemCount, rec.CostUSD,
		rec.PromptTokens, rec.CompletionTokens, rec.LatencyMS,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record parsing history: %w", err)
	}
	return nil
}

func (r *telemetryRepository) RecordFailure(ctx context.Context, rec *models.ParsingFailureRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := `
		INSERT INTO parsing_failures (id, message_id, method, stage, error_text, subject)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		rec.ID, rec.MessageID, rec.Method, rec.Stage, rec.ErrorText, rec.Subject,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record parsing failure: %w", err)
	}
	return nil
}

func (r *telemetryRepository) MethodStats(ctx context.Context, since time.Time) ([]models.MethodStats, error) {
	query := `
		SELECT method, count(*), coalesce(avg(confidence), 0), coalesce(sum(item_count), 0),
		       coalesce(sum(cost_usd), 0)::float8
		FROM parsing_history
		WHERE created_at >= $1
		GROUP BY method
		ORDER BY method`

	rows, err := r.db.Querier(ctx).Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query method stats: %w", err)
	}
	defer rows.Close()

	var out []models.MethodStats
	for rows.Next() {
		var s models.MethodStats
		if err := rows.Scan(&s.Method, &s.Count, &s.MeanConfidence, &s.Items, &s.CostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan method stats: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *telemetryRepository) CountFailures(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT count(*) FROM parsing_failures WHERE created_at >= $1`, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count failures: %w", err)
	}
	return n, nil
}

func (r *telemetryRepository) FailurePatterns(ctx context.Context, limit int) ([]models.FailurePattern, error) {
	query := `
		SELECT stage, error_text, count(*) AS n, max(created_at)
		FROM parsing_failures
		GROUP BY stage, error_text
		ORDER BY n DESC, max(created_at) DESC
		LIMIT $1`

	rows, err := r.db.Querier(ctx).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query failure patterns: %w", err)
	}
	defer rows.Close()

	var out []models.FailurePattern
	for rows.Next() {
		var p models.FailurePattern
		if err := rows.Scan(&p.Stage, &p.ErrorText, &p.Count, &p.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan failure pattern: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
