package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/database"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
)

// IngestionLogRepository is the per-message dedup ledger.
type IngestionLogRepository interface {
	Exists(ctx context.Context, messageID string) (bool, error)
	// Record writes the outcome for a message. A second write for the same
	// message id replaces the first.
	Record(ctx context.Context, rec *models.IngestionLogRecord) error
	ListRecent(ctx context.Context, limit int) ([]*models.IngestionLogRecord, error)
}

type ingestionLogRepository struct {
	db *database.DB
}

// NewIngestionLogRepository creates a new IngestionLogRepository.
func NewIngestionLogRepository(db *database.DB) IngestionLogRepository {
	return &ingestionLogRepository{db: db}
}

var _ IngestionLogRepository = (*ingestionLogRepository)(nil)

func (r *ingestionLogRepository) Exists(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ingestion_log WHERE message_id = $1)`, messageID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check ingestion log: %w", err)
	}
	return exists, nil
}

func (r *ingestionLogRepository) Record(ctx context.Context, rec *models.IngestionLogRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now()
	}

	query := `
		INSERT INTO ingestion_log (id, message_id, thread_id, item_count, status, error_text, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (message_id) DO UPDATE
		SET item_count = EXCLUDED.item_count,
		    status = EXCLUDED.status,
		    error_text = EXCLUDED.error_text,
		    processed_at = EXCLUDED.processed_at
		RETURNING id`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		rec.ID, rec.MessageID, rec.ThreadID, rec.ItemCount, rec.Status, rec.ErrorText, rec.ProcessedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to record ingestion log: %w", err)
	}
	return nil
}

func (r *ingestionLogRepository) ListRecent(ctx context.Context, limit int) ([]*models.IngestionLogRecord, error) {
	query := `
		SELECT id, message_id, thread_id, item_count, status, error_text, processed_at
		FROM ingestion_log
		ORDER BY processed_at DESC
		LIMIT $1`

	rows, err := r.db.Querier(ctx).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingestion log: %w", err)
	}
	defer rows.Close()

	var out []*models.IngestionLogRecord
	for rows.Next() {
		var rec models.IngestionLogRecord
		if err := rows.Scan(&rec.ID, &rec.MessageID, &rec.ThreadID, &rec.ItemCount, &rec.Status, &rec.ErrorText, &rec.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ingestion log: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
