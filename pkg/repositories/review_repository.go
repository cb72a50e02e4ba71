package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/apperrors"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/database"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
)

// ReviewRepository persists the review queue.
type ReviewRepository interface {
	// Create enqueues an item. A second item for the same message returns ErrConflict.
	Create(ctx context.Context, item *models.ReviewQueueItem) error
	Get(ctx context.Context, id uuid.UUID) (*models.ReviewQueueItem, error)
	// List returns items in creation order. An empty status lists every item.
	List(ctx context.Context, status models.ReviewStatus, limit int) ([]*models.ReviewQueueItem, error)
	// Transition moves a pending item to a terminal status. It returns
	// ErrNotFound for an unknown id and ErrInvalidTransition when the item has
	// already been decided.
	Transition(ctx context.Context, id uuid.UUID, to models.ReviewStatus, reviewer, reason string, corrections *models.ReviewCorrections) (*models.ReviewQueueItem, error)
	CountByStatus(ctx context.Context, status models.ReviewStatus) (int, error)
}

type reviewRepository struct {
	db *database.DB
}

// NewReviewRepository creates a new ReviewRepository.
func NewReviewRepository(db *database.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

var _ ReviewRepository = (*reviewRepository)(nil)

const reviewColumns = `id, message_id, thread_id, subject, payload, confidence, method, status,
	reviewed_by, corrections, reason, reviewed_at, created_at`

func (r *reviewRepository) Create(ctx context.Context, item *models.ReviewQueueItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.Status = models.ReviewPending

	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal review payload: %w", err)
	}

	query := `
		INSERT INTO review_queue (id, message_id, thread_id, subject, payload, confidence, method, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING created_at`

	err = r.db.Querier(ctx).QueryRow(ctx, query,
		item.ID, item.MessageID, item.ThreadID, item.Subject, payload,
		item.Confidence, item.Method, item.Status,
	).Scan(&item.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
		return apperrors.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create review item: %w", err)
	}
	return nil
}

func (r *reviewRepository) Get(ctx context.Context, id uuid.UUID) (*models.ReviewQueueItem, error) {
	row := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT `+reviewColumns+` FROM review_queue WHERE id = $1`, id)
	item, err := scanReviewItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review item: %w", err)
	}
	return item, nil
}

func (r *reviewRepository) List(ctx context.Context, status models.ReviewStatus, limit int) ([]*models.ReviewQueueItem, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM review_queue
		WHERE ($1::text = '' OR status = $1::text)
		ORDER BY created_at, id
		LIMIT $2`

	rows, err := r.db.Querier(ctx).Query(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list review items: %w", err)
	}
	defer rows.Close()

	var out []*models.ReviewQueueItem
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *reviewRepository) Transition(ctx context.Context, id uuid.UUID, to models.ReviewStatus, reviewer, reason string, corrections *models.ReviewCorrections) (*models.ReviewQueueItem, error) {
	if !to.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot move to %q", apperrors.ErrInvalidTransition, to)
	}

	var correctionsJSON []byte
	if corrections != nil {
		b, err := json.Marshal(corrections)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal corrections: %w", err)
		}
		correctionsJSON = b
	}

	query := `
		UPDATE review_queue
		SET status = $2, reviewed_by = $3, reason = $4, corrections = $5, reviewed_at = $6
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + reviewColumns

	row := r.db.Querier(ctx).QueryRow(ctx, query,
		id, to, nullString(reviewer), reason, correctionsJSON, time.Now())
	item, err := scanReviewItem(row)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update review item: %w", err)
	}

	// Nothing updated: tell a missing item apart from one already decided.
	existing, getErr := r.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: item is %s", apperrors.ErrInvalidTransition, existing.Status)
}

func (r *reviewRepository) CountByStatus(ctx context.Context, status models.ReviewStatus) (int, error) {
	var n int
	err := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT count(*) FROM review_queue WHERE status = $1`, status,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count review items: %w", err)
	}
	return n, nil
}

func scanReviewItem(row pgx.Row) (*models.ReviewQueueItem, error) {
	var (
		item        models.ReviewQueueItem
		payload     []byte
		corrections []byte
	)
	err := row.Scan(
		&item.ID, &item.MessageID, &item.ThreadID, &item.Subject, &payload,
		&item.Confidence, &item.Method, &item.Status, &item.ReviewedBy,
		&corrections, &item.Reason, &item.ReviewedAt, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &item.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal review payload: %w", err)
	}
	if len(corrections) > 0 {
		var c models.ReviewCorrections
		if err := json.Unmarshal(corrections, &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal corrections: %w", err)
		}
		item.Corrections = &c
	}
	return &item, nil
}
