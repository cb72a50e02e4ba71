package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/apperrors"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/database"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
)

// PriceHistoryRepository appends and reads quoted prices. Entries are never updated.
type PriceHistoryRepository interface {
	Append(ctx context.Context, e *models.PriceHistoryEntry) error
	// Latest returns the entry with the greatest quoted_at for the pair.
	Latest(ctx context.Context, materialID, clientID uuid.UUID) (*models.PriceHistoryEntry, error)
	CountByMessage(ctx context.Context, messageID string) (int, error)
}

type priceHistoryRepository struct {
	db *database.DB
}

// NewPriceHistoryRepository creates a new PriceHistoryRepository.
func NewPriceHistoryRepository(db *database.DB) PriceHistoryRepository {
	return &priceHistoryRepository{db: db}
}

var _ PriceHistoryRepository = (*priceHistoryRepository)(nil)

func (r *priceHistoryRepository) Append(ctx context.Context, e *models.PriceHistoryEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	query := `
		INSERT INTO price_history (
			id, material_id, client_id, rate, currency, unit, quantity,
			delivery_terms, quoted_at, provenance, source_message_id, source_thread_id
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7::numeric, $8, $9, $10, $11, $12)
		RETURNING created_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		e.ID,
		e.MaterialID,
		e.ClientID,
		decimalText(e.Rate),
		e.Currency,
		e.Unit,
		nullDecimalText(e.Quantity),
		e.DeliveryTerms,
		e.QuotedAt,
		e.Provenance,
		e.SourceMessageID,
		e.SourceThreadID,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append price history: %w", err)
	}
	return nil
}

func (r *priceHistoryRepository) Latest(ctx context.Context, materialID, clientID uuid.UUID) (*models.PriceHistoryEntry, error) {
	query := `
		SELECT id, material_id, client_id, rate::text, currency, unit, quantity::text,
		       delivery_terms, quoted_at, provenance, source_message_id, source_thread_id, created_at
		FROM price_history
		WHERE material_id = $1 AND client_id = $2
		ORDER BY quoted_at DESC, created_at DESC
		LIMIT 1`

	var (
		e        models.PriceHistoryEntry
		rate     string
		quantity *string
	)
	err := r.db.Querier(ctx).QueryRow(ctx, query, materialID, clientID).Scan(
		&e.ID, &e.MaterialID, &e.ClientID, &rate, &e.Currency, &e.Unit, &quantity,
		&e.DeliveryTerms, &e.QuotedAt, &e.Provenance, &e.SourceMessageID, &e.SourceThreadID, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest price: %w", err)
	}
	if e.Rate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("failed to parse rate %q: %w", rate, err)
	}
	if e.Quantity, err = parseNullDecimal(quantity); err != nil {
		return nil, fmt.Errorf("failed to parse quantity: %w", err)
	}
	return &e, nil
}

func (r *priceHistoryRepository) CountByMessage(ctx context.Context, messageID string) (int, error) {
	var n int
	err := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT count(*) FROM price_history WHERE source_message_id = $1`, messageID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count price history: %w", err)
	}
	return n, nil
}
