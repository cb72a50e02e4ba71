package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/apperrors"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/database"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
)

// AliasRepository provides data access for entity aliases.
type AliasRepository interface {
	// UpsertAlias inserts or retargets (entity type, alias text). Last write wins.
	UpsertAlias(ctx context.Context, alias *models.Alias) error
	GetAlias(ctx context.Context, kind models.EntityKind, aliasText string) (*models.Alias, error)
	ListAliases(ctx context.Context) ([]*models.Alias, error)
}

type aliasRepository struct {
	db *database.DB
}

// NewAliasRepository creates a new AliasRepository.
func NewAliasRepository(db *database.DB) AliasRepository {
	return &aliasRepository{db: db}
}

var _ AliasRepository = (*aliasRepository)(nil)

func (r *aliasRepository) UpsertAlias(ctx context.Context, a *models.Alias) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now()

	query := `
		INSERT INTO entity_aliases (id, entity_type, alias_text, entity_id, origin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (entity_type, alias_text) DO UPDATE
		SET entity_id = EXCLUDED.entity_id,
		    origin = EXCLUDED.origin,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		a.ID, a.EntityType, a.AliasText, a.EntityID, a.Origin, now,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert alias: %w", err)
	}
	return nil
}

func (r *aliasRepository) GetAlias(ctx context.Context, kind models.EntityKind, aliasText string) (*models.Alias, error) {
	query := `
		SELECT id, entity_type, alias_text, entity_id, origin, created_at, updated_at
		FROM entity_aliases
		WHERE entity_type = $1 AND alias_text = $2`

	a, err := scanAlias(r.db.Querier(ctx).QueryRow(ctx, query, kind, aliasText))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get alias: %w", err)
	}
	return a, nil
}

func (r *aliasRepository) ListAliases(ctx context.Context) ([]*models.Alias, error) {
	query := `
		SELECT id, entity_type, alias_text, entity_id, origin, created_at, updated_at
		FROM entity_aliases
		ORDER BY entity_type, alias_text`

	rows, err := r.db.Querier(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}
	defer rows.Close()

	var out []*models.Alias
	for rows.Next() {
		a, err := scanAlias(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAlias(row pgx.Row) (*models.Alias, error) {
	var a models.Alias
	if err := row.Scan(&a.ID, &a.EntityType, &a.AliasText, &a.EntityID, &a.Origin, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
