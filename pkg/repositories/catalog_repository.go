package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/apperrors"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/database"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
)

// CatalogRepository provides data access for materials and clients.
// Create methods return apperrors.ErrConflict when (normalized name, provenance)
// already exists.
type CatalogRepository interface {
	CreateMaterial(ctx context.Context, m *models.Material) error
	CreateClient(ctx context.Context, c *models.Client) error
	GetMaterial(ctx context.Context, id uuid.UUID) (*models.Material, error)
	GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error)
	FindMaterialByNormalizedName(ctx context.Context, normalized string, provenance models.Provenance) (*models.Material, error)
	FindClientByNormalizedName(ctx context.Context, normalized string, provenance models.Provenance) (*models.Client, error)
	FindClientByEmail(ctx context.Context, email string) (*models.Client, error)
	ListMaterials(ctx context.Context) ([]*models.Material, error)
	ListClients(ctx context.Context) ([]*models.Client, error)
}

type catalogRepository struct {
	db *database.DB
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(db *database.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

var _ CatalogRepository = (*catalogRepository)(nil)

const materialColumns = `id, name, normalized_name, description, hsn_code, provenance, created_at, updated_at`

const clientColumns = `id, name, normalized_name, email, contact_person, provenance, created_at, updated_at`

// ============================================================================
// Materials
// ============================================================================

func (r *catalogRepository) CreateMaterial(ctx context.Context, m *models.Material) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now()

	query := `
		INSERT INTO materials (id, name, normalized_name, description, hsn_code, provenance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (normalized_name, provenance) DO NOTHING
		RETURNING created_at, updated_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		m.ID, m.Name, m.NormalizedName, m.Description, m.HSNCode, m.Provenance, now,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create material: %w", err)
	}
	return nil
}

func (r *catalogRepository) GetMaterial(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials WHERE id = $1`
	m, err := scanMaterial(r.db.Querier(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get material: %w", err)
	}
	return m, nil
}

func (r *catalogRepository) FindMaterialByNormalizedName(ctx context.Context, normalized string, provenance models.Provenance) (*models.Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials WHERE normalized_name = $1 AND provenance = $2`
	m, err := scanMaterial(r.db.Querier(ctx).QueryRow(ctx, query, normalized, provenance))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find material: %w", err)
	}
	return m, nil
}

func (r *catalogRepository) ListMaterials(ctx context.Context) ([]*models.Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials ORDER BY created_at, id`
	rows, err := r.db.Querier(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list materials: %w", err)
	}
	defer rows.Close()

	var out []*models.Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan material: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMaterial(row pgx.Row) (*models.Material, error) {
	var m models.Material
	err := row.Scan(&m.ID, &m.Name, &m.NormalizedName, &m.Description, &m.HSNCode, &m.Provenance, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ============================================================================
// Clients
// ============================================================================

func (r *catalogRepository) CreateClient(ctx context.Context, c *models.Client) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()

	query := `
		INSERT INTO clients (id, name, normalized_name, email, contact_person, provenance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (normalized_name, provenance) DO NOTHING
		RETURNING created_at, updated_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		c.ID, c.Name, c.NormalizedName, strings.ToLower(c.Email), c.ContactPerson, c.Provenance, now,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func (r *catalogRepository) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`
	c, err := scanClient(r.db.Querier(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return c, nil
}

func (r *catalogRepository) FindClientByNormalizedName(ctx context.Context, normalized string, provenance models.Provenance) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE normalized_name = $1 AND provenance = $2`
	c, err := scanClient(r.db.Querier(ctx).QueryRow(ctx, query, normalized, provenance))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find client: %w", err)
	}
	return c, nil
}

// FindClientByEmail prefers master data when several clients share an address.
func (r *catalogRepository) FindClientByEmail(ctx context.Context, email string) (*models.Client, error) {
	query := `
		SELECT ` + clientColumns + ` FROM clients
		WHERE lower(email) = lower($1) AND email <> ''
		ORDER BY CASE provenance WHEN 'master' THEN 0 WHEN 'manual' THEN 1 ELSE 2 END, created_at
		LIMIT 1`
	c, err := scanClient(r.db.Querier(ctx).QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find client by email: %w", err)
	}
	return c, nil
}

func (r *catalogRepository) ListClients(ctx context.Context) ([]*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients ORDER BY created_at, id`
	rows, err := r.db.Querier(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var out []*models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanClient(row pgx.Row) (*models.Client, error) {
	var c models.Client
	err := row.Scan(&c.ID, &c.Name, &c.NormalizedName, &c.Email, &c.ContactPerson, &c.Provenance, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
