package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/apperrors"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/normalize"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/repositories"
)

// CatalogService creates catalog entities for names the resolver could not match.
type CatalogService interface {
	// EnsureMaterial returns the ingested material with name's normalized form,
	// creating it when missing. created reports whether this call inserted it.
	EnsureMaterial(ctx context.Context, name string) (m *models.Material, created bool, err error)
	// EnsureClient is EnsureMaterial for clients.
	EnsureClient(ctx context.Context, c models.ExtractedClient) (cl *models.Client, created bool, err error)
	GetMaterial(ctx context.Context, id uuid.UUID) (*models.Material, error)
	GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error)
}

type catalogService struct {
	repo       repositories.CatalogRepository
	normalizer *normalize.Normalizer
	logger     *zap.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(repo repositories.CatalogRepository, normalizer *normalize.Normalizer, logger *zap.Logger) CatalogService {
	return &catalogService{
		repo:       repo,
		normalizer: normalizer,
		logger:     logger.Named("catalog-service"),
	}
}

var _ CatalogService = (*catalogService)(nil)

func (s *catalogService) EnsureMaterial(ctx context.Context, name string) (*models.Material, bool, error) {
	name = strings.Join(strings.Fields(name), " ")
	normalized := s.normalizer.Normalize(normalize.Material, name)
	if normalized == "" {
		return nil, false, fmt.Errorf("%w: material name %q normalizes to nothing", apperrors.ErrInvalidInput, name)
	}

	m := &models.Material{
		Name:           name,
		NormalizedName: normalized,
		Provenance:     models.ProvenanceIngested,
	}
	err := s.repo.CreateMaterial(ctx, m)
	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, apperrors.ErrConflict) {
		return nil, false, err
	}

	// Lost the race or the row predates the index: use the existing one.
	existing, err := s.repo.FindMaterialByNormalizedName(ctx, normalized, models.ProvenanceIngested)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, false, fmt.Errorf("%w: material %q collided but cannot be found", apperrors.ErrConflict, normalized)
	}
	if err != nil {
		return nil, false, err
	}
	s.logger.Debug("Reused existing material after conflict", zap.String("normalized_name", normalized))
	return existing, false, nil
}

func (s *catalogService) EnsureClient(ctx context.Context, c models.ExtractedClient) (*models.Client, bool, error) {
	name := strings.Join(strings.Fields(c.Name), " ")
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(c.Email))
	}
	normalized := s.normalizer.Normalize(normalize.Client, name)
	if normalized == "" {
		return nil, false, fmt.Errorf("%w: client has neither name nor email", apperrors.ErrInvalidInput)
	}

	cl := &models.Client{
		Name:           name,
		NormalizedName: normalized,
		Email:          c.Email,
		ContactPerson:  c.Contact,
		Provenance:     models.ProvenanceIngested,
	}
	err := s.repo.CreateClient(ctx, cl)
	if err == nil {
		return cl, true, nil
	}
	if !errors.Is(err, apperrors.ErrConflict) {
		return nil, false, err
	}

	existing, err := s.repo.FindClientByNormalizedName(ctx, normalized, models.ProvenanceIngested)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, false, fmt.Errorf("%w: client %q collided but cannot be found", apperrors.ErrConflict, normalized)
	}
	if err != nil {
		return nil, false, err
	}
	s.logger.Debug("Reused existing client after conflict", zap.String("normalized_name", normalized))
	return existing, false, nil
}

func (s *catalogService) GetMaterial(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	return s.repo.GetMaterial(ctx, id)
}

func (s *catalogService) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	return s.repo.GetClient(ctx, id)
}
