package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/apperrors"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/normalize"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/vocab"
)

func newTestCatalogService(repo *mockCatalogRepository) CatalogService {
	return NewCatalogService(repo, normalize.New(vocab.Default()), zap.NewNop())
}

func TestCatalogService_EnsureMaterial(t *testing.T) {
	repo := newMockCatalogRepo()
	svc := newTestCatalogService(repo)
	ctx := context.Background()

	m, created, err := svc.EnsureMaterial(ctx, "  FIRE   BRICK IS-8 ")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "FIRE BRICK IS-8", m.Name)
	assert.Equal(t, models.ProvenanceIngested, m.Provenance)
	assert.NotEmpty(t, m.NormalizedName)

	again, created, err := svc.EnsureMaterial(ctx, "fire brick is-8")
	require.NoError(t, err)
	assert.False(t, created, "same normalized name reuses the row")
	assert.Equal(t, m.ID, again.ID)
	assert.Len(t, repo.materials, 1)
}

func TestCatalogService_EnsureMaterial_ConflictWithoutRow(t *testing.T) {
	repo := newMockCatalogRepo()
	repo.conflictOnce = true
	svc := newTestCatalogService(repo)

	_, _, err := svc.EnsureMaterial(context.Background(), "FIRE BRICK")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestCatalogService_EnsureMaterial_EmptyName(t *testing.T) {
	svc := newTestCatalogService(newMockCatalogRepo())

	_, _, err := svc.EnsureMaterial(context.Background(), " -- ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCatalogService_EnsureClient(t *testing.T) {
	tests := []struct {
		name     string
		client   models.ExtractedClient
		wantName string
		wantErr  error
	}{
		{name: "named", client: models.ExtractedClient{Name: "Tata  Steel Ltd", Email: "buy@tatasteel.com"}, wantName: "Tata Steel Ltd"},
		{name: "email only", client: models.ExtractedClient{Email: " Buy@TataSteel.com "}, wantName: "buy@tatasteel.com"},
		{name: "nothing", client: models.ExtractedClient{}, wantErr: apperrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestCatalogService(newMockCatalogRepo())
			cl, created, err := svc.EnsureClient(context.Background(), tt.client)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, created)
			assert.Equal(t, tt.wantName, cl.Name)
			assert.Equal(t, models.ProvenanceIngested, cl.Provenance)
		})
	}
}

func TestCatalogService_EnsureClient_ReusesIngestedRow(t *testing.T) {
	repo := newMockCatalogRepo()
	existing := repo.addClient("Tata Steel Ltd", "", models.ProvenanceIngested)
	svc := newTestCatalogService(repo)

	cl, created, err := svc.EnsureClient(context.Background(), models.ExtractedClient{Name: "TATA STEEL LIMITED"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, cl.ID)
}
