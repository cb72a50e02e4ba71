package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/apperrors"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/metrics"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/repositories"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/resolver"
)

// CommitRequest is one extraction to turn into price history.
type CommitRequest struct {
	Source     models.SourceMessage
	Extraction *models.ExtractionResult
	// ClientID, when set, replaces client resolution.
	ClientID *uuid.UUID
	// MaterialIDs replaces material resolution for the items at those indexes.
	MaterialIDs map[int]uuid.UUID
}

// CommitOutcome describes what a commit resolved and wrote.
type CommitOutcome struct {
	ClientID uuid.UUID
	// MaterialIDs is the material used for each item index that was persisted.
	MaterialIDs map[int]uuid.UUID
	Entries     int
	Skipped     int

	createdMaterials []*models.Material
	createdClients   []*models.Client
}

// Committer resolves an extraction against the catalog and appends price
// history. Commit must run inside a transaction: it creates catalog rows and
// leaves publishing them to the resolver to Publish, which callers invoke
// after the transaction commits so a rollback never leaves entities in the
// in-memory index.
type Committer struct {
	catalog  CatalogService
	prices   repositories.PriceHistoryRepository
	resolver *resolver.Resolver
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewCommitter creates a Committer.
func NewCommitter(catalog CatalogService, prices repositories.PriceHistoryRepository, res *resolver.Resolver, m *metrics.Metrics, logger *zap.Logger) *Committer {
	return &Committer{
		catalog:  catalog,
		prices:   prices,
		resolver: res,
		metrics:  m,
		logger:   logger.Named("committer"),
	}
}

// Commit resolves the client and every item, creating ingested entities for
// names that do not match, and appends one price entry per item with a
// positive rate.
func (c *Committer) Commit(ctx context.Context, req CommitRequest) (*CommitOutcome, error) {
	ext := req.Extraction
	out := &CommitOutcome{MaterialIDs: make(map[int]uuid.UUID)}

	clientID, ok, err := c.resolveClient(ctx, req, out)
	if err != nil {
		return nil, err
	}
	if !ok {
		// No client identity at all: nothing can be attributed.
		out.Skipped = len(ext.Items)
		c.logger.Info("Extraction has no client; no price entries written",
			zap.String("message_id", req.Source.MessageID),
			zap.Int("items", len(ext.Items)))
		return out, nil
	}
	out.ClientID = clientID

	quotedAt := req.Source.ReceivedAt
	if ext.QuotedAt != nil {
		quotedAt = *ext.QuotedAt
	}
	if quotedAt.IsZero() {
		quotedAt = time.Now()
	}

	// Names created earlier in this email, since the index is only updated on Publish.
	created := make(map[string]uuid.UUID)

	for i, it := range ext.Items {
		if !it.Rate.IsPositive() {
			out.Skipped++
			continue
		}
		materialID, ok, err := c.resolveMaterial(ctx, i, it, req, created, out)
		if err != nil {
			return nil, err
		}
		if !ok {
			out.Skipped++
			continue
		}

		entry := &models.PriceHistoryEntry{
			MaterialID:      materialID,
			ClientID:        clientID,
			Rate:            it.Rate,
			Currency:        it.Currency,
			Unit:            it.Unit,
			Quantity:        it.Quantity,
			DeliveryTerms:   deliveryTerms(it, ext.Terms),
			QuotedAt:        quotedAt,
			Provenance:      models.ProvenanceIngested,
			SourceMessageID: req.Source.MessageID,
			SourceThreadID:  req.Source.ThreadID,
		}
		if err := c.prices.Append(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to append price for item %d: %w", i, err)
		}
		out.MaterialIDs[i] = materialID
		out.Entries++
	}
	return out, nil
}

func (c *Committer) resolveClient(ctx context.Context, req CommitRequest, out *CommitOutcome) (uuid.UUID, bool, error) {
	if req.ClientID != nil {
		if _, err := c.catalog.GetClient(ctx, *req.ClientID); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return uuid.Nil, false, fmt.Errorf("%w: client %s does not exist", apperrors.ErrInvalidInput, *req.ClientID)
			}
			return uuid.Nil, false, err
		}
		return *req.ClientID, true, nil
	}

	ec := req.Extraction.Client
	if ec.IsEmpty() {
		return uuid.Nil, false, nil
	}
	match := c.resolver.MatchClient(resolver.ClientQuery{Name: ec.Name, Email: ec.Email, Contact: ec.Contact})
	c.metrics.Resolution(models.EntityClient, match.Tier)
	if match.Matched {
		return match.EntityID, true, nil
	}

	cl, isNew, err := c.catalog.EnsureClient(ctx, *ec)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to create client: %w", err)
	}
	if isNew {
		out.createdClients = append(out.createdClients, cl)
	}
	return cl.ID, true, nil
}

// resolveMaterial returns ok=false for an item whose text normalizes to nothing.
func (c *Committer) resolveMaterial(ctx context.Context, i int, it models.ExtractedItem, req CommitRequest, created map[string]uuid.UUID, out *CommitOutcome) (uuid.UUID, bool, error) {
	if id, ok := req.MaterialIDs[i]; ok {
		if _, err := c.catalog.GetMaterial(ctx, id); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return uuid.Nil, false, fmt.Errorf("%w: material %s for item %d does not exist", apperrors.ErrInvalidInput, id, i)
			}
			return uuid.Nil, false, err
		}
		return id, true, nil
	}

	match := c.resolver.MatchMaterial(it.MaterialText)
	c.metrics.Resolution(models.EntityMaterial, match.Tier)
	if match.Matched {
		return match.EntityID, true, nil
	}

	key := c.resolver.Normalize(models.EntityMaterial, it.MaterialText)
	if key == "" {
		return uuid.Nil, false, nil
	}
	if id, ok := created[key]; ok {
		return id, true, nil
	}
	m, isNew, err := c.catalog.EnsureMaterial(ctx, it.MaterialText)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to create material for item %d: %w", i, err)
	}
	if isNew {
		out.createdMaterials = append(out.createdMaterials, m)
	}
	created[key] = m.ID
	return m.ID, true, nil
}

// Publish adds entities created by a committed transaction to the resolver index.
func (c *Committer) Publish(out *CommitOutcome) {
	if out == nil {
		return
	}
	for _, m := range out.createdMaterials {
		c.resolver.RegisterMaterial(m)
	}
	for _, cl := range out.createdClients {
		c.resolver.RegisterClient(cl)
	}
}

// Preview resolves an extraction without writing anything, for review context.
func (c *Committer) Preview(ext *models.ExtractionResult) *models.ResolutionPreview {
	p := &models.ResolutionPreview{
		Client: models.Unmatched(nil, 0),
		Items:  make([]models.MatchResult, len(ext.Items)),
	}
	if !ext.Client.IsEmpty() {
		p.Client = c.resolver.MatchClient(resolver.ClientQuery{
			Name: ext.Client.Name, Email: ext.Client.Email, Contact: ext.Client.Contact,
		})
	}
	for i, it := range ext.Items {
		p.Items[i] = c.resolver.MatchMaterial(it.MaterialText)
	}
	return p
}

func deliveryTerms(it models.ExtractedItem, terms *models.CommercialTerms) string {
	if it.DeliveryLocation != "" {
		return it.DeliveryLocation
	}
	if terms != nil {
		return terms.Delivery
	}
	return ""
}
