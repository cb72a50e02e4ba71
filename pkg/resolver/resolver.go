// Package resolver maps extracted material and client names to catalog
// entities. A Resolver owns its in-memory index and alias map; Reload
// rebuilds both from the store.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/apperrors"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/normalize"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/vocab"
)

// CatalogSource lists catalog entities for indexing.
type CatalogSource interface {
	ListMaterials(ctx context.Context) ([]*models.Material, error)
	ListClients(ctx context.Context) ([]*models.Client, error)
}

// AliasStore persists aliases. UpsertAlias replaces an existing mapping for
// the same (entity type, alias text).
type AliasStore interface {
	ListAliases(ctx context.Context) ([]*models.Alias, error)
	UpsertAlias(ctx context.Context, alias *models.Alias) error
}

// Adjustments are the post-hoc fuzzy score terms.
type Adjustments struct {
	SharedCategory     float64
	SharedWords        float64
	SharedWordsMinimum int
	ShortRatio         float64
	ShortRatioBelow    float64
	ContactPerson      float64
}

// DefaultAdjustments is the tuned adjustment table.
var DefaultAdjustments = Adjustments{
	SharedCategory:     0.10,
	SharedWords:        0.05,
	SharedWordsMinimum: 2,
	ShortRatio:         -0.10,
	ShortRatioBelow:    0.5,
	ContactPerson:      0.10,
}

// Config holds the resolver thresholds.
type Config struct {
	// CommitThreshold is the adjusted fuzzy score needed for Matched=true.
	CommitThreshold float64
	// FuzzyFloor drops candidates whose raw similarity is below it.
	FuzzyFloor float64
	// DomainConfidence is the score of an email-domain match.
	DomainConfidence float64
	Adjustments      Adjustments
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		CommitThreshold:  0.85,
		FuzzyFloor:       0.55,
		DomainConfidence: 0.95,
		Adjustments:      DefaultAdjustments,
	}
}

// ClientQuery is what is known about a client when resolving it.
// Domain defaults to the domain of Email.
type ClientQuery struct {
	Name    string
	Email   string
	Domain  string
	Contact string
}

// Deps are the collaborators of a Resolver.
type Deps struct {
	Catalog    CatalogSource
	Aliases    AliasStore
	Vocabulary *vocab.Vocabulary
	Config     Config
	Logger     *zap.Logger
}

// Resolver is safe for concurrent use.
type Resolver struct {
	catalog    CatalogSource
	aliases    AliasStore
	vocab      *vocab.Vocabulary
	normalizer *normalize.Normalizer
	cfg        Config
	logger     *zap.Logger

	mu  sync.RWMutex
	idx *index
}

// New creates an empty Resolver. Call Reload to load the catalog.
func New(deps Deps) *Resolver {
	v := deps.Vocabulary
	if v == nil {
		v = vocab.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		catalog:    deps.Catalog,
		aliases:    deps.Aliases,
		vocab:      v,
		normalizer: normalize.New(v),
		cfg:        deps.Config,
		logger:     logger.Named("resolver"),
		idx:        newIndex(),
	}
}

// Reload rebuilds the index and the alias map from the store. On error the
// previous index is kept.
func (r *Resolver) Reload(ctx context.Context) error {
	materials, err := r.catalog.ListMaterials(ctx)
	if err != nil {
		return fmt.Errorf("list materials: %w", err)
	}
	clients, err := r.catalog.ListClients(ctx)
	if err != nil {
		return fmt.Errorf("list clients: %w", err)
	}
	aliases, err := r.aliases.ListAliases(ctx)
	if err != nil {
		return fmt.Errorf("list aliases: %w", err)
	}

	idx := newIndex()
	for _, m := range materials {
		idx.addMaterial(r.materialEntry(m))
	}
	for _, c := range clients {
		idx.addClient(r.clientEntry(c))
	}
	for _, a := range aliases {
		idx.setAlias(a.EntityType, a.AliasText, a.EntityID)
	}
	idx.sort()

	r.mu.Lock()
	r.idx = idx
	r.mu.Unlock()

	r.logger.Info("Resolver index loaded",
		zap.Int("materials", len(materials)),
		zap.Int("clients", len(clients)),
		zap.Int("aliases", len(aliases)))
	return nil
}

// RegisterMaterial adds a just-created material to the index.
func (r *Resolver) RegisterMaterial(m *models.Material) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idx.addMaterial(r.materialEntry(m))
	r.idx.sort()
}

// RegisterClient adds a just-created client to the index.
func (r *Resolver) RegisterClient(c *models.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idx.addClient(r.clientEntry(c))
	r.idx.sort()
}

// LearnAlias normalizes text for kind and maps it to entityID. A later call
// with the same text replaces the mapping.
func (r *Resolver) LearnAlias(ctx context.Context, kind models.EntityKind, text string, entityID uuid.UUID, origin string) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: unknown entity kind %q", apperrors.ErrInvalidInput, kind)
	}
	normalized := r.Normalize(kind, text)
	if normalized == "" {
		return fmt.Errorf("%w: alias text is empty after normalization", apperrors.ErrInvalidInput)
	}
	alias := &models.Alias{
		EntityType: kind,
		AliasText:  normalized,
		EntityID:   entityID,
		Origin:     origin,
	}
	if err := r.aliases.UpsertAlias(ctx, alias); err != nil {
		return fmt.Errorf("upsert alias: %w", err)
	}

	r.mu.Lock()
	r.idx.setAlias(kind, normalized, entityID)
	r.mu.Unlock()

	r.logger.Debug("Alias learned",
		zap.String("kind", string(kind)),
		zap.String("alias", normalized),
		zap.String("entity_id", entityID.String()),
		zap.String("origin", origin))
	return nil
}

// Normalize applies the resolver's normalization rules for kind.
func (r *Resolver) Normalize(kind models.EntityKind, text string) string {
	if kind == models.EntityClient {
		return r.normalizer.Normalize(normalize.Client, text)
	}
	return r.normalizer.Normalize(normalize.Material, text)
}

// MatchMaterial resolves a material name: alias, exact normalized name, then fuzzy.
func (r *Resolver) MatchMaterial(text string) models.MatchResult {
	n := r.Normalize(models.EntityMaterial, text)
	if n == "" {
		return models.Unmatched(nil, 0)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.idx.aliasFor(models.EntityMaterial, n); ok {
		return matched(id, 1.0, models.TierAlias, r.idx.materialName(id))
	}
	if e, ok := r.idx.materialsByName[n]; ok {
		return matched(e.id, 1.0, models.TierExact, e.name)
	}

	tokens := normalize.Tokens(n)
	categories := r.vocab.CategoriesOf(n)
	var (
		best      *entry
		bestScore float64
	)
	for _, e := range r.idx.materials {
		raw := similarity(n, tokens, e.normalized, e.tokens)
		if raw < r.cfg.FuzzyFloor {
			continue
		}
		score := raw + r.sharedWordsBonus(tokens, e) + r.shortNamePenalty(n, e)
		if len(categories) > 0 && sharesAny(categories, e.categories) {
			score += r.cfg.Adjustments.SharedCategory
		}
		score = models.Clamp(score, 0, 1)
		if best == nil || score > bestScore {
			best, bestScore = e, score
		}
	}
	return r.decide(best, bestScore)
}

// MatchClient resolves a client: exact email, email domain, alias (name, then
// address), exact normalized name, then fuzzy on the name.
func (r *Resolver) MatchClient(q ClientQuery) models.MatchResult {
	email := strings.ToLower(strings.TrimSpace(q.Email))
	domain := strings.ToLower(strings.TrimSpace(q.Domain))
	if domain == "" {
		domain = (&models.ExtractedClient{Email: email}).Domain()
	}
	n := r.Normalize(models.EntityClient, q.Name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if email != "" {
		if e, ok := r.idx.clientsByEmail[email]; ok {
			return matched(e.id, 1.0, models.TierEmail, e.name)
		}
	}
	if domain != "" && !r.vocab.IsPublicMailDomain(domain) {
		if e, ok := r.idx.clientsByDomain[domain]; ok {
			return matched(e.id, r.cfg.DomainConfidence, models.TierDomain, e.name)
		}
	}
	if n != "" {
		if id, ok := r.idx.aliasFor(models.EntityClient, n); ok {
			return matched(id, 1.0, models.TierAlias, r.idx.clientName(id))
		}
	}
	if email != "" {
		if id, ok := r.idx.aliasFor(models.EntityClient, r.normalizer.Normalize(normalize.Client, email)); ok {
			return matched(id, 1.0, models.TierAlias, r.idx.clientName(id))
		}
	}
	if n == "" {
		return models.Unmatched(nil, 0)
	}
	if e, ok := r.idx.clientsByName[n]; ok {
		return matched(e.id, 1.0, models.TierExact, e.name)
	}

	tokens := normalize.Tokens(n)
	contact := strings.ToUpper(strings.Join(strings.Fields(q.Contact), " "))
	var (
		best      *entry
		bestScore float64
	)
	for _, e := range r.idx.clients {
		raw := similarity(n, tokens, e.normalized, e.tokens)
		if raw < r.cfg.FuzzyFloor {
			continue
		}
		score := raw + r.sharedWordsBonus(tokens, e)
		if contact != "" && contact == e.contact {
			score += r.cfg.Adjustments.ContactPerson
		}
		score = models.Clamp(score, 0, 1)
		if best == nil || score > bestScore {
			best, bestScore = e, score
		}
	}
	return r.decide(best, bestScore)
}

// sharedWordsBonus applies to both kinds.
func (r *Resolver) sharedWordsBonus(tokens []string, e *entry) float64 {
	if sharedWords(tokens, e.tokens) >= r.cfg.Adjustments.SharedWordsMinimum {
		return r.cfg.Adjustments.SharedWords
	}
	return 0
}

// shortNamePenalty applies to materials only.
func (r *Resolver) shortNamePenalty(n string, e *entry) float64 {
	if lengthRatio(n, e.normalized) < r.cfg.Adjustments.ShortRatioBelow {
		return r.cfg.Adjustments.ShortRatio
	}
	return 0
}

func (r *Resolver) decide(best *entry, score float64) models.MatchResult {
	if best == nil {
		return models.Unmatched(nil, 0)
	}
	if score >= r.cfg.CommitThreshold {
		return matched(best.id, score, models.TierFuzzy, best.name)
	}
	return models.Unmatched(&models.Candidate{EntityID: best.id, Name: best.name}, score)
}

func matched(id uuid.UUID, confidence float64, tier models.MatchTier, name string) models.MatchResult {
	return models.MatchResult{
		Matched:    true,
		EntityID:   id,
		Confidence: confidence,
		Tier:       tier,
		Candidate:  &models.Candidate{EntityID: id, Name: name},
	}
}

// CatalogSample returns up to n material names for the fallback prompt,
// master data first.
func (r *Resolver) CatalogSample(n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	out := make([]string, 0, min(n, len(r.idx.materials)))
	for _, e := range r.idx.materials {
		if len(out) == n {
			break
		}
		out = append(out, e.name)
	}
	return out
}

// Size returns the number of indexed materials, clients and aliases.
func (r *Resolver) Size() (materials, clients, aliases int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.idx.materials), len(r.idx.clients), r.idx.aliasCount()
}

func (r *Resolver) materialEntry(m *models.Material) *entry {
	n := m.NormalizedName
	if n == "" {
		n = r.Normalize(models.EntityMaterial, m.Name)
	}
	return &entry{
		id:         m.ID,
		name:       m.Name,
		normalized: n,
		tokens:     normalize.Tokens(n),
		categories: r.vocab.CategoriesOf(n),
		provenance: m.Provenance,
		createdAt:  m.CreatedAt,
	}
}

func (r *Resolver) clientEntry(c *models.Client) *entry {
	n := c.NormalizedName
	if n == "" {
		n = r.Normalize(models.EntityClient, c.Name)
	}
	email := strings.ToLower(strings.TrimSpace(c.Email))
	return &entry{
		id:         c.ID,
		name:       c.Name,
		normalized: n,
		tokens:     normalize.Tokens(n),
		email:      email,
		domain:     (&models.ExtractedClient{Email: email}).Domain(),
		contact:    strings.ToUpper(strings.Join(strings.Fields(c.ContactPerson), " ")),
		provenance: c.Provenance,
		createdAt:  c.CreatedAt,
	}
}
