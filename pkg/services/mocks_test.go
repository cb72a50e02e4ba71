package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/apperrors"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/email"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/extraction"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/llm"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/normalize"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/resolver"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/vocab"
)

// ============================================================================
// Catalog
// ============================================================================

type mockCatalogRepository struct {
	mu        sync.Mutex
	materials []*models.Material
	clients   []*models.Client
	// conflictOnce makes the next create report a conflict without inserting.
	conflictOnce bool
}

func newMockCatalogRepo() *mockCatalogRepository {
	return &mockCatalogRepository{}
}

func (m *mockCatalogRepository) addMaterial(name string, provenance models.Provenance) *models.Material {
	mat := &models.Material{
		ID:             uuid.New(),
		Name:           name,
		NormalizedName: normalize.Normalize(normalize.Material, name),
		Provenance:     provenance,
		CreatedAt:      time.Now(),
	}
	m.materials = append(m.materials, mat)
	return mat
}

func (m *mockCatalogRepository) addClient(name, email string, provenance models.Provenance) *models.Client {
	cl := &models.Client{
		ID:             uuid.New(),
		Name:           name,
		NormalizedName: normalize.Normalize(normalize.Client, name),
		Email:          email,
		Provenance:     provenance,
		CreatedAt:      time.Now(),
	}
	m.clients = append(m.clients, cl)
	return cl
}

func (m *mockCatalogRepository) CreateMaterial(ctx context.Context, mat *models.Material) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictOnce {
		m.conflictOnce = false
		return apperrors.ErrConflict
	}
	for _, e := range m.materials {
		if e.NormalizedName == mat.NormalizedName && e.Provenance == mat.Provenance {
			return apperrors.ErrConflict
		}
	}
	if mat.ID == uuid.Nil {
		mat.ID = uuid.New()
	}
	mat.CreatedAt = time.Now()
	m.materials = append(m.materials, mat)
	return nil
}

func (m *mockCatalogRepository) CreateClient(ctx context.Context, c *models.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictOnce {
		m.conflictOnce = false
		return apperrors.ErrConflict
	}
	for _, e := range m.clients {
		if e.NormalizedName == c.NormalizedName && e.Provenance == c.Provenance {
			return apperrors.ErrConflict
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	m.clients = append(m.clients, c)
	return nil
}

func (m *mockCatalogRepository) GetMaterial(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.materials {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockCatalogRepository) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.clients {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockCatalogRepository) FindMaterialByNormalizedName(ctx context.Context, normalized string, provenance models.Provenance) (*models.Material, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.materials {
		if e.NormalizedName == normalized && e.Provenance == provenance {
			return e, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockCatalogRepository) FindClientByNormalizedName(ctx context.Context, normalized string, provenance models.Provenance) (*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.clients {
		if e.NormalizedName == normalized && e.Provenance == provenance {
			return e, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockCatalogRepository) FindClientByEmail(ctx context.Context, addr string) (*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.clients {
		if e.Email != "" && strings.EqualFold(e.Email, addr) {
			return e, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockCatalogRepository) ListMaterials(ctx context.Context) ([]*models.Material, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Material(nil), m.materials...), nil
}

func (m *mockCatalogRepository) ListClients(ctx context.Context) ([]*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Client(nil), m.clients...), nil
}

// ============================================================================
// Aliases
// ============================================================================

type mockAliasRepository struct {
	mu      sync.Mutex
	aliases map[string]*models.Alias
}

func newMockAliasRepo() *mockAliasRepository {
	return &mockAliasRepository{aliases: make(map[string]*models.Alias)}
}

func (m *mockAliasRepository) UpsertAlias(ctx context.Context, a *models.Alias) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	cp := *a
	m.aliases[string(a.EntityType)+"|"+a.AliasText] = &cp
	return nil
}

func (m *mockAliasRepository) GetAlias(ctx context.Context, kind models.EntityKind, text string) (*models.Alias, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.aliases[string(kind)+"|"+text]; ok {
		return a, nil
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockAliasRepository) ListAliases(ctx context.Context) ([]*models.Alias, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Alias, 0, len(m.aliases))
	for _, a := range m.aliases {
		out = append(out, a)
	}
	return out, nil
}

// ============================================================================
// Price history
// ============================================================================

type mockPriceHistoryRepository struct {
	mu      sync.Mutex
	entries []*models.PriceHistoryEntry
	err     error
}

func (m *mockPriceHistoryRepository) Append(ctx context.Context, e *models.PriceHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockPriceHistoryRepository) Latest(ctx context.Context, materialID, clientID uuid.UUID) (*models.PriceHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.PriceHistoryEntry
	for _, e := range m.entries {
		if e.MaterialID == materialID && e.ClientID == clientID {
			if latest == nil || e.QuotedAt.After(latest.QuotedAt) {
				latest = e
			}
		}
	}
	if latest == nil {
		return nil, apperrors.ErrNotFound
	}
	return latest, nil
}

func (m *mockPriceHistoryRepository) CountByMessage(ctx context.Context, messageID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.SourceMessageID == messageID {
			n++
		}
	}
	return n, nil
}

func (m *mockPriceHistoryRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// ============================================================================
// Ingestion log
// ============================================================================

type mockIngestionLogRepository struct {
	mu      sync.Mutex
	records map[string]*models.IngestionLogRecord
}

func newMockIngestionLogRepo() *mockIngestionLogRepository {
	return &mockIngestionLogRepository{records: make(map[string]*models.IngestionLogRecord)}
}

func (m *mockIngestionLogRepository) Exists(ctx context.Context, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[messageID]
	return ok, nil
}

func (m *mockIngestionLogRepository) Record(ctx context.Context, rec *models.IngestionLogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.MessageID] = &cp
	return nil
}

func (m *mockIngestionLogRepository) ListRecent(ctx context.Context, limit int) ([]*models.IngestionLogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.IngestionLogRecord
	for _, r := range m.records {
		out = append(out, r)
	}
	return out, nil
}

func (m *mockIngestionLogRepository) get(messageID string) *models.IngestionLogRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[messageID]
}

// ============================================================================
// Telemetry
// ============================================================================

type mockTelemetryRepository struct {
	mu       sync.Mutex
	history  []*models.ParsingHistoryRecord
	failures []*models.ParsingFailureRecord
}

func (m *mockTelemetryRepository) RecordParse(ctx context.Context, rec *models.ParsingHistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.CreatedAt = time.Now()
	m.history = append(m.history, rec)
	return nil
}

func (m *mockTelemetryRepository) RecordFailure(ctx context.Context, rec *models.ParsingFailureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.CreatedAt = time.Now()
	m.failures = append(m.failures, rec)
	return nil
}

func (m *mockTelemetryRepository) MethodStats(ctx context.Context, since time.Time) ([]models.MethodStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byMethod := make(map[models.ExtractionMethod]*models.MethodStats)
	for _, h := range m.history {
		if h.CreatedAt.Before(since) {
			continue
		}
		s, ok := byMethod[h.Method]
		if !ok {
			s = &models.MethodStats{Method: h.Method}
			byMethod[h.Method] = s
		}
		s.MeanConfidence = (s.MeanConfidence*float64(s.Count) + h.Confidence) / float64(s.Count+1)
		s.Count++
		s.Items += h.ItemCount
		s.CostUSD += h.CostUSD
	}
	var out []models.MethodStats
	for _, s := range byMethod {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out, nil
}

func (m *mockTelemetryRepository) CountFailures(ctx context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, f := range m.failures {
		if !f.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *mockTelemetryRepository) FailurePatterns(ctx context.Context, limit int) ([]models.FailurePattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byKey := make(map[string]*models.FailurePattern)
	var order []string
	for _, f := range m.failures {
		key := f.Stage + "|" + f.ErrorText
		p, ok := byKey[key]
		if !ok {
			p = &models.FailurePattern{Stage: f.Stage, ErrorText: f.ErrorText}
			byKey[key] = p
			order = append(order, key)
		}
		p.Count++
		p.LastSeen = f.CreatedAt
	}
	var out []models.FailurePattern
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockTelemetryRepository) historyFor(messageID string) []*models.ParsingHistoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ParsingHistoryRecord
	for _, h := range m.history {
		if h.MessageID == messageID {
			out = append(out, h)
		}
	}
	return out
}

// ============================================================================
// Review queue
// ============================================================================

// mockReviewRepository stores payloads as JSON, like the real table, so a
// replay never shares memory with the enqueued extraction.
type mockReviewRepository struct {
	mu    sync.Mutex
	items map[uuid.UUID][]byte
	order []uuid.UUID
}

func newMockReviewRepo() *mockReviewRepository {
	return &mockReviewRepository{items: make(map[uuid.UUID][]byte)}
}

func (m *mockReviewRepository) load(id uuid.UUID) *models.ReviewQueueItem {
	var item models.ReviewQueueItem
	if err := json.Unmarshal(m.items[id], &item); err != nil {
		panic(err)
	}
	return &item
}

func (m *mockReviewRepository) store(item *models.ReviewQueueItem) {
	b, err := json.Marshal(item)
	if err != nil {
		panic(err)
	}
	m.items[item.ID] = b
}

func (m *mockReviewRepository) Create(ctx context.Context, item *models.ReviewQueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		if m.load(id).MessageID == item.MessageID {
			return apperrors.ErrConflict
		}
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.Status = models.ReviewPending
	item.CreatedAt = time.Now()
	m.store(item)
	m.order = append(m.order, item.ID)
	return nil
}

func (m *mockReviewRepository) Get(ctx context.Context, id uuid.UUID) (*models.ReviewQueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return nil, apperrors.ErrNotFound
	}
	return m.load(id), nil
}

func (m *mockReviewRepository) List(ctx context.Context, status models.ReviewStatus, limit int) ([]*models.ReviewQueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ReviewQueueItem
	for _, id := range m.order {
		item := m.load(id)
		if status != "" && item.Status != status {
			continue
		}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockReviewRepository) Transition(ctx context.Context, id uuid.UUID, to models.ReviewStatus, reviewer, reason string, corrections *models.ReviewCorrections) (*models.ReviewQueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !to.IsTerminal() {
		return nil, apperrors.ErrInvalidTransition
	}
	if _, ok := m.items[id]; !ok {
		return nil, apperrors.ErrNotFound
	}
	item := m.load(id)
	if item.Status != models.ReviewPending {
		return nil, fmt.Errorf("%w: item is %s", apperrors.ErrInvalidTransition, item.Status)
	}
	now := time.Now()
	item.Status = to
	if reviewer != "" {
		item.ReviewedBy = &reviewer
	}
	item.Reason = reason
	item.Corrections = corrections
	item.ReviewedAt = &now
	m.store(item)
	return m.load(id), nil
}

func (m *mockReviewRepository) CountByStatus(ctx context.Context, status models.ReviewStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range m.order {
		if m.load(id).Status == status {
			n++
		}
	}
	return n, nil
}

// ============================================================================
// Transactions, mailbox
// ============================================================================

type passThroughTx struct{}

func (passThroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockProvider struct {
	mu       sync.Mutex
	messages []*email.Message
	fetchErr map[string]error
	searchFn func(q email.Query) ([]email.MessageRef, error)
	queries  []email.Query
	fetches  int
}

func (p *mockProvider) Search(ctx context.Context, q email.Query) ([]email.MessageRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries = append(p.queries, q)
	if p.searchFn != nil {
		return p.searchFn(q)
	}
	var refs []email.MessageRef
	for _, m := range p.messages {
		refs = append(refs, email.MessageRef{ID: m.ID, ThreadID: m.ThreadID})
		if q.MaxResults > 0 && len(refs) == q.MaxResults {
			break
		}
	}
	return refs, nil
}

func (p *mockProvider) Fetch(ctx context.Context, id string) (*email.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches++
	if err := p.fetchErr[id]; err != nil {
		return nil, err
	}
	for _, m := range p.messages {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// ============================================================================
// Pipeline fixture
// ============================================================================

type pipeline struct {
	catalog    *mockCatalogRepository
	aliases    *mockAliasRepository
	prices     *mockPriceHistoryRepository
	log        *mockIngestionLogRepository
	telemetry  *mockTelemetryRepository
	reviewRepo *mockReviewRepository
	provider   *mockProvider

	resolver  *resolver.Resolver
	committer *Committer
	reviews   ReviewService
	ingestion *ingestionService
}

// newPipeline wires the real extractors, resolver and services over in-memory
// repositories. llmClient may be nil to disable the fallback extractor.
func newPipeline(t *testing.T, llmClient llm.LLMClient) *pipeline {
	t.Helper()
	logger := zap.NewNop()
	v := vocab.Default()

	p := &pipeline{
		catalog:    newMockCatalogRepo(),
		aliases:    newMockAliasRepo(),
		prices:     &mockPriceHistoryRepository{},
		log:        newMockIngestionLogRepo(),
		telemetry:  &mockTelemetryRepository{},
		reviewRepo: newMockReviewRepo(),
		provider:   &mockProvider{fetchErr: make(map[string]error)},
	}

	p.resolver = resolver.New(resolver.Deps{
		Catalog:    p.catalog,
		Aliases:    p.aliases,
		Vocabulary: v,
		Config:     resolver.DefaultConfig(),
		Logger:     logger,
	})
	catalog := NewCatalogService(p.catalog, normalize.New(v), logger)
	telemetry := NewTelemetryService(p.telemetry, p.reviewRepo, logger)
	p.committer = NewCommitter(catalog, p.prices, p.resolver, nil, logger)
	p.reviews = NewReviewService(p.reviewRepo, passThroughTx{}, p.committer, p.resolver, telemetry, nil, logger)

	fallback := extraction.NewFallbackExtractor(extraction.FallbackDeps{
		Client:        llmClient,
		Usage:         llm.NewUsageTracker(llm.Pricing{InputPerMillion: 0.15, OutputPerMillion: 0.60}),
		Vocabulary:    v,
		MaxInputChars: 4000,
		Logger:        logger,
	})

	settings := DefaultIngestionSettings()
	settings.BackfillPause = 0
	p.ingestion = NewIngestionService(IngestionDeps{
		Provider:   p.provider,
		Structured: extraction.NewStructuredExtractor(v, []string{"acme-refractories.com"}),
		Fallback:   fallback,
		Resolver:   p.resolver,
		Committer:  p.committer,
		Reviews:    p.reviews,
		Telemetry:  telemetry,
		Log:        p.log,
		Tx:         passThroughTx{},
		Lock:       NewLocalRunLock(),
		Settings:   settings,
		Logger:     logger,
	}).(*ingestionService)
	return p
}

// reload rebuilds the resolver after seeding the catalog.
func (p *pipeline) reload(t *testing.T) {
	t.Helper()
	if err := p.resolver.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
}
