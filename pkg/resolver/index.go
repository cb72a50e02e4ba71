package resolver

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
)

// entry is one indexed catalog entity.
type entry struct {
	id         uuid.UUID
	name       string
	normalized string
	tokens     []string
	categories []string
	email      string
	domain     string
	contact    string
	provenance models.Provenance
	createdAt  time.Time
}

// provenanceRank orders entities for tie-breaks: curated data beats data
// created by ingestion.
func provenanceRank(p models.Provenance) int {
	switch p {
	case models.ProvenanceMaster:
		return 0
	case models.ProvenanceManual:
		return 1
	default:
		return 2
	}
}

// before reports whether a wins a tie against b: better provenance, then
// older, then lower id.
func (a *entry) before(b *entry) bool {
	if ra, rb := provenanceRank(a.provenance), provenanceRank(b.provenance); ra != rb {
		return ra < rb
	}
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.id.String() < b.id.String()
}

type index struct {
	materials       []*entry
	clients         []*entry
	materialsByID   map[uuid.UUID]*entry
	clientsByID     map[uuid.UUID]*entry
	materialsByName map[string]*entry
	clientsByName   map[string]*entry
	clientsByEmail  map[string]*entry
	clientsByDomain map[string]*entry
	aliases         map[models.EntityKind]map[string]uuid.UUID
}

func newIndex() *index {
	return &index{
		materialsByID:   make(map[uuid.UUID]*entry),
		clientsByID:     make(map[uuid.UUID]*entry),
		materialsByName: make(map[string]*entry),
		clientsByName:   make(map[string]*entry),
		clientsByEmail:  make(map[string]*entry),
		clientsByDomain: make(map[string]*entry),
		aliases: map[models.EntityKind]map[string]uuid.UUID{
			models.EntityMaterial: {},
			models.EntityClient:   {},
		},
	}
}

func (x *index) addMaterial(e *entry) {
	if _, dup := x.materialsByID[e.id]; dup {
		return
	}
	x.materials = append(x.materials, e)
	x.materialsByID[e.id] = e
	putPreferred(x.materialsByName, e.normalized, e)
}

func (x *index) addClient(e *entry) {
	if _, dup := x.clientsByID[e.id]; dup {
		return
	}
	x.clients = append(x.clients, e)
	x.clientsByID[e.id] = e
	putPreferred(x.clientsByName, e.normalized, e)
	if e.email != "" {
		putPreferred(x.clientsByEmail, e.email, e)
	}
	if e.domain != "" {
		putPreferred(x.clientsByDomain, e.domain, e)
	}
}

// putPreferred keeps the tie-break winner when several entities share a key.
func putPreferred(m map[string]*entry, key string, e *entry) {
	if key == "" {
		return
	}
	if cur, ok := m[key]; ok && !e.before(cur) {
		return
	}
	m[key] = e
}

// sort puts the fuzzy scan in tie-break order so the first best score wins.
func (x *index) sort() {
	sort.SliceStable(x.materials, func(i, j int) bool { return x.materials[i].before(x.materials[j]) })
	sort.SliceStable(x.clients, func(i, j int) bool { return x.clients[i].before(x.clients[j]) })
}

func (x *index) setAlias(kind models.EntityKind, text string, id uuid.UUID) {
	if m, ok := x.aliases[kind]; ok {
		m[text] = id
	}
}

func (x *index) aliasFor(kind models.EntityKind, text string) (uuid.UUID, bool) {
	id, ok := x.aliases[kind][text]
	return id, ok
}

func (x *index) aliasCount() int {
	return len(x.aliases[models.EntityMaterial]) + len(x.aliases[models.EntityClient])
}

func (x *index) materialName(id uuid.UUID) string {
	if e, ok := x.materialsByID[id]; ok {
		return e.name
	}
	return ""
}

func (x *index) clientName(id uuid.UUID) string {
	if e, ok := x.clientsByID[id]; ok {
		return e.name
	}
	return ""
}
