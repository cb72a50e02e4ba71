// Package models contains domain types for the quotation ingestion service.
package models

import (
	"time"

	"github.com/google/uuid"
)

// EntityKind distinguishes the two resolvable catalog types.
type EntityKind string

const (
	EntityMaterial EntityKind = "material"
	EntityClient   EntityKind = "client"
)

// IsValid returns true for a known entity kind.
func (k EntityKind) IsValid() bool {
	return k == EntityMaterial || k == EntityClient
}

// Provenance records how a catalog entity came to exist.
type Provenance string

const (
	ProvenanceMaster   Provenance = "master"   // imported reference data
	ProvenanceIngested Provenance = "ingested" // created by the ingestion pipeline
	ProvenanceManual   Provenance = "manual"   // entered by a person
)

// IsValid returns true if the provenance is one of the known values.
func (p Provenance) IsValid() bool {
	switch p {
	case ProvenanceMaster, ProvenanceIngested, ProvenanceManual:
		return true
	default:
		return false
	}
}

// Material is a catalog product. (NormalizedName, Provenance) is unique.
type Material struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalized_name"`
	Description    string     `json:"description,omitempty"`
	HSNCode        string     `json:"hsn_code,omitempty"`
	Provenance     Provenance `json:"provenance"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Client is a customer organisation. (NormalizedName, Provenance) is unique.
type Client struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalized_name"`
	Email          string     `json:"email,omitempty"`
	ContactPerson  string     `json:"contact_person,omitempty"`
	Provenance     Provenance `json:"provenance"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Alias origin values.
const (
	AliasOriginManual     = "manual"
	AliasOriginLearned    = "learned"
	AliasOriginCorrection = "correction"
)

// Alias maps a normalized surface form to a catalog entity.
// Writing the same (EntityType, AliasText) again replaces the mapping.
type Alias struct {
	ID         uuid.UUID  `json:"id"`
	EntityType EntityKind `json:"entity_type"`
	AliasText  string     `json:"alias_text"`
	EntityID   uuid.UUID  `json:"entity_id"`
	Origin     string     `json:"origin"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
