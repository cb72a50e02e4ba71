package models

import "github.com/google/uuid"

// MatchTier names the resolver tier that produced a score.
type MatchTier string

const (
	TierAlias  MatchTier = "alias"
	TierExact  MatchTier = "exact"
	TierEmail  MatchTier = "email"
	TierDomain MatchTier = "domain"
	TierFuzzy  MatchTier = "fuzzy"
	TierNone   MatchTier = "none"
)

// Candidate is the best catalog entity considered for a match.
type Candidate struct {
	EntityID uuid.UUID `json:"entity_id"`
	Name     string    `json:"name"`
}

// MatchResult is the outcome of resolving one name. When Matched is true,
// EntityID is committed and Confidence is the tier score. When false, Candidate
// (possibly nil) and Confidence describe the best option below the commit
// threshold so a reviewer can see it.
type MatchResult struct {
	Matched    bool       `json:"matched"`
	EntityID   uuid.UUID  `json:"entity_id,omitempty"`
	Confidence float64    `json:"confidence"`
	Tier       MatchTier  `json:"tier"`
	Candidate  *Candidate `json:"candidate,omitempty"`
}

// Unmatched returns a MatchResult with no committed entity.
func Unmatched(best *Candidate, score float64) MatchResult {
	return MatchResult{Tier: TierNone, Candidate: best, Confidence: score}
}
