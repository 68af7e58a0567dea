package model

import (
	"strings"

	"github.com/google/uuid"
)

// CandidateStatus is the review state of a candidate.
type CandidateStatus string

const (
	CandidateStatusPending  CandidateStatus = "pending"
	CandidateStatusAccepted CandidateStatus = "accepted"
	CandidateStatusRejected CandidateStatus = "rejected"
)

// Candidate is an unresolved entity proposal aggregated from one or
// more mentions. It is created by the candidate generator, mutated only
// by the merger (aliases, contexts, confidence) and by the validation
// reviewer (status).
type Candidate struct {
	ID             uuid.UUID       `json:"id"`
	CanonicalText  string          `json:"canonical_text"`
	Type           EntityType      `json:"entity_type"`
	Confidence     float64         `json:"confidence"`
	Aliases        []string        `json:"aliases"`
	Contexts       []string        `json:"contexts"`
	Status         CandidateStatus `json:"status"`
	SourceDocument string          `json:"source_document,omitempty"`
	SourceChunkIDs []string        `json:"source_chunk_ids,omitempty"`
	MentionCount   int             `json:"mention_count"`
}

// NormalizeKey returns the lowercase trimmed form used for exact-match
// grouping and for deterministic node id derivation.
func NormalizeKey(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// HasAlias reports whether the candidate already carries the alias.
func (c *Candidate) HasAlias(alias string) bool {
	for _, a := range c.Aliases {
		if a == alias {
			return true
		}
	}
	return false
}

// AddAlias appends an alias if not already present.
func (c *Candidate) AddAlias(alias string) {
	if alias == "" || c.HasAlias(alias) {
		return
	}
	c.Aliases = append(c.Aliases, alias)
}

// AddContext appends a context snippet, dropping the oldest entries
// once maxContexts is exceeded. maxContexts <= 0 means unbounded.
func (c *Candidate) AddContext(context string, maxContexts int) {
	if context == "" {
		return
	}
	c.Contexts = append(c.Contexts, context)
	if maxContexts > 0 && len(c.Contexts) > maxContexts {
		c.Contexts = c.Contexts[len(c.Contexts)-maxContexts:]
	}
}

// AddSourceChunk records the chunk a mention came from, keeping the
// list free of duplicates.
func (c *Candidate) AddSourceChunk(chunkID string) {
	if chunkID == "" {
		return
	}
	for _, id := range c.SourceChunkIDs {
		if id == chunkID {
			return
		}
	}
	c.SourceChunkIDs = append(c.SourceChunkIDs, chunkID)
}
