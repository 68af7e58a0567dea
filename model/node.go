package model

import (
	"time"

	"github.com/google/uuid"
)

// nodeNamespace is the fixed namespace for content-derived node ids.
var nodeNamespace = uuid.MustParse("8f4e8b1a-42d3-4c55-9d2a-3f6f1c0a7b9e")

// GraphNode is the validated, deduplicated representation of an entity
// in the knowledge graph. Its id is derived from the normalized
// canonical text and type, so re-ingesting the same entity always
// targets the same row.
type GraphNode struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Type       EntityType `json:"entity_type"`
	Summary    string     `json:"summary"`
	Attributes Attributes `json:"attributes,omitempty"`
	Scope      string     `json:"scope,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// GraphEdge is an asserted relationship between two graph nodes.
// Both endpoints must reference existing nodes.
type GraphEdge struct {
	ID         uuid.UUID `json:"id"`
	FromID     uuid.UUID `json:"from_id"`
	ToID       uuid.UUID `json:"to_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Metadata   Metadata  `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Graph is the node and edge set for one project scope.
type Graph struct {
	Nodes []*GraphNode `json:"nodes"`
	Edges []*GraphEdge `json:"edges"`
}

// NodeMention links a graph node to a chunk that mentions it.
type NodeMention struct {
	NodeID     uuid.UUID `json:"node_id"`
	ChunkID    string    `json:"chunk_id"`
	Confidence float64   `json:"confidence"`
}

// DeriveNodeID derives the stable node id for a canonical text and
// type. It is a v5-style UUID over the normalized form, so the same
// entity always maps to the same id regardless of ingestion order.
func DeriveNodeID(canonicalText string, entityType EntityType) uuid.UUID {
	key := string(entityType) + "|" + NormalizeKey(canonicalText)
	return uuid.NewSHA1(nodeNamespace, []byte(key))
}
