package model

import (
	"time"

	"github.com/google/uuid"
)

// Chunk represents a stored document chunk with its embedding
type Chunk struct {
	ID         int64     `json:"id"`
	ChunkID    string    `json:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding,omitempty"`
	ChunkIndex *int      `json:"chunk_index,omitempty"`
	Metadata   Metadata  `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	// Results
	Similarity *float64 `json:"similarity,omitempty"`
}
