package pipeline

import (
	"fmt"

	"github.com/castellan/storygraph/model"
	"github.com/google/uuid"
)

// ChunkFunc is a function that splits manuscript text into ingestion
// chunks. Chunk ids are derived from the base id (e.g. "doc#3").
type ChunkFunc func(text string, baseID string) ([]model.IngestChunk, error)

// EmbedFunc is a function that generates embeddings for text
type EmbedFunc func(text string) ([]float32, error)

// Pipeline combines chunking and embedding functions
type Pipeline struct {
	Chunker  ChunkFunc
	Embedder EmbedFunc
}

// NewPipeline creates a new processing pipeline
func NewPipeline(chunker ChunkFunc, embedder EmbedFunc) *Pipeline {
	return &Pipeline{
		Chunker:  chunker,
		Embedder: embedder,
	}
}

// Process chunks raw text, then normalizes and embeds each chunk into
// storable form. Chunking runs on the raw text so chunkers that rely
// on layout (paragraph breaks) still see it; normalization happens per
// chunk afterwards.
func (p *Pipeline) Process(text string, documentID uuid.UUID) ([]*model.Chunk, error) {
	if p.Chunker == nil || p.Embedder == nil {
		return nil, fmt.Errorf("pipeline requires a chunker and an embedder")
	}

	ingestChunks, err := p.Chunker(text, documentID.String())
	if err != nil {
		return nil, err
	}

	chunks := make([]*model.Chunk, 0, len(ingestChunks))
	for i, ic := range ingestChunks {
		content := Normalize(ic.Text)
		embedding, err := p.Embedder(content)
		if err != nil {
			return nil, err
		}

		chunkIndex := i
		chunks = append(chunks, &model.Chunk{
			ChunkID:    ic.ChunkID,
			DocumentID: documentID,
			Content:    content,
			Embedding:  embedding,
			ChunkIndex: &chunkIndex,
		})
	}

	return chunks, nil
}

// IngestChunks converts stored chunks back to the ingestion form used
// by the extraction stage.
func IngestChunks(chunks []*model.Chunk) []model.IngestChunk {
	ingestChunks := make([]model.IngestChunk, 0, len(chunks))
	for _, c := range chunks {
		ingestChunks = append(ingestChunks, model.IngestChunk{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID.String(),
			Text:       c.Content,
		})
	}
	return ingestChunks
}
