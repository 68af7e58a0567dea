package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/castellan/storygraph/helper"
	"github.com/castellan/storygraph/model"
	loadSql "github.com/castellan/storygraph/sql"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	UpsertChunk(chunk *model.Chunk) error
	SelectChunk(chunkID string) (*model.Chunk, error)
	SelectChunksByDocument(documentID uuid.UUID) ([]*model.Chunk, error)
	SelectChunksBySimilarity(embedding []float32, limit int, threshold float64) ([]model.SearchResult, error)
	DeleteChunk(chunkID string) error
	ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error
}

// ChunksDBHandler handles chunk-related database operations.
// It implements the vector store boundary of the search engine.
type ChunksDBHandler struct {
	db *helper.Database
}

// NewChunksDBHandler creates a new chunks database handler.
// It initializes the database connection and loads chunk-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	chunksDbHandler := &ChunksDBHandler{
		db: db,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table in the database.
// If the table already exists, it does not create it again.
func (h *ChunksDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing chunks table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// UpsertChunk inserts a chunk or updates it in place by chunk_id
func (h *ChunksDBHandler) UpsertChunk(chunk *model.Chunk) error {
	var documentID interface{}
	if chunk.DocumentID != uuid.Nil {
		documentID = chunk.DocumentID
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM upsert_chunk($1, $2, $3, $4, $5, $6)`,
		chunk.ChunkID,
		documentID,
		chunk.Content,
		pgvector.NewVector(chunk.Embedding),
		chunk.ChunkIndex,
		chunk.Metadata,
	)

	var embedding pgvector.Vector
	var docID *uuid.UUID
	err := row.Scan(
		&chunk.ID,
		&chunk.ChunkID,
		&docID,
		&chunk.Content,
		&embedding,
		&chunk.ChunkIndex,
		&chunk.Metadata,
		&chunk.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}
	if docID != nil {
		chunk.DocumentID = *docID
	}
	chunk.Embedding = embedding.Slice()

	return nil
}

// SelectChunk retrieves a chunk by its chunk_id
func (h *ChunksDBHandler) SelectChunk(chunkID string) (*model.Chunk, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_chunk($1)`,
		chunkID,
	)

	chunk := &model.Chunk{}
	var embedding pgvector.Vector
	var docID *uuid.UUID
	err := row.Scan(
		&chunk.ID,
		&chunk.ChunkID,
		&docID,
		&chunk.Content,
		&embedding,
		&chunk.ChunkIndex,
		&chunk.Metadata,
		&chunk.CreatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}
	if docID != nil {
		chunk.DocumentID = *docID
	}
	chunk.Embedding = embedding.Slice()

	return chunk, nil
}

// SelectChunksByDocument retrieves all chunks of a document in order
func (h *ChunksDBHandler) SelectChunksByDocument(documentID uuid.UUID) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_document($1)`,
		documentID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		var embedding pgvector.Vector
		var docID *uuid.UUID
		err := rows.Scan(
			&chunk.ID,
			&chunk.ChunkID,
			&docID,
			&chunk.Content,
			&embedding,
			&chunk.ChunkIndex,
			&chunk.Metadata,
			&chunk.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		if docID != nil {
			chunk.DocumentID = *docID
		}
		chunk.Embedding = embedding.Slice()

		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// SelectChunksBySimilarity performs cosine similarity search and
// returns a ranking of chunk ids with 0-indexed ranks.
func (h *ChunksDBHandler) SelectChunksBySimilarity(embedding []float32, limit int, threshold float64) ([]model.SearchResult, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3)`,
		pgvector.NewVector(embedding),
		limit,
		threshold,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []model.SearchResult
	for rows.Next() {
		var chunkID, content string
		var similarity float64
		err := rows.Scan(&chunkID, &content, &similarity)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		results = append(results, model.SearchResult{
			DocumentID: chunkID,
			Score:      similarity,
			Rank:       len(results),
		})
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

// DeleteChunk deletes a chunk by its chunk_id
func (h *ChunksDBHandler) DeleteChunk(chunkID string) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_chunk($1)`,
		chunkID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// ChangeIndexType changes the vector index type between HNSW and IVFFlat
func (h *ChunksDBHandler) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	var lists, m, efConstruction interface{}
	if v, ok := params["lists"]; ok {
		lists = v
	}
	if v, ok := params["m"]; ok {
		m = v
	}
	if v, ok := params["ef_construction"]; ok {
		efConstruction = v
	}

	_, err := h.db.Instance.ExecContext(
		ctx,
		`SELECT change_chunk_index_type($1, $2, $3, $4)`,
		indexType,
		lists,
		m,
		efConstruction,
	)
	if err != nil {
		return helper.NewError("change index type", err)
	}
	return nil
}
