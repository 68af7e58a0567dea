// Package storygraph turns raw manuscript text into a reviewed
// knowledge graph of entities and answers questions against it with
// hybrid (vector + graph) retrieval.
package storygraph

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/castellan/storygraph/core/pipeline"
	"github.com/castellan/storygraph/core/retrieval"
	"github.com/castellan/storygraph/core/validation"
	"github.com/castellan/storygraph/database"
	"github.com/castellan/storygraph/helper"
	"github.com/castellan/storygraph/model"
	loadSql "github.com/castellan/storygraph/sql"
	"github.com/google/uuid"
)

// StoryGraph provides a unified interface to the ingestion pipeline,
// the validation reviewer, the database handlers and the search engine.
type StoryGraph struct {
	DB        *helper.Database
	Documents *database.DocumentsDBHandler
	Chunks    *database.ChunksDBHandler
	Nodes     *database.NodesDBHandler
	Edges     *database.EdgesDBHandler
	Pipeline  *pipeline.Pipeline // Optional chunking pipeline
	Engine    *retrieval.Engine  // Retrieval engine for hybrid search
	Reviewer  *validation.Reviewer

	extractor pipeline.Extractor
	batch     *pipeline.BatchExtractor
	generator *pipeline.CandidateGenerator
	merger    *pipeline.Merger
	// Logging
	log *slog.Logger
}

// Options tunes the non-database collaborators of a StoryGraph.
type Options struct {
	// Extractor overrides the default NER extractor (model-backed
	// with heuristic fallback).
	Extractor pipeline.Extractor
	// Embedder overrides the default embedder used for queries.
	Embedder pipeline.EmbedFunc
	// ReviewPolicy defaults to validation.AutoAcceptAll.
	ReviewPolicy validation.Policy
	// MergeConfig defaults to model.DefaultMergeConfig().
	MergeConfig *model.MergeConfig
	// ExtractConfig defaults to model.DefaultExtractConfig().
	ExtractConfig *model.ExtractConfig
	// QueryConfig defaults to model.DefaultQueryConfig().
	QueryConfig *model.QueryConfig
}

// New creates a StoryGraph instance with all handlers initialized
func New(config *helper.DatabaseConfiguration, embeddingDim int) (*StoryGraph, error) {
	return NewWithOptions(config, embeddingDim, Options{})
}

// NewWithOptions creates a StoryGraph with custom collaborators.
func NewWithOptions(config *helper.DatabaseConfiguration, embeddingDim int, options Options) (*StoryGraph, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("storygraph", config, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create all handlers in dependency order (documents before chunks,
	// nodes before edges); force=false to not reload existing functions
	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	chunks, err := database.NewChunksDBHandler(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}

	nodes, err := database.NewNodesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create nodes handler", err)
	}

	edges, err := database.NewEdgesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create edges handler", err)
	}

	extractor := options.Extractor
	if extractor == nil {
		extractor = pipeline.NewExtractor(logger)
	}

	engine := retrieval.NewEngine(chunks, nodes, options.Embedder, options.QueryConfig, logger)

	return &StoryGraph{
		DB:        db,
		Documents: documents,
		Chunks:    chunks,
		Nodes:     nodes,
		Edges:     edges,
		Engine:    engine,
		Reviewer:  validation.NewReviewer(options.ReviewPolicy),
		extractor: extractor,
		batch:     pipeline.NewBatchExtractor(extractor, options.ExtractConfig, logger),
		generator: pipeline.NewCandidateGenerator(options.MergeConfig),
		merger:    pipeline.NewMerger(options.MergeConfig),
		log:       logger,
	}, nil
}

// Close closes the database connection
func (s *StoryGraph) Close() error {
	if closer, ok := s.extractor.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.log.Warn("failed to close extractor", slog.String("error", err.Error()))
		}
	}
	if s.DB != nil && s.DB.Instance != nil {
		return s.DB.Instance.Close()
	}
	return nil
}

// ExtractionMode reports whether extraction runs model-backed or in
// the heuristic fallback mode.
func (s *StoryGraph) ExtractionMode() pipeline.ExtractorMode {
	return s.extractor.Mode()
}

// SetPipeline sets the chunking pipeline for document processing
func (s *StoryGraph) SetPipeline(p *pipeline.Pipeline) {
	s.Pipeline = p
}

// UseDefaultPipeline sets up sentence chunking and the default
// all-MiniLM-L6-v2 embedder (384 dimensions) for both ingestion and
// query embedding.
func (s *StoryGraph) UseDefaultPipeline() error {
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}

	s.Pipeline = pipeline.NewPipeline(pipeline.SentenceChunker(3), embedder)
	s.Engine = retrieval.NewEngine(s.Chunks, s.Nodes, embedder, nil, s.log)
	return nil
}

// IngestDocument stores a document, chunks and embeds its content and
// persists the chunks into the vector store. Returns the stored chunks
// for the extraction stage.
func (s *StoryGraph) IngestDocument(ctx context.Context, doc *model.Document) ([]*model.Chunk, error) {
	if s.Pipeline == nil {
		return nil, helper.NewError("ingest document", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}
	if doc.Content == "" {
		return nil, helper.NewError("ingest document", fmt.Errorf("document content is empty"))
	}
	if err := ctx.Err(); err != nil {
		return nil, helper.NewError("ingest document", err)
	}

	// Content is processed into chunks but not stored on the document
	content := doc.Content
	doc.Content = ""

	if err := s.Documents.InsertDocument(doc); err != nil {
		return nil, helper.NewError("insert document", err)
	}

	s.log.Info("Inserted document", slog.String("document_id", doc.RID.String()), slog.String("title", doc.Title))

	chunks, err := s.Pipeline.Process(content, doc.RID)
	if err != nil {
		return nil, helper.NewError("process chunks", err)
	}

	for i, chunk := range chunks {
		if err := s.Chunks.UpsertChunk(chunk); err != nil {
			return nil, helper.NewError(fmt.Sprintf("upsert chunk %d", i), err)
		}
	}

	s.log.Info("Stored document chunks", slog.Int("num_chunks", len(chunks)), slog.String("document_id", doc.RID.String()))

	return chunks, nil
}

// IngestChunks runs the entity pipeline over already-stored chunks:
// normalize, extract mentions, classify, group into candidates and
// merge duplicates. The returned candidates are Pending and the report
// carries extraction provenance (failed chunks, degraded mode).
func (s *StoryGraph) IngestChunks(ctx context.Context, chunks []model.IngestChunk) ([]*model.Candidate, *pipeline.ExtractionReport, error) {
	normalized := make([]model.IngestChunk, len(chunks))
	for i, chunk := range chunks {
		normalized[i] = chunk
		normalized[i].Text = pipeline.Normalize(chunk.Text)
	}

	report, err := s.batch.ExtractFromChunks(ctx, normalized)
	if err != nil {
		return nil, nil, helper.NewError("extract mentions", err)
	}

	classified := pipeline.ClassifyMentions(report.Mentions)
	report.Mentions = classified

	// Candidate generation is document-local, so a batch mixing
	// documents is split up by the source document of each mention.
	documentOf := make(map[string]string, len(chunks))
	for _, chunk := range chunks {
		documentOf[chunk.ChunkID] = chunk.DocumentID
	}

	byDocument := map[string][]*model.Mention{}
	var documentOrder []string
	for _, mention := range classified {
		documentID := documentOf[mention.SourceChunkID]
		if _, ok := byDocument[documentID]; !ok {
			documentOrder = append(documentOrder, documentID)
		}
		byDocument[documentID] = append(byDocument[documentID], mention)
	}

	var candidates []*model.Candidate
	for _, documentID := range documentOrder {
		candidates = append(candidates, s.generator.GenerateCandidates(byDocument[documentID], documentID)...)
	}
	merged := s.merger.Merge(candidates)

	s.log.Info("Resolved entity candidates",
		slog.Int("num_mentions", len(classified)),
		slog.Int("num_candidates", len(merged)),
		slog.Bool("degraded", report.Degraded))

	return merged, report, nil
}

// Review applies the configured review policy to the candidates.
func (s *StoryGraph) Review(candidates []*model.Candidate) validation.ReviewStats {
	s.Reviewer.Review(candidates)
	return validation.Stats(candidates)
}

// CommitAccepted promotes accepted candidates to graph nodes and
// records which chunks mention them. Pending and rejected candidates
// are skipped.
func (s *StoryGraph) CommitAccepted(ctx context.Context, candidates []*model.Candidate, scope string) ([]*model.GraphNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, helper.NewError("commit candidates", err)
	}

	accepted := validation.Accepted(candidates)
	nodes := make([]*model.GraphNode, 0, len(accepted))
	for _, candidate := range accepted {
		node, err := s.Nodes.UpsertNodeFromCandidate(candidate, scope)
		if err != nil {
			return nodes, helper.NewError("upsert node", err)
		}

		for _, chunkID := range candidate.SourceChunkIDs {
			mention := &model.NodeMention{
				NodeID:     node.ID,
				ChunkID:    chunkID,
				Confidence: candidate.Confidence,
			}
			if err := s.Nodes.InsertNodeMention(mention); err != nil {
				return nodes, helper.NewError("insert node mention", err)
			}
		}

		nodes = append(nodes, node)
	}

	s.log.Info("Committed accepted candidates", slog.Int("num_nodes", len(nodes)), slog.String("scope", scope))

	return nodes, nil
}

// AssertEdge asserts a labeled relationship between two existing graph
// nodes. A missing endpoint yields database.ErrDanglingReference and
// leaves the graph unchanged.
func (s *StoryGraph) AssertEdge(fromID, toID uuid.UUID, label string, confidence float64) (*model.GraphEdge, error) {
	edge := &model.GraphEdge{
		FromID:     fromID,
		ToID:       toID,
		Label:      label,
		Confidence: confidence,
	}
	if err := s.Edges.InsertEdge(edge); err != nil {
		return nil, err
	}
	return edge, nil
}

// GetGraph returns all nodes and edges of a project scope.
func (s *StoryGraph) GetGraph(scope string) (*model.Graph, error) {
	nodes, err := s.Nodes.SelectNodesByScope(scope)
	if err != nil {
		return nil, helper.NewError("select nodes", err)
	}

	edges, err := s.Edges.SelectEdgesByScope(scope)
	if err != nil {
		return nil, helper.NewError("select edges", err)
	}

	return &model.Graph{Nodes: nodes, Edges: edges}, nil
}

// Query is the single search entry point: hybrid retrieval over the
// vector store and the knowledge graph.
func (s *StoryGraph) Query(ctx context.Context, text string, k int) (*model.SearchResponse, error) {
	return s.Engine.HybridSearch(ctx, text, k)
}
