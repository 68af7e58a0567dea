package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/castellan/storygraph/core/pipeline"
	"github.com/castellan/storygraph/database"
	"github.com/castellan/storygraph/model"
	"github.com/google/uuid"
)

// VectorSearcher is the vector store boundary of the engine, satisfied
// by database.ChunksDBHandler.
type VectorSearcher interface {
	SelectChunksBySimilarity(embedding []float32, limit int, threshold float64) ([]model.SearchResult, error)
}

// GraphSearcher is the knowledge graph boundary of the engine,
// satisfied by database.NodesDBHandler.
type GraphSearcher interface {
	SelectNodeByName(name string, entityType *model.EntityType) (*model.GraphNode, error)
	SearchNodes(term string, entityType *model.EntityType, limit int) ([]*model.GraphNode, error)
	SelectChunksMentioningNode(nodeID uuid.UUID, limit int) ([]model.SearchResult, error)
}

// Engine answers queries by fusing a vector similarity ranking with a
// graph entity-mention ranking.
type Engine struct {
	vector   VectorSearcher
	graph    GraphSearcher
	embedder pipeline.EmbedFunc
	config   *model.QueryConfig
	logger   *slog.Logger
}

// NewEngine creates a hybrid search engine. A nil config uses the
// defaults.
func NewEngine(vector VectorSearcher, graph GraphSearcher, embedder pipeline.EmbedFunc, config *model.QueryConfig, logger *slog.Logger) *Engine {
	if config == nil {
		config = model.DefaultQueryConfig()
	}
	return &Engine{
		vector:   vector,
		graph:    graph,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}
}

// SemanticSearch embeds the query and ranks stored chunks by cosine
// similarity.
func (e *Engine) SemanticSearch(ctx context.Context, query string, k int) ([]model.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}

	embedding, err := e.embedder(query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return e.vector.SelectChunksBySimilarity(embedding, k, e.config.SimilarityThreshold)
}

// EntitySearch resolves an entity name to a graph node (exact match
// first, fuzzy second) and ranks the chunks mentioning it. A name that
// resolves to no node yields an empty ranking, not an error.
func (e *Engine) EntitySearch(ctx context.Context, name string) (*model.GraphNode, []model.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	node, err := e.graph.SelectNodeByName(name, nil)
	if err != nil && !errors.Is(err, database.ErrNodeNotFound) {
		return nil, nil, err
	}
	if node == nil {
		nodes, searchErr := e.graph.SearchNodes(name, nil, 1)
		if searchErr != nil {
			return nil, nil, searchErr
		}
		if len(nodes) == 0 {
			return nil, nil, nil
		}
		node = nodes[0]
	}

	results, err := e.graph.SelectChunksMentioningNode(node.ID, e.config.GraphLimit)
	if err != nil {
		return nil, nil, err
	}
	return node, results, nil
}

// HybridSearch runs the vector and graph rankers under per-ranker
// timeouts and fuses their rankings with reciprocal rank fusion. A
// failed or timed-out ranker degrades the response to the remaining
// ranking instead of failing the query.
func (e *Engine) HybridSearch(ctx context.Context, query string, k int) (*model.SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = e.config.TopK
	}

	response := &model.SearchResponse{}
	var rankings []Ranking

	vectorResults, err := e.runWithTimeout(ctx, func(ctx context.Context) ([]model.SearchResult, error) {
		return e.SemanticSearch(ctx, query, k)
	})
	if err != nil {
		e.logger.Warn("vector ranker unavailable", slog.String("error", err.Error()))
		response.Degraded = true
	} else {
		rankings = append(rankings, Ranking{Name: model.RankerVector, IDs: documentIDs(vectorResults)})
		response.Rankers = append(response.Rankers, model.RankerVector)
	}

	var node *model.GraphNode
	graphResults, err := e.runWithTimeout(ctx, func(ctx context.Context) ([]model.SearchResult, error) {
		var results []model.SearchResult
		var err error
		node, results, err = e.entitySearchForQuery(ctx, query)
		return results, err
	})
	if err != nil {
		e.logger.Warn("graph ranker unavailable", slog.String("error", err.Error()))
		response.Degraded = true
	} else if len(graphResults) > 0 {
		rankings = append(rankings, Ranking{Name: model.RankerGraph, IDs: documentIDs(graphResults)})
		response.Rankers = append(response.Rankers, model.RankerGraph)
		response.MatchedNode = node
	}

	fused := ReciprocalRankFusion(rankings, e.config.RRFConstant)
	if len(fused) > k {
		fused = fused[:k]
	}
	response.Results = fused

	return response, nil
}

// entitySearchForQuery derives entity name candidates from the query
// and returns the ranking of the first one that resolves to a node.
func (e *Engine) entitySearchForQuery(ctx context.Context, query string) (*model.GraphNode, []model.SearchResult, error) {
	for _, term := range queryEntityTerms(query) {
		node, results, err := e.EntitySearch(ctx, term)
		if err != nil {
			return nil, nil, err
		}
		if node != nil {
			return node, results, nil
		}
	}
	return nil, nil, nil
}

// queryEntityTerms proposes entity names from a query: runs the
// capitalization heuristic, joins adjacent capitalized tokens into
// phrases and returns phrases before single tokens.
func queryEntityTerms(query string) []string {
	extractor := pipeline.NewHeuristicExtractor()
	mentions, err := extractor.Extract(context.Background(), query)
	if err != nil || len(mentions) == 0 {
		return nil
	}

	var phrases []string
	var singles []string
	currentPhrase := mentions[0].Text
	phraseEnd := mentions[0].EndOffset

	for _, m := range mentions[1:] {
		if m.StartOffset == phraseEnd+1 {
			currentPhrase += " " + m.Text
		} else {
			phrases = append(phrases, currentPhrase)
			currentPhrase = m.Text
		}
		phraseEnd = m.EndOffset
	}
	phrases = append(phrases, currentPhrase)

	for _, m := range mentions {
		singles = append(singles, m.Text)
	}

	seen := map[string]bool{}
	var terms []string
	for _, term := range append(phrases, singles...) {
		if !seen[term] {
			seen[term] = true
			terms = append(terms, term)
		}
	}
	return terms
}

// runWithTimeout executes a ranker under the configured per-ranker
// timeout. The ranker runs in its own goroutine so a stalled store
// cannot block the query past the deadline.
func (e *Engine) runWithTimeout(ctx context.Context, ranker func(ctx context.Context) ([]model.SearchResult, error)) ([]model.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.RankerTimeout)
	defer cancel()

	type outcome struct {
		results []model.SearchResult
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		results, err := ranker(ctx)
		done <- outcome{results: results, err: err}
	}()

	select {
	case o := <-done:
		return o.results, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func documentIDs(results []model.SearchResult) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.DocumentID)
	}
	return ids
}
