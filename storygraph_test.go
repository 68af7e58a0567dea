package storygraph

import (
	"context"
	"strings"
	"testing"

	"github.com/castellan/storygraph/core/pipeline"
	"github.com/castellan/storygraph/core/validation"
	"github.com/castellan/storygraph/database"
	"github.com/castellan/storygraph/helper"
	"github.com/castellan/storygraph/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEmbeddingDim = 8

// testEmbedder creates a simple deterministic embedder for testing
func testEmbedder(dimension int) pipeline.EmbedFunc {
	return func(text string) ([]float32, error) {
		embedding := make([]float32, dimension)
		for i := 0; i < dimension; i++ {
			embedding[i] = float32((len(text)+i)%100) / 100.0
		}
		return embedding, nil
	}
}

// testExtractor emulates an NER engine with a fixed gazetteer so the
// end-to-end tests do not depend on model downloads.
type testExtractor struct {
	labels map[string]string
}

func newTestExtractor() *testExtractor {
	return &testExtractor{labels: map[string]string{
		"James Bond":  "PER",
		"Vesper Lynd": "PER",
		"London":      "GPE",
		"MI6":         "ORG",
		"Gandalf":     "PER",
	}}
}

func (e *testExtractor) Extract(ctx context.Context, text string) ([]*model.Mention, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var mentions []*model.Mention
	for name, label := range e.labels {
		for offset := 0; ; {
			idx := strings.Index(text[offset:], name)
			if idx < 0 {
				break
			}
			start := offset + idx
			mentions = append(mentions, &model.Mention{
				Text:            name,
				Label:           label,
				Confidence:      0.9,
				StartOffset:     start,
				EndOffset:       start + len(name),
				SentenceContext: text,
			})
			offset = start + len(name)
		}
	}
	return mentions, nil
}

func (e *testExtractor) Mode() pipeline.ExtractorMode {
	return pipeline.ModeModel
}

func initStoryGraph(t *testing.T) *StoryGraph {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")

	s, err := NewWithOptions(dbConfig, testEmbeddingDim, Options{
		Extractor: newTestExtractor(),
		Embedder:  testEmbedder(testEmbeddingDim),
	})
	require.NoError(t, err, "failed to create storygraph")
	require.NotNil(t, s)

	s.SetPipeline(pipeline.NewPipeline(pipeline.SentenceChunker(2), testEmbedder(testEmbeddingDim)))

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func TestNew(t *testing.T) {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err)

	t.Run("Valid call NewWithOptions", func(t *testing.T) {
		s, err := NewWithOptions(dbConfig, testEmbeddingDim, Options{
			Extractor: newTestExtractor(),
			Embedder:  testEmbedder(testEmbeddingDim),
		})
		require.NoError(t, err, "Expected NewWithOptions to not return an error")
		require.NotNil(t, s)
		assert.NotNil(t, s.DB)
		assert.NotNil(t, s.Documents)
		assert.NotNil(t, s.Chunks)
		assert.NotNil(t, s.Nodes)
		assert.NotNil(t, s.Edges)
		assert.NotNil(t, s.Engine)
		assert.Nil(t, s.Pipeline, "Expected pipeline to be nil initially")
		assert.Equal(t, pipeline.ModeModel, s.ExtractionMode())

		err = s.Close()
		assert.NoError(t, err)
	})

	t.Run("Close handles nil DB gracefully", func(t *testing.T) {
		s := &StoryGraph{extractor: newTestExtractor()}
		assert.NoError(t, s.Close())
	})
}

func TestIngestDocument(t *testing.T) {
	s := initStoryGraph(t)

	t.Run("Document is chunked, embedded and stored", func(t *testing.T) {
		doc := &model.Document{
			Title:   "Casino Royale",
			Source:  "manuscripts/casino.txt",
			Content: "James Bond arrived in London. He reported to MI6 at once. Vesper Lynd was waiting there.",
		}

		chunks, err := s.IngestDocument(context.Background(), doc)

		require.NoError(t, err)
		require.Len(t, chunks, 2, "Expected two chunks of two sentences")
		assert.Empty(t, doc.Content, "Expected content to not be stored on the document")

		stored, err := s.Chunks.SelectChunksByDocument(doc.RID)
		require.NoError(t, err)
		assert.Len(t, stored, 2)
		assert.Len(t, stored[0].Embedding, testEmbeddingDim)
	})

	t.Run("Missing pipeline is an error", func(t *testing.T) {
		bare := &StoryGraph{}
		_, err := bare.IngestDocument(context.Background(), &model.Document{Content: "text"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "pipeline not set")
	})

	t.Run("Empty content is an error", func(t *testing.T) {
		_, err := s.IngestDocument(context.Background(), &model.Document{Title: "Empty"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "content is empty")
	})
}

func TestIngestChunks(t *testing.T) {
	s := initStoryGraph(t)

	chunks := []model.IngestChunk{
		{ChunkID: "ing#0", DocumentID: "doc-ing", Text: "James Bond arrived in London."},
		{ChunkID: "ing#1", DocumentID: "doc-ing", Text: "James Bond reported to MI6."},
	}

	candidates, report, err := s.IngestChunks(context.Background(), chunks)

	require.NoError(t, err)
	require.NotNil(t, report)
	assert.False(t, report.Degraded)

	byText := map[string]*model.Candidate{}
	for _, c := range candidates {
		byText[c.CanonicalText] = c
	}

	require.Contains(t, byText, "James Bond")
	bond := byText["James Bond"]
	assert.Equal(t, model.EntityTypePerson, bond.Type)
	assert.Equal(t, 2, bond.MentionCount, "Expected both mentions grouped into one candidate")
	assert.ElementsMatch(t, []string{"ing#0", "ing#1"}, bond.SourceChunkIDs)
	assert.Equal(t, model.CandidateStatusPending, bond.Status)

	require.Contains(t, byText, "London")
	assert.Equal(t, model.EntityTypeLocation, byText["London"].Type)
	require.Contains(t, byText, "MI6")
	assert.Equal(t, model.EntityTypeOrganization, byText["MI6"].Type)
}

func TestIngestChunksAcrossDocuments(t *testing.T) {
	s := initStoryGraph(t)

	chunks := []model.IngestChunk{
		{ChunkID: "mixed-a#0", DocumentID: "doc-a", Text: "Vesper Lynd waited at the station."},
		{ChunkID: "mixed-b#0", DocumentID: "doc-b", Text: "Gandalf rode towards the city."},
	}

	candidates, report, err := s.IngestChunks(context.Background(), chunks)

	require.NoError(t, err)
	require.NotNil(t, report)

	byText := map[string]*model.Candidate{}
	for _, c := range candidates {
		byText[c.CanonicalText] = c
	}

	require.Contains(t, byText, "Vesper Lynd")
	assert.Equal(t, "doc-a", byText["Vesper Lynd"].SourceDocument, "Expected each candidate to carry its own source document")
	require.Contains(t, byText, "Gandalf")
	assert.Equal(t, "doc-b", byText["Gandalf"].SourceDocument)
}

func TestReviewAndCommit(t *testing.T) {
	s := initStoryGraph(t)

	chunks := []model.IngestChunk{
		{ChunkID: "com#0", DocumentID: "doc-com", Text: "James Bond reported to MI6 in London."},
	}
	candidates, _, err := s.IngestChunks(context.Background(), chunks)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)

	stats := s.Review(candidates)
	assert.Equal(t, stats.Total, stats.Accepted, "Expected AutoAcceptAll to accept everything")
	assert.Zero(t, stats.Pending)

	nodes, err := s.CommitAccepted(context.Background(), candidates, "commit-scope")
	require.NoError(t, err)
	require.Len(t, nodes, len(candidates))

	t.Run("Committed nodes are queryable by name", func(t *testing.T) {
		node, err := s.Nodes.SelectNodeByName("james bond", nil)
		require.NoError(t, err)
		assert.Equal(t, model.DeriveNodeID("James Bond", model.EntityTypePerson), node.ID)
	})

	t.Run("Mentions link nodes to chunks", func(t *testing.T) {
		node, err := s.Nodes.SelectNodeByName("MI6", nil)
		require.NoError(t, err)

		results, err := s.Nodes.SelectChunksMentioningNode(node.ID, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "com#0", results[0].DocumentID)
	})

	t.Run("Re-committing is idempotent", func(t *testing.T) {
		again, err := s.CommitAccepted(context.Background(), candidates, "commit-scope")
		require.NoError(t, err)

		graph, err := s.GetGraph("commit-scope")
		require.NoError(t, err)
		assert.Len(t, graph.Nodes, len(again), "Expected no duplicate nodes after re-commit")
	})

	t.Run("Rejected candidates are not committed", func(t *testing.T) {
		rejected := []*model.Candidate{{
			ID:            uuid.New(),
			CanonicalText: "Le Chiffre",
			Type:          model.EntityTypePerson,
			Status:        model.CandidateStatusRejected,
		}}

		nodes, err := s.CommitAccepted(context.Background(), rejected, "commit-scope")
		require.NoError(t, err)
		assert.Empty(t, nodes)
	})
}

func TestMergeAcrossSurfaceForms(t *testing.T) {
	s := initStoryGraph(t)

	chunks := []model.IngestChunk{
		{ChunkID: "gan#0", DocumentID: "doc-gan", Text: "Gandalf raised his staff."},
		{ChunkID: "gan#1", DocumentID: "doc-gan", Text: "Gandalf spoke softly to Frodo."},
	}

	candidates, _, err := s.IngestChunks(context.Background(), chunks)
	require.NoError(t, err)

	var gandalf *model.Candidate
	for _, c := range candidates {
		if c.CanonicalText == "Gandalf" {
			gandalf = c
		}
	}
	require.NotNil(t, gandalf)
	assert.Equal(t, 2, gandalf.MentionCount)
	assert.ElementsMatch(t, []string{"gan#0", "gan#1"}, gandalf.SourceChunkIDs)
}

func TestAssertEdge(t *testing.T) {
	s := initStoryGraph(t)

	chunks := []model.IngestChunk{
		{ChunkID: "edge#0", DocumentID: "doc-edge", Text: "James Bond reported to MI6."},
	}
	candidates, _, err := s.IngestChunks(context.Background(), chunks)
	require.NoError(t, err)
	s.Review(candidates)
	_, err = s.CommitAccepted(context.Background(), candidates, "edge-scope")
	require.NoError(t, err)

	bondID := model.DeriveNodeID("James Bond", model.EntityTypePerson)
	mi6ID := model.DeriveNodeID("MI6", model.EntityTypeOrganization)

	t.Run("Edge between committed nodes", func(t *testing.T) {
		edge, err := s.AssertEdge(bondID, mi6ID, "works_for", 0.9)
		require.NoError(t, err)
		require.NotNil(t, edge)
		assert.Equal(t, "works_for", edge.Label)
	})

	t.Run("Edge to a missing node is refused", func(t *testing.T) {
		_, err := s.AssertEdge(bondID, uuid.New(), "knows", 0.5)
		assert.ErrorIs(t, err, database.ErrDanglingReference)
	})
}

func TestQuery(t *testing.T) {
	s := initStoryGraph(t)

	doc := &model.Document{
		Title:   "Query Manuscript",
		Source:  "manuscripts/query.txt",
		Content: "James Bond arrived in London. He reported to MI6 at once. The harbor was quiet that evening. Nobody noticed the small boat.",
	}
	chunks, err := s.IngestDocument(context.Background(), doc)
	require.NoError(t, err)

	candidates, _, err := s.IngestChunks(context.Background(), pipeline.IngestChunks(chunks))
	require.NoError(t, err)
	s.Review(candidates)
	_, err = s.CommitAccepted(context.Background(), candidates, "query-scope")
	require.NoError(t, err)

	t.Run("Hybrid query fuses vector and graph rankers", func(t *testing.T) {
		response, err := s.Query(context.Background(), "Where does James Bond report?", 5)

		require.NoError(t, err)
		require.NotNil(t, response)
		assert.False(t, response.Degraded)
		assert.Contains(t, response.Rankers, model.RankerVector)
		assert.Contains(t, response.Rankers, model.RankerGraph)
		assert.NotEmpty(t, response.Results)
		require.NotNil(t, response.MatchedNode)
		assert.Equal(t, "James Bond", response.MatchedNode.Name)
	})

	t.Run("Query without entity matches still returns vector results", func(t *testing.T) {
		response, err := s.Query(context.Background(), "a quiet harbor evening", 5)

		require.NoError(t, err)
		assert.False(t, response.Degraded)
		assert.Equal(t, []string{model.RankerVector}, response.Rankers)
		assert.NotEmpty(t, response.Results)
		assert.Nil(t, response.MatchedNode)
	})
}

func TestValidationGate(t *testing.T) {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err)

	s, err := NewWithOptions(dbConfig, testEmbeddingDim, Options{
		Extractor:    newTestExtractor(),
		Embedder:     testEmbedder(testEmbeddingDim),
		ReviewPolicy: validation.InteractiveReview,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	chunks := []model.IngestChunk{
		{ChunkID: "gate#0", DocumentID: "doc-gate", Text: "Vesper Lynd was waiting."},
	}
	candidates, _, err := s.IngestChunks(context.Background(), chunks)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)

	stats := s.Review(candidates)
	assert.Equal(t, stats.Total, stats.Pending, "Expected InteractiveReview to leave candidates pending")

	nodes, err := s.CommitAccepted(context.Background(), candidates, "gate-scope")
	require.NoError(t, err)
	assert.Empty(t, nodes, "Expected pending candidates to stay out of the graph")
}
