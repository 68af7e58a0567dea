package pipeline

import (
	"testing"

	"github.com/castellan/storygraph/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCandidates(t *testing.T) {
	generator := NewCandidateGenerator(nil)

	t.Run("Groups mentions by type and normalized text", func(t *testing.T) {
		mentions := []*model.Mention{
			{Text: "James Bond", Type: model.EntityTypePerson, Confidence: 0.9, SentenceContext: "ctx1", SourceChunkID: "c#0"},
			{Text: "james bond", Type: model.EntityTypePerson, Confidence: 0.7, SentenceContext: "ctx2", SourceChunkID: "c#1"},
			{Text: "London", Type: model.EntityTypeLocation, Confidence: 0.8, SourceChunkID: "c#0"},
		}

		candidates := generator.GenerateCandidates(mentions, "doc-1")

		require.Len(t, candidates, 2)
		bond := candidates[0]
		assert.Equal(t, "James Bond", bond.CanonicalText, "Expected the highest-confidence surface form as canonical")
		assert.Equal(t, model.EntityTypePerson, bond.Type)
		assert.Equal(t, 0.9, bond.Confidence, "Expected the maximum mention confidence")
		assert.Equal(t, 2, bond.MentionCount)
		assert.ElementsMatch(t, []string{"James Bond", "james bond"}, bond.Aliases)
		assert.Equal(t, []string{"ctx1", "ctx2"}, bond.Contexts)
		assert.ElementsMatch(t, []string{"c#0", "c#1"}, bond.SourceChunkIDs)
		assert.Equal(t, model.CandidateStatusPending, bond.Status)
		assert.Equal(t, "doc-1", bond.SourceDocument)
	})

	t.Run("Canonical follows the highest confidence mention", func(t *testing.T) {
		mentions := []*model.Mention{
			{Text: "gandalf", Type: model.EntityTypePerson, Confidence: 0.4},
			{Text: "Gandalf", Type: model.EntityTypePerson, Confidence: 0.95},
		}

		candidates := generator.GenerateCandidates(mentions, "doc-1")

		require.Len(t, candidates, 1)
		assert.Equal(t, "Gandalf", candidates[0].CanonicalText)
	})

	t.Run("Same text different types stay separate", func(t *testing.T) {
		mentions := []*model.Mention{
			{Text: "Phoenix", Type: model.EntityTypePerson, Confidence: 0.8},
			{Text: "Phoenix", Type: model.EntityTypeLocation, Confidence: 0.8},
		}

		candidates := generator.GenerateCandidates(mentions, "doc-1")
		assert.Len(t, candidates, 2)
	})

	t.Run("Blank mentions are dropped", func(t *testing.T) {
		mentions := []*model.Mention{
			{Text: "   ", Type: model.EntityTypePerson, Confidence: 0.8},
			{Text: "", Type: model.EntityTypePerson, Confidence: 0.8},
		}

		candidates := generator.GenerateCandidates(mentions, "doc-1")
		assert.Empty(t, candidates)
	})

	t.Run("Output order follows first appearance", func(t *testing.T) {
		mentions := []*model.Mention{
			{Text: "Zeta", Type: model.EntityTypePerson, Confidence: 0.8},
			{Text: "Alpha", Type: model.EntityTypePerson, Confidence: 0.8},
			{Text: "Zeta", Type: model.EntityTypePerson, Confidence: 0.8},
		}

		candidates := generator.GenerateCandidates(mentions, "doc-1")

		require.Len(t, candidates, 2)
		assert.Equal(t, "Zeta", candidates[0].CanonicalText)
		assert.Equal(t, "Alpha", candidates[1].CanonicalText)
	})
}
