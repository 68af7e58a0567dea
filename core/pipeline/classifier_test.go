package pipeline

import (
	"testing"

	"github.com/castellan/storygraph/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapLabel(t *testing.T) {
	tests := []struct {
		label    string
		expected model.EntityType
	}{
		{"PER", model.EntityTypePerson},
		{"PERSON", model.EntityTypePerson},
		{"B-PER", model.EntityTypePerson},
		{"LOC", model.EntityTypeLocation},
		{"GPE", model.EntityTypeLocation},
		{"FAC", model.EntityTypeLocation},
		{"ORG", model.EntityTypeOrganization},
		{"I-ORG", model.EntityTypeOrganization},
		{"organization", model.EntityTypeOrganization},
		{"MISC", model.EntityTypeOther},
		{"", model.EntityTypeOther},
		{"WORK_OF_ART", model.EntityTypeOther},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, MapLabel(tt.label), "Expected label %q to map to %q", tt.label, tt.expected)
	}
}

func TestClassifyMentions(t *testing.T) {
	t.Run("Annotates copies without mutating input", func(t *testing.T) {
		mentions := []*model.Mention{
			{Text: "James Bond", Label: "PER", Confidence: 0.95},
			{Text: "London", Label: "GPE", Confidence: 0.8},
		}

		classified := ClassifyMentions(mentions)

		require.Len(t, classified, 2)
		assert.Equal(t, model.EntityTypePerson, classified[0].Type)
		assert.Equal(t, model.EntityTypeLocation, classified[1].Type)
		assert.Empty(t, mentions[0].Type, "Expected input mentions to stay untouched")
	})

	t.Run("Clamps confidence into range", func(t *testing.T) {
		mentions := []*model.Mention{
			{Text: "A", Label: "PER", Confidence: 1.7},
			{Text: "B", Label: "PER", Confidence: -0.3},
		}

		classified := ClassifyMentions(mentions)

		assert.Equal(t, 1.0, classified[0].Confidence)
		assert.Equal(t, 0.0, classified[1].Confidence)
	})

	t.Run("Missing confidence defaults to 0.5", func(t *testing.T) {
		classified := ClassifyMentions([]*model.Mention{{Text: "MI6", Label: "ORG"}})
		require.Len(t, classified, 1)
		assert.Equal(t, 0.5, classified[0].Confidence)
	})
}
