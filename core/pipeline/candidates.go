package pipeline

import (
	"strings"

	"github.com/castellan/storygraph/model"
	"github.com/google/uuid"
)

// CandidateGenerator groups classified mentions of one document into
// entity candidates. Grouping is document-local; cross-document
// resolution is the merger's job.
type CandidateGenerator struct {
	maxContexts int
}

// NewCandidateGenerator creates a generator. A nil config uses the
// default merge parameters.
func NewCandidateGenerator(config *model.MergeConfig) *CandidateGenerator {
	if config == nil {
		config = model.DefaultMergeConfig()
	}
	return &CandidateGenerator{maxContexts: config.MaxContexts}
}

// GenerateCandidates groups mentions by (type, normalized text). Each
// group yields one Pending candidate whose canonical text is the
// highest-confidence surface form, whose aliases are all observed
// surface forms and whose confidence is the maximum mention confidence.
// Output order follows first appearance of each group.
func (g *CandidateGenerator) GenerateCandidates(mentions []*model.Mention, documentID string) []*model.Candidate {
	groups := map[string]*model.Candidate{}
	var order []string

	for _, m := range mentions {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}

		key := string(m.Type) + "|" + model.NormalizeKey(m.Text)
		candidate, ok := groups[key]
		if !ok {
			candidate = &model.Candidate{
				ID:             uuid.New(),
				CanonicalText:  m.Text,
				Type:           m.Type,
				Confidence:     m.Confidence,
				Status:         model.CandidateStatusPending,
				SourceDocument: documentID,
			}
			groups[key] = candidate
			order = append(order, key)
		}

		candidate.AddAlias(m.Text)
		candidate.AddContext(m.SentenceContext, g.maxContexts)
		candidate.AddSourceChunk(m.SourceChunkID)
		candidate.MentionCount++

		if m.Confidence > candidate.Confidence {
			candidate.Confidence = m.Confidence
			candidate.CanonicalText = m.Text
		}
	}

	candidates := make([]*model.Candidate, 0, len(order))
	for _, key := range order {
		candidates = append(candidates, groups[key])
	}
	return candidates
}
