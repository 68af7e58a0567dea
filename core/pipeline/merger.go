package pipeline

import (
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/castellan/storygraph/model"
	"github.com/google/uuid"
)

// MergeRule identifies which eligibility rule matched a pair.
// Precedence is exact > substring > fuzzy.
type MergeRule string

const (
	MergeRuleExact     MergeRule = "exact"
	MergeRuleSubstring MergeRule = "substring"
	MergeRuleFuzzy     MergeRule = "fuzzy"
)

// MergePair is an eligible merge between two candidates.
type MergePair struct {
	LeftID     uuid.UUID `json:"left_id"`
	RightID    uuid.UUID `json:"right_id"`
	Rule       MergeRule `json:"rule"`
	Similarity float64   `json:"similarity"`
}

// Merger resolves duplicate candidates into canonical ones. Merging is
// implemented as union-find clustering over a deterministically sorted
// candidate list, so the outcome does not depend on input order.
type Merger struct {
	config *model.MergeConfig
	mu     sync.Mutex
}

// NewMerger creates a merger. A nil config uses the defaults.
func NewMerger(config *model.MergeConfig) *Merger {
	if config == nil {
		config = model.DefaultMergeConfig()
	}
	return &Merger{config: config}
}

// mergeRule returns the strongest rule making two candidates merge
// eligible, or "" when they must stay separate. Candidates of
// different types or with empty canonical text never merge.
func (m *Merger) mergeRule(a, b *model.Candidate) (MergeRule, float64) {
	if a.Type != b.Type {
		return "", 0
	}

	aKey := model.NormalizeKey(a.CanonicalText)
	bKey := model.NormalizeKey(b.CanonicalText)
	if aKey == "" || bKey == "" {
		return "", 0
	}

	if aKey == bKey {
		return MergeRuleExact, 1
	}
	if m.substringMatch(aKey, bKey) {
		return MergeRuleSubstring, 1
	}
	if ratio := similarityRatio(aKey, bKey); ratio >= m.config.SimilarityThreshold {
		return MergeRuleFuzzy, ratio
	}
	return "", 0
}

// substringMatch reports whether the shorter normalized text appears in
// the longer one on token boundaries ("gandalf" in "gandalf the grey",
// but not "ring" in "hastings").
func (m *Merger) substringMatch(aKey, bKey string) bool {
	shorter, longer := aKey, bKey
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) < m.config.MinSubstringLen {
		return false
	}
	return strings.Contains(" "+longer+" ", " "+shorter+" ")
}

// similarityRatio is the normalized edit-distance similarity in [0, 1].
func similarityRatio(a, b string) float64 {
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(maxLen)
}

// FindMergeCandidates returns all eligible pairs among the candidates,
// in a deterministic order.
func (m *Merger) FindMergeCandidates(candidates []*model.Candidate) []MergePair {
	sorted := sortedCopy(candidates)

	var pairs []MergePair
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			rule, similarity := m.mergeRule(sorted[i], sorted[j])
			if rule == "" {
				continue
			}
			pairs = append(pairs, MergePair{
				LeftID:     sorted[i].ID,
				RightID:    sorted[j].ID,
				Rule:       rule,
				Similarity: similarity,
			})
		}
	}
	return pairs
}

// Merge resolves the candidate set into canonical candidates. Eligible
// candidates are clustered transitively; each cluster collapses into
// one candidate keeping the higher-confidence canonical text (ties
// broken by longer, then lexicographically smaller text), the union of
// aliases, bounded contexts and the maximum confidence. Candidates with
// empty canonical text pass through unmerged. Merge is safe for
// concurrent use.
func (m *Merger) Merge(candidates []*model.Candidate) []*model.Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()

	sorted := sortedCopy(candidates)

	parent := make([]int, len(sorted))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri != rj {
			parent[rj] = ri
		}
	}

	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if rule, _ := m.mergeRule(sorted[i], sorted[j]); rule != "" {
				union(i, j)
			}
		}
	}

	clusters := map[int][]*model.Candidate{}
	var clusterOrder []int
	for i, candidate := range sorted {
		root := find(i)
		if _, ok := clusters[root]; !ok {
			clusterOrder = append(clusterOrder, root)
		}
		clusters[root] = append(clusters[root], candidate)
	}

	merged := make([]*model.Candidate, 0, len(clusterOrder))
	for _, root := range clusterOrder {
		merged = append(merged, m.collapse(clusters[root]))
	}
	return merged
}

// collapse merges a cluster into a single candidate. The cluster is
// processed in sorted order, so the result is stable across input
// permutations.
func (m *Merger) collapse(cluster []*model.Candidate) *model.Candidate {
	result := &model.Candidate{
		ID:             cluster[0].ID,
		CanonicalText:  cluster[0].CanonicalText,
		Type:           cluster[0].Type,
		Confidence:     cluster[0].Confidence,
		Status:         cluster[0].Status,
		SourceDocument: cluster[0].SourceDocument,
	}

	for _, candidate := range cluster {
		if preferCanonical(candidate, result) {
			result.CanonicalText = candidate.CanonicalText
		}
		if candidate.Confidence > result.Confidence {
			result.Confidence = candidate.Confidence
		}
		result.MentionCount += candidate.MentionCount

		result.AddAlias(candidate.CanonicalText)
		for _, alias := range candidate.Aliases {
			result.AddAlias(alias)
		}
		for _, context := range candidate.Contexts {
			result.AddContext(context, m.config.MaxContexts)
		}
		for _, chunkID := range candidate.SourceChunkIDs {
			result.AddSourceChunk(chunkID)
		}
		if candidate.SourceDocument != result.SourceDocument {
			result.SourceDocument = ""
		}
	}

	return result
}

// preferCanonical reports whether the challenger's canonical text
// should replace the incumbent's: higher confidence wins, ties go to
// the longer text, then the lexicographically smaller one.
func preferCanonical(challenger, incumbent *model.Candidate) bool {
	if challenger.Confidence != incumbent.Confidence {
		return challenger.Confidence > incumbent.Confidence
	}
	if len(challenger.CanonicalText) != len(incumbent.CanonicalText) {
		return len(challenger.CanonicalText) > len(incumbent.CanonicalText)
	}
	return challenger.CanonicalText < incumbent.CanonicalText
}

// sortedCopy orders candidates by (type, normalized text, id) so that
// clustering and collapsing see the same sequence regardless of the
// caller's ordering.
func sortedCopy(candidates []*model.Candidate) []*model.Candidate {
	sorted := make([]*model.Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Type != sorted[j].Type {
			return sorted[i].Type < sorted[j].Type
		}
		iKey := model.NormalizeKey(sorted[i].CanonicalText)
		jKey := model.NormalizeKey(sorted[j].CanonicalText)
		if iKey != jKey {
			return iKey < jKey
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})
	return sorted
}
