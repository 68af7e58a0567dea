package retrieval

import (
	"sort"

	"github.com/castellan/storygraph/model"
)

// DefaultRRFConstant is the standard smoothing constant for reciprocal
// rank fusion.
const DefaultRRFConstant = 60

// Ranking is one ranker's ordered list of document (chunk) ids, best
// first.
type Ranking struct {
	Name string
	IDs  []string
}

// ReciprocalRankFusion fuses multiple rankings into one. Every ranking
// contributes 1/(kConst+rank) per document with 0-indexed ranks; a
// document absent from a ranking gets no contribution from it. The
// fused ranking is ordered by descending score; equal scores keep the
// order in which the documents were first seen across the input
// rankings. kConst <= 0 falls back to DefaultRRFConstant.
func ReciprocalRankFusion(rankings []Ranking, kConst int) []model.FusedResult {
	if kConst <= 0 {
		kConst = DefaultRRFConstant
	}

	scores := map[string]*model.FusedResult{}
	var firstSeen []string

	for _, ranking := range rankings {
		for rank, documentID := range ranking.IDs {
			fused, ok := scores[documentID]
			if !ok {
				fused = &model.FusedResult{DocumentID: documentID}
				scores[documentID] = fused
				firstSeen = append(firstSeen, documentID)
			}
			fused.FusedScore += 1 / float64(kConst+rank)
			fused.Sources = append(fused.Sources, ranking.Name)
		}
	}

	results := make([]model.FusedResult, 0, len(firstSeen))
	for _, documentID := range firstSeen {
		results = append(results, *scores[documentID])
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FusedScore > results[j].FusedScore
	})

	return results
}
