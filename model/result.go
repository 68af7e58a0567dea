package model

// Ranker names identify which sub-ranker contributed a result.
const (
	RankerVector = "vector"
	RankerGraph  = "graph"
)

// SearchResult is the output of a single ranker: one document (chunk)
// with the ranker's own score and 0-indexed rank.
type SearchResult struct {
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
}

// FusedResult is one entry of a reciprocal-rank-fused ranking, with
// provenance of which rankers contained the document.
type FusedResult struct {
	DocumentID string   `json:"document_id"`
	FusedScore float64  `json:"fused_score"`
	Sources    []string `json:"sources,omitempty"`
}

// SearchResponse is the outcome of a hybrid query. Degraded is set
// when one of the sub-rankers timed out or failed and fusion ran over
// the remaining rankings only.
type SearchResponse struct {
	Results  []FusedResult `json:"results"`
	Rankers  []string      `json:"rankers"`
	Degraded bool          `json:"degraded"`
	// MatchedNode is the graph node resolved from the query, if any.
	MatchedNode *GraphNode `json:"matched_node,omitempty"`
}
