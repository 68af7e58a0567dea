package model

import "time"

// QueryConfig represents configuration for a hybrid retrieval query
type QueryConfig struct {
	// Vector search parameters
	TopK                int     `json:"top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`

	// Fusion parameters
	RRFConstant int `json:"rrf_constant"`

	// Graph lookup parameters
	GraphLimit int `json:"graph_limit"`

	// Per-ranker timeout; an expired ranker contributes an empty
	// ranking instead of failing the query.
	RankerTimeout time.Duration `json:"ranker_timeout"`

	// Scope restricts graph lookups to one project scope.
	Scope string `json:"scope,omitempty"`
}

// DefaultQueryConfig returns a sensible default configuration
func DefaultQueryConfig() *QueryConfig {
	return &QueryConfig{
		TopK:                10,
		SimilarityThreshold: 0.0,
		RRFConstant:         60,
		GraphLimit:          10,
		RankerTimeout:       10 * time.Second,
	}
}

// MergeConfig controls candidate resolution.
type MergeConfig struct {
	// SimilarityThreshold is the minimum normalized edit-distance
	// ratio for fuzzy merge eligibility.
	SimilarityThreshold float64 `json:"similarity_threshold"`
	// MinSubstringLen is the minimum length of the shorter text for
	// the substring/abbreviation rule to apply.
	MinSubstringLen int `json:"min_substring_len"`
	// MaxContexts bounds the retained context snippets per candidate;
	// oldest entries are dropped first.
	MaxContexts int `json:"max_contexts"`
}

// DefaultMergeConfig returns the default resolution parameters
func DefaultMergeConfig() *MergeConfig {
	return &MergeConfig{
		SimilarityThreshold: 0.85,
		MinSubstringLen:     3,
		MaxContexts:         20,
	}
}

// ExtractConfig controls batch extraction.
type ExtractConfig struct {
	// Workers is the worker pool size for per-chunk extraction.
	Workers int `json:"workers"`
	// ChunkTimeout bounds a single chunk extraction; a timed-out
	// chunk is excluded and the batch reported degraded.
	ChunkTimeout time.Duration `json:"chunk_timeout"`
}

// DefaultExtractConfig returns the default batch extraction parameters
func DefaultExtractConfig() *ExtractConfig {
	return &ExtractConfig{
		Workers:      4,
		ChunkTimeout: 30 * time.Second,
	}
}
