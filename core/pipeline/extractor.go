package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/castellan/storygraph/helper"
	"github.com/castellan/storygraph/model"
	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/panjf2000/ants/v2"
)

// ExtractorMode identifies which extraction engine is active.
type ExtractorMode string

const (
	ModeModel     ExtractorMode = "model"
	ModeHeuristic ExtractorMode = "heuristic"
)

// heuristicConfidence is the fixed confidence assigned to mentions
// found by the capitalization heuristic.
const heuristicConfidence = 0.30

// heuristicContextWindow is the number of tokens kept around a
// heuristic mention as its context.
const heuristicContextWindow = 5

// Extractor finds entity mentions in text.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]*model.Mention, error)
	Mode() ExtractorMode
}

// ModelBackedExtractor runs NER via a token classification model.
// Uses distilbert-NER, detecting PER, ORG, LOC and MISC entities.
type ModelBackedExtractor struct {
	session *hugot.Session
	ner     *pipelines.TokenClassificationPipeline
}

// NewModelBackedExtractor prepares the NER model (downloading it if
// needed) and builds the token classification pipeline.
func NewModelBackedExtractor() (*ModelBackedExtractor, error) {
	modelName := "KnightsAnalytics/distilbert-NER"
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}

	return &ModelBackedExtractor{
		session: session,
		ner:     nerPipeline,
	}, nil
}

func (e *ModelBackedExtractor) Mode() ExtractorMode {
	return ModeModel
}

// Extract runs NER on the text and converts the model output to
// mentions with raw labels; classification happens downstream.
func (e *ModelBackedExtractor) Extract(ctx context.Context, text string) ([]*model.Mention, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := e.ner.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to run NER: %w", err)
	}

	if len(result.Entities) == 0 {
		return nil, nil
	}

	var mentions []*model.Mention
	for _, entity := range result.Entities[0] {
		word := strings.TrimSpace(entity.Word)
		if word == "" {
			continue
		}

		start := int(entity.Start)
		end := int(entity.End)
		mentions = append(mentions, &model.Mention{
			Text:            word,
			Label:           stripBIOPrefix(entity.Entity),
			Confidence:      float64(entity.Score),
			StartOffset:     start,
			EndOffset:       end,
			SentenceContext: sentenceAround(text, start, end),
		})
	}

	return mentions, nil
}

// Close releases the underlying model session.
func (e *ModelBackedExtractor) Close() error {
	return e.session.Destroy()
}

// stripBIOPrefix removes B- and I- prefixes from NER labels
func stripBIOPrefix(label string) string {
	if strings.HasPrefix(label, "B-") || strings.HasPrefix(label, "I-") {
		return label[2:]
	}
	return label
}

// sentenceAround returns the sentence containing the [start, end) span.
func sentenceAround(text string, start, end int) string {
	if start < 0 || end > len(text) || start > end {
		return ""
	}

	sentenceStart := 0
	for i := start - 1; i >= 0; i-- {
		if text[i] == '.' || text[i] == '!' || text[i] == '?' {
			sentenceStart = i + 1
			break
		}
	}

	sentenceEnd := len(text)
	for i := end; i < len(text); i++ {
		if text[i] == '.' || text[i] == '!' || text[i] == '?' {
			sentenceEnd = i + 1
			break
		}
	}

	return strings.TrimSpace(text[sentenceStart:sentenceEnd])
}

// HeuristicExtractor is the deterministic fallback when no NER model is
// available. It proposes capitalized tokens longer than two characters
// as untyped mentions with a fixed low confidence.
type HeuristicExtractor struct{}

// NewHeuristicExtractor creates the capitalization-based extractor.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

func (e *HeuristicExtractor) Mode() ExtractorMode {
	return ModeHeuristic
}

// Extract scans the text token by token. A token qualifies when, after
// trimming surrounding punctuation, it is longer than two runes, starts
// with an uppercase letter and continues with letters or digits.
func (e *HeuristicExtractor) Extract(ctx context.Context, text string) ([]*model.Mention, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := strings.Fields(text)
	var mentions []*model.Mention
	searchFrom := 0

	for i, token := range tokens {
		tokenStart := strings.Index(text[searchFrom:], token) + searchFrom
		searchFrom = tokenStart + len(token)

		trimmed := strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if !qualifiesAsHeuristicMention(trimmed) {
			continue
		}

		start := tokenStart + strings.Index(token, trimmed)
		mentions = append(mentions, &model.Mention{
			Text:            trimmed,
			Confidence:      heuristicConfidence,
			StartOffset:     start,
			EndOffset:       start + len(trimmed),
			SentenceContext: tokenWindow(tokens, i, heuristicContextWindow),
		})
	}

	return mentions, nil
}

func qualifiesAsHeuristicMention(token string) bool {
	runes := []rune(token)
	if len(runes) <= 2 {
		return false
	}
	if !unicode.IsUpper(runes[0]) || !unicode.IsLetter(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// tokenWindow joins the tokens around index i as a context snippet.
func tokenWindow(tokens []string, i, window int) string {
	start := i - window
	if start < 0 {
		start = 0
	}
	end := i + window + 1
	if end > len(tokens) {
		end = len(tokens)
	}
	return strings.Join(tokens[start:end], " ")
}

// NewExtractor returns a model-backed extractor when the NER model can
// be loaded and falls back to the heuristic otherwise. Model
// unavailability is not an error, only a degraded mode.
func NewExtractor(logger *slog.Logger) Extractor {
	extractor, err := NewModelBackedExtractor()
	if err != nil {
		logger.Warn("NER model unavailable, falling back to heuristic extraction", slog.String("error", err.Error()))
		return NewHeuristicExtractor()
	}
	return extractor
}

// ExtractionReport is the outcome of a batch extraction run. Degraded
// is set when chunks failed or the heuristic fallback was active.
type ExtractionReport struct {
	Mentions       []*model.Mention `json:"mentions"`
	FailedChunkIDs []string         `json:"failed_chunk_ids,omitempty"`
	Degraded       bool             `json:"degraded"`
}

// BatchExtractor fans chunk extraction out over a worker pool with
// per-chunk fault isolation.
type BatchExtractor struct {
	extractor Extractor
	config    *model.ExtractConfig
	logger    *slog.Logger
}

// NewBatchExtractor creates a batch extractor. A nil config uses the
// defaults.
func NewBatchExtractor(extractor Extractor, config *model.ExtractConfig, logger *slog.Logger) *BatchExtractor {
	if config == nil {
		config = model.DefaultExtractConfig()
	}
	return &BatchExtractor{
		extractor: extractor,
		config:    config,
		logger:    logger,
	}
}

// ExtractFromChunks extracts mentions from all chunks concurrently.
// A failed or timed-out chunk is logged, recorded in the report and
// skipped. Cancellation of the parent context discards the whole batch.
// Mentions are returned ordered by chunk id and start offset.
func (b *BatchExtractor) ExtractFromChunks(ctx context.Context, chunks []model.IngestChunk) (*ExtractionReport, error) {
	pool, err := ants.NewPool(b.config.Workers)
	if err != nil {
		return nil, helper.NewError("create worker pool", err)
	}
	defer pool.Release()

	var mu sync.Mutex
	var wg sync.WaitGroup
	report := &ExtractionReport{}

	for _, chunk := range chunks {
		chunk := chunk
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()

			chunkCtx, cancel := context.WithTimeout(ctx, b.config.ChunkTimeout)
			defer cancel()

			mentions, err := b.extractor.Extract(chunkCtx, chunk.Text)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				b.logger.Warn("chunk extraction failed",
					slog.String("chunk_id", chunk.ChunkID),
					slog.String("error", err.Error()))
				report.FailedChunkIDs = append(report.FailedChunkIDs, chunk.ChunkID)
				report.Degraded = true
				return
			}

			for _, m := range mentions {
				m.SourceChunkID = chunk.ChunkID
			}
			report.Mentions = append(report.Mentions, mentions...)
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			report.FailedChunkIDs = append(report.FailedChunkIDs, chunk.ChunkID)
			report.Degraded = true
			mu.Unlock()
		}
	}

	wg.Wait()

	// A cancelled batch is discarded entirely so no partial result is
	// ever committed.
	if err := ctx.Err(); err != nil {
		return nil, helper.NewError("batch extraction", err)
	}

	if b.extractor.Mode() == ModeHeuristic {
		report.Degraded = true
	}

	sort.SliceStable(report.Mentions, func(i, j int) bool {
		if report.Mentions[i].SourceChunkID != report.Mentions[j].SourceChunkID {
			return report.Mentions[i].SourceChunkID < report.Mentions[j].SourceChunkID
		}
		return report.Mentions[i].StartOffset < report.Mentions[j].StartOffset
	})
	sort.Strings(report.FailedChunkIDs)

	return report, nil
}

// MentionStatistics summarizes an extraction run.
type MentionStatistics struct {
	Total        int                      `json:"total"`
	CountsByType map[model.EntityType]int `json:"counts_by_type"`
	UniqueByType map[model.EntityType]int `json:"unique_by_type"`
}

// Statistics computes per-type mention counts and unique surface form
// counts (unique by normalized text).
func Statistics(mentions []*model.Mention) *MentionStatistics {
	stats := &MentionStatistics{
		Total:        len(mentions),
		CountsByType: map[model.EntityType]int{},
		UniqueByType: map[model.EntityType]int{},
	}

	seen := map[model.EntityType]map[string]bool{}
	for _, m := range mentions {
		stats.CountsByType[m.Type]++
		if seen[m.Type] == nil {
			seen[m.Type] = map[string]bool{}
		}
		key := model.NormalizeKey(m.Text)
		if !seen[m.Type][key] {
			seen[m.Type][key] = true
			stats.UniqueByType[m.Type]++
		}
	}

	return stats
}
