package pipeline

import (
	"fmt"
	"strings"

	"github.com/castellan/storygraph/model"
)

// SentenceChunker creates a chunker that splits by sentences. Chunk ids
// follow the "<baseID>#<index>" convention.
func SentenceChunker(maxSentencesPerChunk int) ChunkFunc {
	return func(text string, baseID string) ([]model.IngestChunk, error) {
		if maxSentencesPerChunk <= 0 {
			return nil, fmt.Errorf("max sentences per chunk must be positive")
		}

		// Handle empty or whitespace-only text
		if strings.TrimSpace(text) == "" {
			return []model.IngestChunk{}, nil
		}

		sentences := splitSentences(text)

		var chunks []model.IngestChunk
		var currentChunk []string
		chunkIdx := 0

		appendChunk := func() {
			chunks = append(chunks, model.IngestChunk{
				ChunkID:    fmt.Sprintf("%s#%d", baseID, chunkIdx),
				DocumentID: baseID,
				Text:       strings.Join(currentChunk, " "),
			})
			currentChunk = nil
			chunkIdx++
		}

		for _, sentence := range sentences {
			currentChunk = append(currentChunk, sentence)
			if len(currentChunk) >= maxSentencesPerChunk {
				appendChunk()
			}
		}

		// Add remaining sentences
		if len(currentChunk) > 0 {
			appendChunk()
		}

		return chunks, nil
	}
}

// ParagraphChunker creates a chunker that splits by paragraphs
func ParagraphChunker() ChunkFunc {
	return func(text string, baseID string) ([]model.IngestChunk, error) {
		paragraphs := strings.Split(text, "\n\n")

		var chunks []model.IngestChunk
		chunkIdx := 0

		for _, para := range paragraphs {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}

			chunks = append(chunks, model.IngestChunk{
				ChunkID:    fmt.Sprintf("%s#%d", baseID, chunkIdx),
				DocumentID: baseID,
				Text:       para,
			})
			chunkIdx++
		}

		return chunks, nil
	}
}

func splitSentences(text string) []string {
	text = strings.ReplaceAll(text, "! ", "!|")
	text = strings.ReplaceAll(text, "? ", "?|")
	text = strings.ReplaceAll(text, ". ", ".|")

	sentences := strings.Split(text, "|")
	var result []string
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}
