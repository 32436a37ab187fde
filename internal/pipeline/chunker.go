package pipeline

import (
	"strings"

	"github.com/casemind/casemind-go/internal/models"
)

// DefaultChunkTokens is the per-chunk token budget for full-text chunks.
const DefaultChunkTokens = 480

// tokensPerWord approximates subword tokenization of English legal text.
const tokensPerWord = 4.0 / 3.0

// estimateTokens guesses the token count of a word run.
func estimateTokens(words int) int {
	return int(float64(words)*tokensPerWord + 0.5)
}

// chunkText splits text into overlap-free word windows sized so each window
// stays under maxTokens by the token estimate. Splitting happens before the
// model calls, so it costs nothing against the API quota.
func chunkText(text string, maxTokens int) []models.ChunkRecord {
	if maxTokens <= 0 {
		maxTokens = DefaultChunkTokens
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	wordsPerChunk := int(float64(maxTokens) / tokensPerWord)
	if wordsPerChunk < 1 {
		wordsPerChunk = 1
	}

	var chunks []models.ChunkRecord
	for start := 0; start < len(words); start += wordsPerChunk {
		end := min(start+wordsPerChunk, len(words))
		window := words[start:end]
		chunks = append(chunks, models.ChunkRecord{
			ChunkIndex: len(chunks),
			Text:       strings.Join(window, " "),
			TokenCount: estimateTokens(len(window)),
		})
	}
	return chunks
}
