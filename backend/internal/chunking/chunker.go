// Package chunking splits post bodies into fixed character windows and writes
// them as Chunk nodes under their parent Post.
package chunking

import (
	"context"
	"strings"

	"github.com/izukuuuu/opinion-system-sub001/backend/internal/graph"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/identity"
	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
)

// Chunk is one window of text; Index starts at 1
type Chunk struct {
	Index int
	Text  string
}

// Chunker cuts text into windows of Size characters, each starting
// Size-Overlap characters after the previous one
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates the window parameters
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, apperrors.NewConfigValidationFailed("chunk_size", "must be positive")
	}
	if overlap < 0 || overlap >= size {
		return nil, apperrors.NewConfigValidationFailed("chunk_overlap", "must be in [0, chunk_size)")
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split returns the ordered windows of text. Windows are counted in runes so
// multi-byte text is never cut mid-character. Whitespace-only windows are
// dropped without consuming an index.
func (c *Chunker) Split(text string) []Chunk {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []Chunk
	step := c.size - c.overlap
	index := 1
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		window := strings.TrimSpace(string(runes[start:end]))
		if window != "" {
			chunks = append(chunks, Chunk{Index: index, Text: window})
			index++
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Writer persists chunks of one post
type Writer interface {
	UpsertChunks(ctx context.Context, postID string, chunks []graph.ChunkRecord) (int, error)
}

// Enricher chunks a post body and writes the result
type Enricher struct {
	chunker *Chunker
	writer  Writer
}

// NewEnricher creates a chunk enricher
func NewEnricher(chunker *Chunker, writer Writer) *Enricher {
	return &Enricher{chunker: chunker, writer: writer}
}

// Enrich writes the chunks of text under postID and returns how many were written.
// Blank text writes nothing.
func (e *Enricher) Enrich(ctx context.Context, postID, text string) (int, error) {
	chunks := e.chunker.Split(text)
	if len(chunks) == 0 {
		return 0, nil
	}

	records := make([]graph.ChunkRecord, 0, len(chunks))
	for _, c := range chunks {
		records = append(records, graph.ChunkRecord{
			ID:     identity.ChunkID(postID, c.Index),
			PostID: postID,
			Index:  c.Index,
			Text:   c.Text,
		})
	}

	n, err := e.writer.UpsertChunks(ctx, postID, records)
	if err != nil {
		return 0, apperrors.NewEnrichmentFailed("chunk", postID, err)
	}
	return n, nil
}
