// Package chunker provides a fixed-size text chunking processor.
package chunker

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = domain.DefaultChunkSize

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = domain.DefaultChunkOverlap

// IDSeparator joins a parent id and a chunk position.
const IDSeparator = "#"

// Processor splits long documents into fixed-size chunk documents.
// Sizes are counted in runes.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkID returns the id of the chunk at position n of parent.
func ChunkID(parent string, n int) string {
	return fmt.Sprintf("%s%s%d", parent, IDSeparator, n)
}

// Process splits the document content into chunks.
// Documents that fit in one chunk are returned unchanged. Chunk ids are
// derived from the parent id, so they are stable across rebuilds.
func (p *Processor) Process(ctx context.Context, doc domain.Document) ([]domain.Document, error) {
	content := []rune(doc.Content)
	if len(content) <= p.chunkSize {
		return []domain.Document{doc}, nil
	}

	// Estimate number of chunks
	estimatedChunks := (len(content) / (p.chunkSize - p.overlap)) + 1
	chunks := make([]domain.Document, 0, estimatedChunks)

	start := 0
	for start < len(content) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := p.cut(content, start)
		text := strings.TrimSpace(string(content[start:end]))
		if text != "" {
			n := len(chunks)
			chunk := doc
			chunk.ID = ChunkID(doc.ID, n)
			chunk.Content = text
			chunk.Embedding = nil
			chunk.Metadata.ParentID = doc.ID
			chunk.Metadata.ChunkIndex = &n
			chunk.Metadata.ProductCategories = append([]string(nil), doc.Metadata.ProductCategories...)
			chunk.Metadata.CertificationTypes = append([]string(nil), doc.Metadata.CertificationTypes...)
			chunks = append(chunks, chunk)
		}
		if end >= len(content) {
			break
		}

		// Move start forward by (chunkSize - overlap), always making progress.
		next := end - p.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks, nil
}

// cut returns the end of the chunk starting at start, preferring to break
// on whitespace in the last fifth of the window.
func (p *Processor) cut(content []rune, start int) int {
	end := start + p.chunkSize
	if end >= len(content) {
		return len(content)
	}
	floor := end - p.chunkSize/5
	for i := end; i > floor; i-- {
		if unicode.IsSpace(content[i-1]) {
			return i
		}
	}
	return end
}
