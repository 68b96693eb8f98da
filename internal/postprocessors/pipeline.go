// Package postprocessors provides the document processing applied during
// ingestion, before documents are embedded.
package postprocessors

import (
	"context"
	"fmt"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
)

// Ensure Pipeline implements the interface.
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline chains multiple PostProcessors and runs them in order.
type Pipeline struct {
	processors []driven.PostProcessor
}

// NewPipeline creates a new processing pipeline with the given processors.
// Processors are executed in the order provided.
func NewPipeline(processors ...driven.PostProcessor) *Pipeline {
	return &Pipeline{
		processors: processors,
	}
}

// Process runs the document through all processors in order. Each
// processor receives every document produced by the one before it.
func (p *Pipeline) Process(ctx context.Context, doc domain.Document) ([]domain.Document, error) {
	docs := []domain.Document{doc}

	for _, processor := range p.processors {
		next := make([]domain.Document, 0, len(docs))
		for _, d := range docs {
			out, err := processor.Process(ctx, d)
			if err != nil {
				return nil, fmt.Errorf("processor %s: document %s: %w", processor.Name(), d.ID, err)
			}
			next = append(next, out...)
		}
		docs = next
	}

	return docs, nil
}

// Add appends a processor to the pipeline.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.processors = append(p.processors, processor)
}

// Len returns the number of processors in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.processors)
}

// Names returns the processor names in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.processors))
	for i, proc := range p.processors {
		names[i] = proc.Name()
	}
	return names
}
