package driven

import (
	"context"

	"github.com/custodia-labs/exportrag/internal/core/domain"
)

// PostProcessor transforms corpus documents before they are embedded.
// A processor may rewrite content or split one document into several;
// it never drops metadata.
type PostProcessor interface {
	// Name returns the processor name used in configuration.
	Name() string

	// Process transforms one document into zero or more documents.
	Process(ctx context.Context, doc domain.Document) ([]domain.Document, error)
}

// PostProcessorPipeline chains processors in order.
type PostProcessorPipeline interface {
	// Process runs doc through every processor.
	Process(ctx context.Context, doc domain.Document) ([]domain.Document, error)
}
