package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driving"
)

// FilterInput is the metadata filter shared by several tools.
type FilterInput struct {
	Country            string   `json:"country,omitempty" jsonschema:"destination country code, matched case-insensitively"`
	ProductCategories  []string `json:"product_categories,omitempty" jsonschema:"product categories, any of which must match"`
	CertificationTypes []string `json:"certification_types,omitempty" jsonschema:"certification types, any of which must match"`
	SourceTypes        []string `json:"source_types,omitempty" jsonschema:"source types such as regulation or guide"`
}

func (f *FilterInput) filter() (domain.MetadataFilter, error) {
	if f == nil {
		return domain.MetadataFilter{}, nil
	}
	out := domain.MetadataFilter{
		Country:            f.Country,
		ProductCategories:  f.ProductCategories,
		CertificationTypes: f.CertificationTypes,
	}
	for _, st := range f.SourceTypes {
		t := domain.SourceType(st)
		if !t.IsValid() {
			return out, fmt.Errorf("%w: unknown source type %q", domain.ErrInvalidInput, st)
		}
		out.SourceTypes = append(out.SourceTypes, t)
	}
	return out, nil
}

// RetrieveInput is the input schema for the retrieve tool.
type RetrieveInput struct {
	Query  string       `json:"query" jsonschema:"the natural-language query"`
	Filter *FilterInput `json:"filter,omitempty" jsonschema:"hard metadata constraints"`
	TopK   int          `json:"top_k,omitempty" jsonschema:"maximum number of documents to return (default 5)"`
}

// DocumentOutput is a document as returned by the tools.
type DocumentOutput struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title,omitempty"`
	Citation           string   `json:"citation"`
	SourceType         string   `json:"source_type"`
	Country            string   `json:"country,omitempty"`
	ProductCategories  []string `json:"product_categories,omitempty"`
	CertificationTypes []string `json:"certification_types,omitempty"`
	LastUpdated        string   `json:"last_updated,omitempty"`
	SourceURL          string   `json:"source_url,omitempty"`
	Content            string   `json:"content,omitempty"`
	Score              float64  `json:"score,omitempty"`
	Boost              float64  `json:"boost,omitempty"`
}

// RetrieveOutput is the output schema for the retrieve and search_by_metadata tools.
type RetrieveOutput struct {
	Documents []DocumentOutput `json:"documents"`
	Count     int              `json:"count"`
}

// GenerateInput is the input schema for the generate_structured tool.
type GenerateInput struct {
	Task               string            `json:"task" jsonschema:"prompt template and output schema name, e.g. hs_classification"`
	Query              string            `json:"query,omitempty" jsonschema:"retrieve context documents for this query first"`
	Variables          map[string]string `json:"variables,omitempty" jsonschema:"template variables"`
	Filter             *FilterInput      `json:"filter,omitempty" jsonschema:"metadata constraints for context retrieval"`
	TopK               int               `json:"top_k,omitempty" jsonschema:"context documents to retrieve (default 5)"`
	MaxRetries         *int              `json:"max_retries,omitempty" jsonschema:"schema refinement rounds, 0 to 5 (default: configured generation.max_retries)"`
	ProviderPreference []string          `json:"provider_preference,omitempty" jsonschema:"backend ids in preference order"`
}

// GenerationOutput is the outcome of a structured generation.
type GenerationOutput struct {
	OK          bool           `json:"ok"`
	Value       map[string]any `json:"value,omitempty"`
	Provider    string         `json:"provider,omitempty"`
	RetriesUsed int            `json:"retries_used"`
	FailureKind string         `json:"failure_kind,omitempty"`
	Detail      string         `json:"detail,omitempty"`
	Violations  []string       `json:"violations,omitempty"`
}

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Query              string       `json:"query" jsonschema:"the exporter's question or product description"`
	Task               string       `json:"task,omitempty" jsonschema:"task schema (default question)"`
	Filter             *FilterInput `json:"filter,omitempty" jsonschema:"hard metadata constraints"`
	TopK               int          `json:"top_k,omitempty" jsonschema:"context documents to retrieve (default 5)"`
	MaxRetries         *int         `json:"max_retries,omitempty" jsonschema:"schema refinement rounds, 0 to 5"`
	ProviderPreference []string     `json:"provider_preference,omitempty" jsonschema:"backend ids in preference order"`
}

// GateOutput is the confidence gate decision.
type GateOutput struct {
	Decision     string  `json:"decision"`
	Confidence   float64 `json:"confidence"`
	Threshold    float64 `json:"threshold"`
	Alternatives []any   `json:"alternatives,omitempty"`
	NeedsInput   bool    `json:"needs_input"`
	Reason       string  `json:"reason,omitempty"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	RequestID  string            `json:"request_id"`
	Sources    []DocumentOutput  `json:"sources"`
	Generation *GenerationOutput `json:"generation,omitempty"`
	Gate       *GateOutput       `json:"gate,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve",
		Description: "Retrieve the most relevant export regulation documents for a query",
	}, s.handleRetrieve)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_by_metadata",
		Description: "List indexed documents matching a metadata filter, without ranking",
	}, s.handleSearchByMetadata)
	s.tools = append(s.tools, "retrieve", "search_by_metadata")

	if s.ports.Generation != nil && s.ports.Schemas != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "generate_structured",
			Description: "Generate a schema-validated structured result for a task",
		}, s.handleGenerate)
		s.tools = append(s.tools, "generate_structured")
	}

	if s.ports.Advisor != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ask",
			Description: "Answer an exporter question from the corpus with a confidence decision",
		}, s.handleAsk)
		s.tools = append(s.tools, "ask")
	}
}

// handleRetrieve handles the retrieve tool invocation.
func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	filter, err := input.Filter.filter()
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	results, err := s.ports.Retrieval.Retrieve(ctx, input.Query, filter, input.TopK)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	return nil, RetrieveOutput{Documents: scoredOutputs(results), Count: len(results)}, nil
}

// handleSearchByMetadata handles the search_by_metadata tool invocation.
func (s *Server) handleSearchByMetadata(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input FilterInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	filter, err := input.filter()
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	docs, err := s.ports.Retrieval.SearchByMetadata(ctx, filter)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	output := RetrieveOutput{
		Documents: make([]DocumentOutput, len(docs)),
		Count:     len(docs),
	}
	for i := range docs {
		output.Documents[i] = documentOutput(&docs[i], false)
	}
	return nil, output, nil
}

// handleGenerate handles the generate_structured tool invocation.
// Generation failures are reported in the output rather than as tool errors.
func (s *Server) handleGenerate(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GenerateInput,
) (*mcp.CallToolResult, GenerationOutput, error) {
	schema, err := s.ports.Schemas.Get(input.Task)
	if err != nil {
		return nil, GenerationOutput{}, fmt.Errorf("task %s: %w", input.Task, err)
	}
	filter, err := input.Filter.filter()
	if err != nil {
		return nil, GenerationOutput{}, err
	}

	vars := make(map[string]string, len(input.Variables)+2)
	for k, v := range input.Variables {
		vars[k] = v
	}
	if filter.Country != "" {
		vars["country"] = filter.Country
	}

	var docs []domain.ScoredDocument
	if input.Query != "" {
		vars["query"] = input.Query
		docs, err = s.ports.Retrieval.Retrieve(ctx, input.Query, filter, input.TopK)
		if err != nil {
			return nil, GenerationOutput{}, err
		}
	}

	maxRetries := s.ports.Generation.Defaults().MaxRetries
	if input.MaxRetries != nil {
		maxRetries = *input.MaxRetries
	}

	result, err := s.ports.Generation.GenerateStructured(ctx, domain.GenerationRequest{
		PromptTemplateID:   input.Task,
		Variables:          vars,
		Context:            docs,
		OutputSchema:       schema,
		MaxRetries:         maxRetries,
		ProviderPreference: input.ProviderPreference,
	})
	if result == nil {
		return nil, GenerationOutput{}, err
	}
	return nil, generationOutput(result), nil
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	filter, err := input.Filter.filter()
	if err != nil {
		return nil, AskOutput{}, err
	}

	result, err := s.ports.Advisor.Ask(ctx, driving.AskRequest{
		Query:              input.Query,
		Task:               input.Task,
		Filter:             filter,
		TopK:               input.TopK,
		MaxRetries:         input.MaxRetries,
		ProviderPreference: input.ProviderPreference,
	})
	// A generation failure or a gate without alternatives is reported in
	// the output; anything earlier is a tool error.
	if result == nil || (err != nil && result.Generation == nil) {
		return nil, AskOutput{}, err
	}

	output := AskOutput{
		RequestID: result.RequestID,
		Sources:   scoredOutputs(result.Context),
	}
	if result.Generation != nil {
		g := generationOutput(result.Generation)
		output.Generation = &g
	}
	if g := result.Gate; g != nil {
		output.Gate = &GateOutput{
			Decision:     string(g.Decision),
			Confidence:   g.Confidence,
			Threshold:    g.Threshold,
			Alternatives: g.Alternatives,
			NeedsInput:   g.NeedsInput,
			Reason:       g.Reason,
		}
	}
	return nil, output, nil
}

func scoredOutputs(results []domain.ScoredDocument) []DocumentOutput {
	out := make([]DocumentOutput, len(results))
	for i := range results {
		out[i] = documentOutput(&results[i].Document, true)
		out[i].Score = results[i].RelevanceScore
		out[i].Boost = results[i].SourcePriorityBoost
	}
	return out
}

func documentOutput(doc *domain.Document, withContent bool) DocumentOutput {
	out := DocumentOutput{
		ID:                 doc.ID,
		Title:              doc.Metadata.Title,
		Citation:           doc.Citation(),
		SourceType:         string(doc.Metadata.SourceType),
		Country:            doc.Metadata.Country,
		ProductCategories:  doc.Metadata.ProductCategories,
		CertificationTypes: doc.Metadata.CertificationTypes,
		SourceURL:          doc.Metadata.SourceURL,
	}
	if !doc.Metadata.LastUpdated.IsZero() {
		out.LastUpdated = doc.Metadata.LastUpdated.Format(time.DateOnly)
	}
	if withContent {
		out.Content = doc.Content
	}
	return out
}

func generationOutput(result *domain.GenerationResult) GenerationOutput {
	if s := result.Success; s != nil {
		return GenerationOutput{
			OK:          true,
			Value:       s.Value,
			Provider:    s.Provider,
			RetriesUsed: s.RetriesUsed,
		}
	}

	f := result.Failure
	out := GenerationOutput{
		RetriesUsed: f.RetriesUsed,
		FailureKind: string(f.Kind),
		Detail:      f.Detail,
	}
	for _, v := range f.Violations {
		out.Violations = append(out.Violations, v.String())
	}
	return out
}
