package driven

import "github.com/custodia-labs/exportrag/internal/core/domain"

// PromptStore provides access to prompt templates.
// Implementations may load prompts from files, embed them in the binary,
// or fetch them from a remote configuration service.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// Returns an error wrapping domain.ErrNotFound for unknown names.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	// This is useful when prompts may have been edited on disk.
	Reload()
}

// Well-known prompt names used throughout the engine.
// Templates use Go text/template syntax.
const (
	// PromptSystem is the system instruction sent with every structured call.
	PromptSystem = "system"

	// PromptRefinement wraps a rejected output and its violations.
	// Fields: .Previous, .Violations, .Schema.
	PromptRefinement = "refinement"

	// PromptHSClassification classifies a product into a tariff code.
	PromptHSClassification = "hs_classification"

	// PromptCertificationGuidance lists the certifications a product needs.
	PromptCertificationGuidance = "certification_guidance"

	// PromptRiskAssessment rates the export risk for a market.
	PromptRiskAssessment = "risk_assessment"

	// PromptQuestion answers a free-form exporter question.
	PromptQuestion = "question"
)

// SchemaStore provides named output schemas.
type SchemaStore interface {
	// Get returns the schema with the given name.
	// Returns an error wrapping domain.ErrNotFound for unknown names.
	Get(name string) (domain.OutputSchema, error)

	// Names lists the available schema names in sorted order.
	Names() []string

	// Reload clears cached schemas.
	Reload()
}
