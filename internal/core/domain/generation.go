package domain

import "fmt"

// Generation defaults.
const (
	// DefaultMaxRetries bounds schema refinement rounds per request.
	DefaultMaxRetries = 2

	// MaxRetriesLimit is the hard ceiling accepted for MaxRetries.
	MaxRetriesLimit = 5

	// DefaultMaxContextChars is the context budget when a request sets none.
	DefaultMaxContextChars = 12000
)

// GenerationRequest asks for a schema-conformant structured result.
type GenerationRequest struct {
	RequestID        string            `json:"request_id,omitempty"`
	PromptTemplateID string            `json:"prompt_template_id"`
	Variables        map[string]string `json:"variables,omitempty"`

	// Context is ordered most relevant first.
	Context         []ScoredDocument `json:"context,omitempty"`
	MaxContextChars int              `json:"max_context_chars,omitempty"`

	OutputSchema       OutputSchema `json:"output_schema"`
	MaxRetries         int          `json:"max_retries"`
	ProviderPreference []string     `json:"provider_preference,omitempty"`
}

// Validate checks the request before any backend call is made.
func (r *GenerationRequest) Validate() error {
	if r.PromptTemplateID == "" {
		return fmt.Errorf("%w: prompt template id is required", ErrInvalidInput)
	}
	if r.MaxRetries < 0 || r.MaxRetries > MaxRetriesLimit {
		return fmt.Errorf("%w: max retries must be between 0 and %d", ErrInvalidInput, MaxRetriesLimit)
	}
	return r.OutputSchema.Check()
}

// FailureKind classifies a failed generation.
type FailureKind string

// Failure kinds.
const (
	FailureSchemaValidation   FailureKind = "schema_validation_failed"
	FailureBackendUnavailable FailureKind = "backend_unavailable"
	FailureRequestInvalid     FailureKind = "request_invalid"
	FailureTimeout            FailureKind = "timeout"
)

// Sentinel returns the error sentinel matching the failure kind.
func (k FailureKind) Sentinel() error {
	switch k {
	case FailureSchemaValidation:
		return ErrSchemaValidationFailed
	case FailureBackendUnavailable:
		return ErrGenerationBackendUnavailable
	case FailureRequestInvalid:
		return ErrGenerationRequestInvalid
	case FailureTimeout:
		return ErrTimeout
	}
	return ErrInvalidInput
}

// GenerationSuccess holds a validated structured value.
// Value always satisfies the request schema at the moment it is returned.
type GenerationSuccess struct {
	Value       map[string]any `json:"value"`
	Raw         string         `json:"raw"`
	RetriesUsed int            `json:"retries_used"`
	Provider    string         `json:"provider,omitempty"`
}

// GenerationFailure is a typed generation failure.
type GenerationFailure struct {
	Kind        FailureKind `json:"kind"`
	Detail      string      `json:"detail"`
	Violations  Violations  `json:"violations,omitempty"`
	RetriesUsed int         `json:"retries_used"`
}

// Error implements the error interface.
func (f *GenerationFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

// Unwrap lets errors.Is match the sentinel for the failure kind.
func (f *GenerationFailure) Unwrap() error {
	return f.Kind.Sentinel()
}

// GenerationResult is either a Success or a Failure, never both.
type GenerationResult struct {
	Success *GenerationSuccess `json:"success,omitempty"`
	Failure *GenerationFailure `json:"failure,omitempty"`
}

// OK returns true if the result is a success.
func (r *GenerationResult) OK() bool {
	return r != nil && r.Success != nil
}

// RetriesUsed returns the schema refinement rounds consumed.
func (r *GenerationResult) RetriesUsed() int {
	switch {
	case r == nil:
		return 0
	case r.Success != nil:
		return r.Success.RetriesUsed
	case r.Failure != nil:
		return r.Failure.RetriesUsed
	}
	return 0
}

// Err returns the failure as an error, or nil on success.
func (r *GenerationResult) Err() error {
	if r == nil || r.Failure == nil {
		return nil
	}
	return r.Failure
}
