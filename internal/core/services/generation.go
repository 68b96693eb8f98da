package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
	"github.com/custodia-labs/exportrag/internal/core/ports/driving"
	"github.com/custodia-labs/exportrag/internal/logger"
)

// Ensure GenerationService implements the interface.
var _ driving.GenerationService = (*GenerationService)(nil)

// GenerationService turns a prompt template, retrieved context and an output
// schema into a validated structured result, asking the model to repair its
// output when validation fails.
type GenerationService struct {
	backend  driven.ModelBackend
	prompts  driven.PromptStore
	defaults domain.GenerationSettings
}

// NewGenerationService creates a new generation service.
// defaults supplies the provider preference and context budget used when a
// request leaves them unset.
func NewGenerationService(
	backend driven.ModelBackend,
	prompts driven.PromptStore,
	defaults domain.GenerationSettings,
) *GenerationService {
	if defaults.MaxContextChars <= 0 {
		defaults.MaxContextChars = domain.DefaultMaxContextChars
	}
	return &GenerationService{
		backend:  backend,
		prompts:  prompts,
		defaults: defaults,
	}
}

// Defaults returns the configured generation settings.
func (s *GenerationService) Defaults() domain.GenerationSettings {
	return s.defaults
}

// promptData is the value every prompt template is executed against.
type promptData struct {
	Vars       map[string]string
	Context    string
	Schema     string
	Previous   string
	Violations []string
}

// GenerateStructured runs the generate, validate and refine loop.
// The returned result is never nil; a failure is also returned as the error.
func (s *GenerationService) GenerateStructured(
	ctx context.Context, req domain.GenerationRequest,
) (*domain.GenerationResult, error) {
	logger.Section("Structured Generation")

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.MaxContextChars <= 0 {
		req.MaxContextChars = s.defaults.MaxContextChars
	}
	if len(req.ProviderPreference) == 0 {
		req.ProviderPreference = s.defaults.ProviderPreference
	}
	logger.Debug("Request %s: template=%s schema=%s max_retries=%d context=%d doc(s)",
		req.RequestID, req.PromptTemplateID, req.OutputSchema.Name, req.MaxRetries, len(req.Context))

	if err := req.Validate(); err != nil {
		return fail(domain.FailureRequestInvalid, err.Error(), nil, 0)
	}

	prompt, err := s.render(req.PromptTemplateID, promptData{
		Vars:    nonNilVars(req.Variables),
		Context: BuildContextBlock(req.Context, req.MaxContextChars),
		Schema:  req.OutputSchema.Describe(),
	})
	if err != nil {
		return fail(domain.FailureRequestInvalid, err.Error(), nil, 0)
	}

	system, err := s.render(driven.PromptSystem, promptData{})
	if err != nil {
		logger.Debug("No system prompt: %v", err)
		system = ""
	}

	current := prompt
	retries := 0
	for {
		resp, err := s.backend.GenerateStructured(ctx, driven.BackendRequest{
			Prompt:             current,
			Options:            driven.GenerateOptions{SystemPrompt: system},
			ProviderPreference: req.ProviderPreference,
		}, req.OutputSchema)
		if err != nil {
			kind := backendFailureKind(err)
			logger.Warn("Request %s: backend call failed (%s): %v", req.RequestID, kind, err)
			return fail(kind, err.Error(), nil, retries)
		}

		value, violations := ParseStructuredOutput(resp.Text, &req.OutputSchema)
		if len(violations) == 0 {
			logger.Info("Request %s: valid output from %s after %d refinement(s)",
				req.RequestID, resp.Provider, retries)
			return &domain.GenerationResult{Success: &domain.GenerationSuccess{
				Value:       value,
				Raw:         resp.Text,
				RetriesUsed: retries,
				Provider:    resp.Provider,
			}}, nil
		}

		logger.Debug("Request %s: %d violation(s): %s", req.RequestID, len(violations), violations.Error())
		if retries >= req.MaxRetries {
			logger.Warn("Request %s: output still invalid after %d refinement(s)", req.RequestID, retries)
			return fail(domain.FailureSchemaValidation,
				fmt.Sprintf("output failed validation after %d refinement(s): %s", retries, violations.Error()),
				violations, retries)
		}

		refinement, err := s.render(driven.PromptRefinement, promptData{
			Previous:   resp.Text,
			Violations: violationStrings(violations),
			Schema:     req.OutputSchema.Describe(),
		})
		if err != nil {
			return fail(domain.FailureRequestInvalid, err.Error(), violations, retries)
		}
		retries++
		current = prompt + "\n\n" + refinement
	}
}

// render loads a template by name and executes it.
func (s *GenerationService) render(name string, data promptData) (string, error) {
	text, err := s.prompts.Load(name)
	if err != nil {
		return "", fmt.Errorf("prompt template %s: %w", name, err)
	}
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt template %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// fail builds a failure result and returns it as the error too.
func fail(
	kind domain.FailureKind, detail string, violations domain.Violations, retries int,
) (*domain.GenerationResult, error) {
	failure := &domain.GenerationFailure{
		Kind:        kind,
		Detail:      detail,
		Violations:  violations,
		RetriesUsed: retries,
	}
	return &domain.GenerationResult{Failure: failure}, failure
}

// backendFailureKind classifies a model backend error.
// Exhaustion is checked first so that a provider's own timeout is reported
// as unavailability rather than a caller timeout.
func backendFailureKind(err error) domain.FailureKind {
	switch {
	case errors.Is(err, domain.ErrGenerationBackendUnavailable):
		return domain.FailureBackendUnavailable
	case errors.Is(err, domain.ErrGenerationRequestInvalid):
		return domain.FailureRequestInvalid
	case domain.IsTimeout(err), errors.Is(err, context.Canceled):
		return domain.FailureTimeout
	default:
		return domain.FailureBackendUnavailable
	}
}

// BuildContextBlock numbers and tags documents for a prompt, most relevant
// first, stopping once maxChars is reached. An entry that does not fit is
// cut short rather than dropped when enough room is left to be useful.
func BuildContextBlock(docs []domain.ScoredDocument, maxChars int) string {
	if len(docs) == 0 {
		return "(no context documents)"
	}
	if maxChars <= 0 {
		maxChars = domain.DefaultMaxContextChars
	}

	const minUseful = 200

	var b strings.Builder
	used := 0
	for i, d := range docs {
		entry := fmt.Sprintf("[%d] (%s)\n%s\n\n", i+1, d.Document.Citation(), strings.TrimSpace(d.Document.Content))
		n := utf8.RuneCountInString(entry)
		if used+n > maxChars {
			remaining := maxChars - used
			if remaining >= minUseful || i == 0 {
				b.WriteString(truncateRunes(entry, remaining))
				b.WriteString("...")
			}
			break
		}
		b.WriteString(entry)
		used += n
	}
	return strings.TrimSpace(b.String())
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ParseStructuredOutput extracts a JSON object from model output and
// validates it. Raw JSON is tried first, then a fenced code block, then the
// first balanced object in the text.
func ParseStructuredOutput(raw string, schema *domain.OutputSchema) (map[string]any, domain.Violations) {
	value, err := ExtractJSON(raw)
	if err != nil {
		return nil, domain.Violations{{Message: err.Error()}}
	}
	if violations := schema.Validate(value); len(violations) > 0 {
		return nil, violations
	}
	return value, nil
}

// ExtractJSON returns the JSON object contained in raw.
func ExtractJSON(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("output is empty")
	}

	candidates := []string{raw}
	if m := fencedJSON.FindStringSubmatch(raw); len(m) > 1 {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if obj := firstObject(raw); obj != "" {
		candidates = append(candidates, obj)
	}

	notObject := false
	for _, c := range candidates {
		var v any
		if err := json.Unmarshal([]byte(c), &v); err != nil {
			continue
		}
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
		notObject = true
	}
	if notObject {
		return nil, errors.New("output is not a JSON object")
	}
	return nil, errors.New("output does not contain valid JSON")
}

// firstObject returns the first balanced {...} span, honouring strings.
func firstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func violationStrings(vs domain.Violations) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}

func nonNilVars(vars map[string]string) map[string]string {
	if vars == nil {
		return map[string]string{}
	}
	return vars
}
