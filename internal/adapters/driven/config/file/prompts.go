package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore loads prompt templates from user-editable files on disk.
// Prompts are loaded from a configurable directory with fallback to embedded defaults.
//
// The store uses lazy initialisation - files are only created when first accessed,
// not in the constructor.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

// defaultPrompts contains embedded default templates (Go text/template syntax).
//
// Every task template receives:
//   - .Vars: caller variables such as .Vars.query
//   - .Context: the numbered, source-tagged context block
//   - .Schema: the output schema description
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	driven.PromptSystem: `You are a trade compliance analyst helping exporters. Ground every statement in the numbered context documents and cite them as [n]. Prefer government and regulatory sources over third-party guides. When the context does not support an answer, say so and lower your confidence instead of guessing. Respond only with the JSON object requested.`,

	driven.PromptRefinement: `Your previous answer did not match the required format.

Previous answer:
{{.Previous}}

Problems found:
{{range .Violations}}- {{.}}
{{end}}
Fix every problem and answer again.

{{.Schema}}`,

	driven.PromptHSClassification: `Classify the following product under the Harmonized System and give the most likely tariff code.

Product: {{.Vars.query}}
{{if .Vars.country}}Destination market: {{.Vars.country}}
{{end}}
Context documents:
{{.Context}}

Give a confidence between 0 and 100. When you are not confident, list alternative codes.

{{.Schema}}`,

	driven.PromptCertificationGuidance: `Identify the certifications, registrations and labelling requirements an exporter needs for this product and market.

Request: {{.Vars.query}}
{{if .Vars.country}}Destination market: {{.Vars.country}}
{{end}}
Context documents:
{{.Context}}

{{.Schema}}`,

	driven.PromptRiskAssessment: `Assess the export risk for the request below, considering import refusals, alerts, tariff exposure and regulatory complexity.

Request: {{.Vars.query}}
{{if .Vars.country}}Destination market: {{.Vars.country}}
{{end}}
Context documents:
{{.Context}}

{{.Schema}}`,

	driven.PromptQuestion: `Answer the exporter's question using only the context documents.

Question: {{.Vars.query}}

Context documents:
{{.Context}}

{{.Schema}}`,
}

// DefaultPromptNames lists the prompts that ship with the binary.
func DefaultPromptNames() []string {
	return []string{
		driven.PromptSystem,
		driven.PromptRefinement,
		driven.PromptHSClassification,
		driven.PromptCertificationGuidance,
		driven.PromptRiskAssessment,
		driven.PromptQuestion,
	}
}

// NewPromptStore creates a new file-based prompt store.
// If promptDir is empty, defaults to ~/.exportrag/prompts/.
//
// The constructor does not perform any I/O - directory creation and
// file writes happen lazily on first Load() call.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(dir, "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// Load returns the prompt template for the given name.
// On first call, initialises the prompt directory and creates default files.
// Falls back to the embedded default if the file doesn't exist.
func (s *PromptStore) Load(name string) (string, error) {
	s.initOnce.Do(s.initialise)
	if s.initErr != nil {
		if prompt, ok := defaultPrompts[name]; ok {
			return prompt, nil
		}
		return "", fmt.Errorf("prompt store init failed: %w", s.initErr)
	}

	s.mu.RLock()
	if prompt, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return prompt, nil
	}
	s.mu.RUnlock()

	// No lock held during I/O.
	prompt, err := s.loadFromFile(name)
	if err != nil {
		if defaultPrompt, ok := defaultPrompts[name]; ok {
			return defaultPrompt, nil
		}
		if os.IsNotExist(err) {
			return "", fmt.Errorf("prompt %q: %w", name, domain.ErrNotFound)
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}

	s.mu.Lock()
	if cached, ok := s.cache[name]; ok {
		prompt = cached
	} else {
		s.cache[name] = prompt
	}
	s.mu.Unlock()

	return prompt, nil
}

// Reload clears the prompt cache, forcing fresh loads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// initialise creates the prompt directory and default files.
func (s *PromptStore) initialise() {
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	for name, content := range defaultPrompts {
		path := filepath.Join(s.promptDir, name+".txt")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}

	if err := s.createReadme(); err != nil {
		s.initErr = err
	}
}

// loadFromFile reads a prompt from disk.
func (s *PromptStore) loadFromFile(name string) (string, error) {
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: invalid prompt name %q", domain.ErrInvalidInput, name)
	}
	data, err := os.ReadFile(filepath.Join(s.promptDir, name+".txt"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// createReadme writes a README file explaining the prompts directory.
func (s *PromptStore) createReadme() error {
	path := filepath.Join(s.promptDir, "README.md")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}

	content := `# exportrag prompts

Each file is a Go text/template used for structured generation.

## Files

- ` + "`system.txt`" + ` - System instruction sent with every request
- ` + "`refinement.txt`" + ` - Re-prompt after the model output failed validation
- ` + "`hs_classification.txt`" + ` - Tariff classification
- ` + "`certification_guidance.txt`" + ` - Certification and labelling requirements
- ` + "`risk_assessment.txt`" + ` - Export risk rating
- ` + "`question.txt`" + ` - Free-form grounded questions

Add a new ` + "`<task>.txt`" + ` next to a schema named ` + "`<task>.yaml`" + `
to define a new task.

## Template fields

- ` + "`{{.Vars.query}}`" + `, ` + "`{{.Vars.country}}`" + ` - Caller variables
- ` + "`{{.Context}}`" + ` - Numbered context documents tagged with their source
- ` + "`{{.Schema}}`" + ` - Output format instructions
- ` + "`{{.Previous}}`" + `, ` + "`{{.Violations}}`" + ` - Refinement only

Edits are picked up on the next command, or immediately while
` + "`exportrag mcp serve`" + ` is running.
`
	return os.WriteFile(path, []byte(content), 0600)
}
