package file

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
	"github.com/custodia-labs/exportrag/internal/logger"
)

// Ensure SchemaStore implements the interface.
var _ driven.SchemaStore = (*SchemaStore)(nil)

//go:embed schemas/*.yaml
var embeddedSchemas embed.FS

// SchemaStore loads output schemas from YAML files.
// A file in the schema directory overrides the embedded schema of the same name.
type SchemaStore struct {
	mu        sync.RWMutex
	schemaDir string
	cache     map[string]domain.OutputSchema
}

// NewSchemaStore creates a schema store.
// If schemaDir is empty, defaults to ~/.exportrag/schemas/. The directory
// is optional; embedded schemas are used when it does not exist.
func NewSchemaStore(schemaDir string) (*SchemaStore, error) {
	if schemaDir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		schemaDir = filepath.Join(dir, "schemas")
	}
	return &SchemaStore{
		schemaDir: schemaDir,
		cache:     make(map[string]domain.OutputSchema),
	}, nil
}

// Dir returns the schema directory path.
func (s *SchemaStore) Dir() string {
	return s.schemaDir
}

// Get returns the schema with the given name.
func (s *SchemaStore) Get(name string) (domain.OutputSchema, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return domain.OutputSchema{}, fmt.Errorf("%w: invalid schema name %q", domain.ErrInvalidInput, name)
	}

	s.mu.RLock()
	if schema, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return schema, nil
	}
	s.mu.RUnlock()

	data, err := s.read(name)
	if err != nil {
		return domain.OutputSchema{}, err
	}
	schema, err := ParseSchemaYAML(data)
	if err != nil {
		return domain.OutputSchema{}, fmt.Errorf("schema %q: %w", name, err)
	}
	if schema.Name == "" {
		schema.Name = name
	}

	s.mu.Lock()
	s.cache[name] = schema
	s.mu.Unlock()
	return schema, nil
}

// Names lists embedded and on-disk schema names.
func (s *SchemaStore) Names() []string {
	seen := make(map[string]bool)

	if entries, err := fs.ReadDir(embeddedSchemas, "schemas"); err == nil {
		for _, e := range entries {
			if name, ok := schemaName(e.Name()); ok {
				seen[name] = true
			}
		}
	}
	if entries, err := os.ReadDir(s.schemaDir); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if name, ok := schemaName(e.Name()); ok {
				seen[name] = true
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reload clears cached schemas.
func (s *SchemaStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]domain.OutputSchema)
	s.mu.Unlock()
}

// read prefers the user file, then the embedded default.
func (s *SchemaStore) read(name string) ([]byte, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		data, err := os.ReadFile(filepath.Join(s.schemaDir, name+ext))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read schema %q: %w", name, err)
		}
	}

	data, err := embeddedSchemas.ReadFile("schemas/" + name + ".yaml")
	if err != nil {
		logger.Debug("schema store: no schema named %q", name)
		return nil, fmt.Errorf("schema %q: %w", name, domain.ErrNotFound)
	}
	return data, nil
}

// ParseSchemaYAML decodes and checks a schema document.
func ParseSchemaYAML(data []byte) (domain.OutputSchema, error) {
	var schema domain.OutputSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return domain.OutputSchema{}, fmt.Errorf("%w: decode schema: %w", domain.ErrInvalidInput, err)
	}
	if err := schema.Check(); err != nil {
		return domain.OutputSchema{}, err
	}
	return schema, nil
}

func schemaName(file string) (string, bool) {
	for _, ext := range []string{".yaml", ".yml"} {
		if name, ok := strings.CutSuffix(file, ext); ok && name != "" {
			return name, true
		}
	}
	return "", false
}
