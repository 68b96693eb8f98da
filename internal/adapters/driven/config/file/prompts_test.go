package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
)

func TestPromptStore_ImplementsInterface(t *testing.T) {
	var _ driven.PromptStore = (*PromptStore)(nil)
}

func TestNewPromptStore_WithCustomDir(t *testing.T) {
	dir := t.TempDir()

	store, err := NewPromptStore(dir)

	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())
}

func TestNewPromptStore_DefaultDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	store, err := NewPromptStore("")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".exportrag", "prompts"), store.Dir())
}

func TestPromptStore_Load_CreatesDefaultFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	_, err = store.Load(driven.PromptSystem)
	require.NoError(t, err)

	for _, name := range DefaultPromptNames() {
		_, err := os.Stat(filepath.Join(dir, name+".txt"))
		assert.NoError(t, err, "expected prompt file %s", name)
	}
	_, err = os.Stat(filepath.Join(dir, "README.md"))
	assert.NoError(t, err)
}

func TestPromptStore_Load_ReturnsDefaultContent(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptHSClassification)

	require.NoError(t, err)
	assert.Contains(t, prompt, "Harmonized System")
	assert.Contains(t, prompt, "{{.Context}}")
	assert.Contains(t, prompt, "{{.Schema}}")
}

func TestDefaultPrompts_AreValidTemplates(t *testing.T) {
	for name, body := range defaultPrompts {
		_, err := template.New(name).Parse(body)
		assert.NoError(t, err, "prompt %s", name)
	}
}

func TestPromptStore_Load_ReturnsCustomContent(t *testing.T) {
	dir := t.TempDir()
	custom := "Classify {{.Vars.query}} quickly."
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hs_classification.txt"), []byte(custom), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptHSClassification)

	require.NoError(t, err)
	assert.Equal(t, custom, prompt)
}

func TestPromptStore_Load_CustomTask(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "duty_estimate.txt"), []byte("Estimate duty.\n"), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt, err := store.Load("duty_estimate")

	require.NoError(t, err)
	assert.Equal(t, "Estimate duty.", prompt)
}

func TestPromptStore_Load_FallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	_, err = store.Load(driven.PromptSystem)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "refinement.txt")))
	store.Reload()

	prompt, err := store.Load(driven.PromptRefinement)

	require.NoError(t, err)
	assert.Equal(t, defaultPrompts[driven.PromptRefinement], prompt)
}

func TestPromptStore_Load_UnknownPrompt(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("nonexistent_prompt")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPromptStore_Load_RejectsPathNames(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("../config")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPromptStore_Load_CachesPrompts(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	first, err := store.Load(driven.PromptQuestion)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "question.txt"), []byte("changed"), 0600))

	second, err := store.Load(driven.PromptQuestion)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPromptStore_Reload_ClearsCache(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	_, err = store.Load(driven.PromptQuestion)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "question.txt"), []byte("changed"), 0600))
	store.Reload()

	prompt, err := store.Load(driven.PromptQuestion)
	require.NoError(t, err)
	assert.Equal(t, "changed", prompt)
}

func TestPromptStore_ConcurrentAccess(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			names := DefaultPromptNames()
			_, err := store.Load(names[i%len(names)])
			assert.NoError(t, err)
			if i%5 == 0 {
				store.Reload()
			}
		}(i)
	}
	wg.Wait()
}

func TestPromptStore_DoesNotOverwriteExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system.txt")
	require.NoError(t, os.WriteFile(path, []byte("keep me"), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)
	_, err = store.Load(driven.PromptQuestion)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
}

func TestPromptStore_Load_TrimsWhitespace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "system.txt"), []byte("\n\n  Be brief.  \n\n"), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptSystem)
	require.NoError(t, err)
	assert.Equal(t, "Be brief.", prompt)
}
