// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem under ~/.exportrag.
//
// Adapters:
//   - ConfigStore: TOML-based configuration storage
//   - PromptStore: user-editable prompt templates with embedded defaults
//   - SchemaStore: YAML output schemas with embedded defaults
//   - Watcher: reloads prompt and schema stores when their files change
package file
