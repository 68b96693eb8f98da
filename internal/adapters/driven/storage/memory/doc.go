// Package memory provides in-memory implementations of the storage ports.
// They back tests and the --ephemeral mode of the CLI.
package memory
