// Package connectors provides the sources the corpus is loaded from.
// Each connector turns an external location into domain documents ready
// for ingestion.
package connectors
