package domain

import (
	"fmt"
	"strings"
	"time"
)

// SourceType classifies where a corpus document came from.
type SourceType string

// Recognised source types.
const (
	SourceRegulation    SourceType = "regulation"
	SourceGuide         SourceType = "guide"
	SourceComplianceDoc SourceType = "compliance_doc"
	SourceAgencyInfo    SourceType = "agency_info"
	SourceRefusalRecord SourceType = "refusal_record"
	SourceAlertRecord   SourceType = "alert_record"
	SourceTaxSchedule   SourceType = "tax_schedule"
)

// AllSourceTypes returns every recognised source type.
func AllSourceTypes() []SourceType {
	return []SourceType{
		SourceRegulation,
		SourceGuide,
		SourceComplianceDoc,
		SourceAgencyInfo,
		SourceRefusalRecord,
		SourceAlertRecord,
		SourceTaxSchedule,
	}
}

// IsValid returns true if the source type is recognised.
func (s SourceType) IsValid() bool {
	for _, t := range AllSourceTypes() {
		if s == t {
			return true
		}
	}
	return false
}

// String returns the string representation of the source type.
func (s SourceType) String() string {
	return string(s)
}

// ParseSourceType converts a string to a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	st := SourceType(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: unknown source type %q", ErrInvalidInput, s)
	}
	return st, nil
}

// Metadata holds the recognised attributes of a corpus document.
type Metadata struct {
	SourceType         SourceType `json:"source_type"`
	Country            string     `json:"country,omitempty"`
	ProductCategories  []string   `json:"product_categories,omitempty"`
	CertificationTypes []string   `json:"certification_types,omitempty"`
	LastUpdated        time.Time  `json:"last_updated"`
	SourceURL          string     `json:"source_url,omitempty"`
	Title              string     `json:"title,omitempty"`

	// ChunkIndex and ParentID are set on documents split during ingestion.
	ChunkIndex *int   `json:"chunk_index,omitempty"`
	ParentID   string `json:"parent_id,omitempty"`
}

// Document is an immutable unit of retrievable knowledge.
// Ids are assigned upstream and stay stable across index rebuilds.
type Document struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
	Metadata  Metadata  `json:"metadata"`
}

// Validate checks the fields every indexed document must carry.
func (d *Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidInput)
	}
	if d.Metadata.SourceType != "" && !d.Metadata.SourceType.IsValid() {
		return fmt.Errorf("%w: document %s: unknown source type %q", ErrInvalidInput, d.ID, d.Metadata.SourceType)
	}
	return nil
}

// Citation returns a short source label used when tagging context for a prompt.
func (d *Document) Citation() string {
	parts := []string{string(d.Metadata.SourceType)}
	if d.Metadata.Country != "" {
		parts = append(parts, d.Metadata.Country)
	}
	if d.Metadata.SourceURL != "" {
		parts = append(parts, d.Metadata.SourceURL)
	} else if d.Metadata.Title != "" {
		parts = append(parts, d.Metadata.Title)
	}
	return strings.Join(parts, ", ")
}

// ScoredDocument is a document matched by a query.
// RelevanceScore includes SourcePriorityBoost; scores are only comparable
// within the query that produced them.
type ScoredDocument struct {
	Document            Document `json:"document"`
	RelevanceScore      float64  `json:"relevance_score"`
	SourcePriorityBoost float64  `json:"source_priority_boost,omitempty"`
}

// Similarity returns the raw vector similarity before any boost.
func (s ScoredDocument) Similarity() float64 {
	return s.RelevanceScore - s.SourcePriorityBoost
}

// RankBefore reports whether a sorts ahead of b: higher score first,
// then most recently updated, then id ascending.
func RankBefore(a, b ScoredDocument) bool {
	if a.RelevanceScore != b.RelevanceScore {
		return a.RelevanceScore > b.RelevanceScore
	}
	at, bt := a.Document.Metadata.LastUpdated, b.Document.Metadata.LastUpdated
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return a.Document.ID < b.Document.ID
}
