package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceType_IsValid(t *testing.T) {
	for _, st := range AllSourceTypes() {
		assert.True(t, st.IsValid(), st)
	}
	assert.False(t, SourceType("blog").IsValid())
	assert.False(t, SourceType("").IsValid())
}

func TestParseSourceType(t *testing.T) {
	st, err := ParseSourceType("  Regulation ")
	require.NoError(t, err)
	assert.Equal(t, SourceRegulation, st)

	_, err = ParseSourceType("press_release")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDocument_Validate(t *testing.T) {
	tests := []struct {
		name    string
		doc     Document
		wantErr bool
	}{
		{"valid", Document{ID: "reg-1", Metadata: Metadata{SourceType: SourceRegulation}}, false},
		{"no source type is allowed", Document{ID: "reg-1"}, false},
		{"missing id", Document{Metadata: Metadata{SourceType: SourceGuide}}, true},
		{"blank id", Document{ID: "   "}, true},
		{"unknown source type", Document{ID: "x", Metadata: Metadata{SourceType: "blog"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDocument_Citation(t *testing.T) {
	doc := Document{ID: "a", Metadata: Metadata{
		SourceType: SourceRegulation,
		Country:    "DE",
		SourceURL:  "https://example.org/reg",
		Title:      "ignored when url is set",
	}}
	assert.Equal(t, "regulation, DE, https://example.org/reg", doc.Citation())

	doc = Document{ID: "b", Metadata: Metadata{SourceType: SourceGuide, Title: "Packaging guide"}}
	assert.Equal(t, "guide, Packaging guide", doc.Citation())
}

func TestScoredDocument_Similarity(t *testing.T) {
	sd := ScoredDocument{RelevanceScore: 0.85, SourcePriorityBoost: 0.05}
	assert.InDelta(t, 0.80, sd.Similarity(), 1e-9)
}

func TestRankBefore(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.AddDate(0, 6, 0)

	mk := func(id string, score float64, updated time.Time) ScoredDocument {
		return ScoredDocument{
			Document:       Document{ID: id, Metadata: Metadata{LastUpdated: updated}},
			RelevanceScore: score,
		}
	}

	t.Run("higher score first", func(t *testing.T) {
		assert.True(t, RankBefore(mk("b", 0.9, older), mk("a", 0.8, newer)))
		assert.False(t, RankBefore(mk("a", 0.8, newer), mk("b", 0.9, older)))
	})

	t.Run("tie broken by recency", func(t *testing.T) {
		assert.True(t, RankBefore(mk("b", 0.9, newer), mk("a", 0.9, older)))
	})

	t.Run("tie broken by id", func(t *testing.T) {
		assert.True(t, RankBefore(mk("a", 0.9, older), mk("b", 0.9, older)))
		assert.False(t, RankBefore(mk("b", 0.9, older), mk("a", 0.9, older)))
	})

	t.Run("irreflexive", func(t *testing.T) {
		d := mk("a", 0.5, older)
		assert.False(t, RankBefore(d, d))
	})
}
