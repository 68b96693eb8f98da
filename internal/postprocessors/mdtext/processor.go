// Package mdtext converts Markdown corpus pages to plain text.
package mdtext

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// Processor strips Markdown formatting from documents loaded from .md files.
// Other documents pass through unchanged.
type Processor struct{}

// New creates a new Markdown text processor.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "markdown"
}

// Process strips formatting and promotes the first H1 heading to the title
// when the title is missing or was derived from the file name.
func (p *Processor) Process(_ context.Context, doc domain.Document) ([]domain.Document, error) {
	if !IsMarkdown(doc) {
		return []domain.Document{doc}, nil
	}
	stem := fileStem(doc.ID)
	if doc.Metadata.Title == "" || doc.Metadata.Title == stem {
		if h1 := FirstHeading(doc.Content); h1 != "" {
			doc.Metadata.Title = h1
		} else if doc.Metadata.Title == "" {
			doc.Metadata.Title = strings.NewReplacer("_", " ", "-", " ").Replace(stem)
		}
	}
	doc.Content = Strip(doc.Content)
	return []domain.Document{doc}, nil
}

// IsMarkdown reports whether doc came from a Markdown file.
func IsMarkdown(doc domain.Document) bool {
	for _, name := range []string{doc.ID, doc.Metadata.SourceURL} {
		switch strings.ToLower(path.Ext(name)) {
		case ".md", ".markdown":
			return true
		}
	}
	return false
}

// FirstHeading returns the text of the first "# " heading, if any.
func FirstHeading(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}
	return ""
}

var (
	codeBlock     = regexp.MustCompile("(?s)```.*?```")
	inlineCode    = regexp.MustCompile("`([^`]+)`")
	images        = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	links         = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headings      = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	emphasis      = regexp.MustCompile(`(\*\*|__|\*)([^*_\n]+)(\*\*|__|\*)`)
	blockquote    = regexp.MustCompile(`(?m)^>\s?`)
	horizontal    = regexp.MustCompile(`(?m)^\s*([-*_]\s*){3,}$`)
	listMarkers   = regexp.MustCompile(`(?m)^(\s*)[-*+]\s+`)
	numberedItems = regexp.MustCompile(`(?m)^(\s*)\d+\.\s+`)
	tableRule     = regexp.MustCompile(`(?m)^\s*\|?\s*:?-{3,}.*$`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// Strip removes common Markdown formatting. Inline code keeps its text,
// since regulation pages often put tariff codes in backticks.
func Strip(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = codeBlock.ReplaceAllString(content, "")
	content = inlineCode.ReplaceAllString(content, "$1")
	content = images.ReplaceAllString(content, "")
	content = links.ReplaceAllString(content, "$1")
	content = headings.ReplaceAllString(content, "")
	content = emphasis.ReplaceAllString(content, "$2")
	content = blockquote.ReplaceAllString(content, "")
	content = horizontal.ReplaceAllString(content, "")
	content = tableRule.ReplaceAllString(content, "")
	content = listMarkers.ReplaceAllString(content, "$1")
	content = numberedItems.ReplaceAllString(content, "$1")
	content = multiNewlines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

func fileStem(id string) string {
	base := path.Base(id)
	return strings.TrimSuffix(base, path.Ext(base))
}
