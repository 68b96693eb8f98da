// Package htmltext strips HTML markup from scraped corpus documents.
package htmltext

import (
	"context"
	"html"
	"regexp"
	"strings"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// Processor converts HTML content to plain text. Documents that do not
// look like HTML pass through unchanged.
type Processor struct{}

// New creates a new HTML text processor.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "html"
}

// Process strips markup and fills an empty title from the <title> tag.
func (p *Processor) Process(_ context.Context, doc domain.Document) ([]domain.Document, error) {
	if !LooksLikeHTML(doc.Content) {
		return []domain.Document{doc}, nil
	}
	if doc.Metadata.Title == "" {
		doc.Metadata.Title = extractTitle(doc.Content)
	}
	doc.Content = StripHTML(doc.Content)
	return []domain.Document{doc}, nil
}

// Pre-compiled regular expressions for HTML parsing performance.
var (
	htmlMarker        = regexp.MustCompile(`(?i)<(!doctype html|html|body|p|div|table|h[1-6])[\s>]`)
	titleTag          = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptTag         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag       = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag           = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	svgTag            = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	htmlComments      = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockElements     = regexp.MustCompile(`(?i)</(p|div|br|hr|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	openBlockElements = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	cellEnd           = regexp.MustCompile(`(?i)</t[dh]>`)
	brTags            = regexp.MustCompile(`(?i)<br\s*/?>`)
	hrTags            = regexp.MustCompile(`(?i)<hr\s*/?>`)
	allTags           = regexp.MustCompile(`<[^>]+>`)
	multiSpaces       = regexp.MustCompile(`[ \t]+`)
)

// LooksLikeHTML reports whether content contains structural HTML tags.
func LooksLikeHTML(content string) bool {
	return htmlMarker.MatchString(content)
}

func extractTitle(content string) string {
	matches := titleTag.FindStringSubmatch(content)
	if len(matches) > 1 {
		return strings.TrimSpace(html.UnescapeString(matches[1]))
	}
	return ""
}

// StripHTML removes HTML tags and extracts readable text content.
// Tariff tables keep one row per line with cells separated by " | ".
func StripHTML(content string) string {
	// Remove non-content elements entirely
	content = scriptTag.ReplaceAllString(content, "")
	content = styleTag.ReplaceAllString(content, "")
	content = noscriptTag.ReplaceAllString(content, "")
	content = headTag.ReplaceAllString(content, "")
	content = svgTag.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")

	content = cellEnd.ReplaceAllString(content, " | ")
	content = openBlockElements.ReplaceAllString(content, "\n")
	content = blockElements.ReplaceAllString(content, "\n")
	content = brTags.ReplaceAllString(content, "\n")
	content = hrTags.ReplaceAllString(content, "\n")

	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = multiSpaces.ReplaceAllString(content, " ")

	// Trim each line and remove empty lines
	lines := strings.Split(content, "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), "|"))
		if line != "" {
			result = append(result, line)
		}
	}
	return strings.Join(result, "\n")
}
