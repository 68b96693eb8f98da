// Package filesystem loads corpus documents from local files.
//
// Structured files carry full documents:
//   - .json: a single document object or an array of documents
//   - .jsonl: one document object per line
//
// Plain .html, .htm, .md and .txt files become one document each, with the
// path relative to the root as id and metadata taken from Options.
package filesystem

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/logger"
)

// Options supplies metadata for plain files, which carry none of their own.
type Options struct {
	SourceType domain.SourceType
	Country    string
}

// Connector reads corpus documents from a file or directory tree.
type Connector struct {
	rootPath string
	opts     Options
}

// New creates a connector for a file or directory. rootPath may be a file:// URI.
func New(rootPath string, opts Options) *Connector {
	if opts.SourceType == "" {
		opts.SourceType = domain.SourceGuide
	}
	return &Connector{
		rootPath: ResolvePath(rootPath),
		opts:     opts,
	}
}

// Type returns the connector type identifier.
func (c *Connector) Type() string {
	return "filesystem"
}

// Load reads every supported file under the root, in path order.
// Hidden files and directories are skipped.
func (c *Connector) Load(ctx context.Context) ([]domain.Document, error) {
	info, err := os.Stat(c.rootPath)
	if err != nil {
		return nil, fmt.Errorf("%w: corpus path %s: %w", domain.ErrInvalidInput, c.rootPath, err)
	}
	if !info.IsDir() {
		return c.loadFile(filepath.Dir(c.rootPath), c.rootPath)
	}

	var paths []string
	err = filepath.WalkDir(c.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != c.rootPath && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && supported(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus %s: %w", c.rootPath, err)
	}
	sort.Strings(paths)

	var docs []domain.Document
	for _, path := range paths {
		loaded, err := c.loadFile(c.rootPath, path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, loaded...)
	}
	logger.Info("Loaded %d document(s) from %d file(s) under %s", len(docs), len(paths), c.rootPath)
	return docs, nil
}

func supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl", ".html", ".htm", ".md", ".txt":
		return true
	}
	return false
}

func (c *Connector) loadFile(root, path string) ([]domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json", ".jsonl":
		docs, err := DecodeDocuments(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return docs, nil
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return []domain.Document{{
		ID:      filepath.ToSlash(rel),
		Content: string(content),
		Metadata: domain.Metadata{
			SourceType:  c.opts.SourceType,
			Country:     c.opts.Country,
			LastUpdated: info.ModTime().UTC(),
			SourceURL:   "file://" + path,
			Title:       strings.TrimSuffix(filepath.Base(path), ext),
		},
	}}, nil
}

// DecodeDocuments reads a JSON document, a JSON array of documents, or
// JSON Lines. Every decoded document is validated.
func DecodeDocuments(r io.Reader) ([]domain.Document, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var docs []domain.Document
	switch first {
	case '[':
		if err := json.NewDecoder(br).Decode(&docs); err != nil {
			return nil, fmt.Errorf("%w: decode document array: %w", domain.ErrInvalidInput, err)
		}
	default:
		docs, err = decodeStream(br)
		if err != nil {
			return nil, err
		}
	}

	for i := range docs {
		if err := docs[i].Validate(); err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}
	}
	return docs, nil
}

// decodeStream handles JSON Lines and a single pretty-printed object,
// which a stream decoder reads the same way.
func decodeStream(r io.Reader) ([]domain.Document, error) {
	dec := json.NewDecoder(r)
	var docs []domain.Document
	for n := 1; ; n++ {
		var doc domain.Document
		err := dec.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: decode record %d: %w", domain.ErrInvalidInput, n, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func peekNonSpace(r *bufio.Reader) (byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, r.UnreadByte()
	}
}
