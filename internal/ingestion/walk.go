package ingestion

import (
	"fmt"
	"io/fs"
	"os"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPatterns select Markdown and MDX documents anywhere below the root.
var DefaultPatterns = []string{"**/*.md", "**/*.mdx"}

// Document is one file read from the indexed tree.
type Document struct {
	// RelPath is the slash-separated path relative to the walked root.
	RelPath string

	// Text is the file content. Documents are read once and never modified.
	Text string
}

// Walk returns every regular file under root matching any of patterns,
// ordered by relative path so that runs over the same tree are identical.
func Walk(root string, patterns []string) ([]Document, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("ingestion: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ingestion: %s is not a directory", root)
	}
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	fsys := os.DirFS(root)
	seen := make(map[string]struct{})
	var paths []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("ingestion: glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			paths = append(paths, m)
		}
	}
	slices.Sort(paths)

	docs := make([]Document, 0, len(paths))
	for _, p := range paths {
		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("ingestion: read %s: %w", p, err)
		}
		docs = append(docs, Document{RelPath: p, Text: string(b)})
	}
	return docs, nil
}
