package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tmc/langchaingo/documentloaders"

	"github.com/poiesic/chainlab/core"
)

// DefaultPattern selects the plain text and markdown files of a corpus.
const DefaultPattern = "**/*.{txt,md}"

// LoadDocuments reads every file under root that matches pattern.
// Document sources are slash separated paths relative to root, and files
// are returned in lexical order. Empty files are skipped.
func LoadDocuments(ctx context.Context, root, pattern string) ([]core.Document, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	fsys := os.DirFS(root)
	files, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}

	docs := make([]core.Document, 0, len(files))
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := loadFile(ctx, fsys, rel)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", rel, err)
		}
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// LoadDocument reads a single file given by its path relative to root.
func LoadDocument(ctx context.Context, root, rel string) (core.Document, error) {
	return loadFile(ctx, os.DirFS(root), path.Clean(rel))
}

func loadFile(ctx context.Context, fsys fs.FS, rel string) (core.Document, error) {
	f, err := fsys.Open(rel)
	if err != nil {
		return core.Document{}, err
	}
	defer f.Close()

	loaded, err := documentloaders.NewText(f).Load(ctx)
	if err != nil {
		return core.Document{}, err
	}

	var content strings.Builder
	for _, d := range loaded {
		content.WriteString(d.PageContent)
	}
	return core.Document{
		Source:  rel,
		Content: content.String(),
		Metadata: map[string]string{
			"ext": path.Ext(rel),
		},
	}, nil
}
