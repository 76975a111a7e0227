// Package loader reads source documents from disk.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/ingestion"
)

var (
	// ErrUnsupportedFormat is returned for files the loader cannot read as text.
	// PDF text extraction happens outside medrag.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrNotText is returned when a file is not valid UTF-8.
	ErrNotText = errors.New("file is not valid UTF-8 text")
)

// Metadata keys set on loaded documents.
const (
	MetadataPath   = ingestion.SourceMetadataKey
	MetadataFormat = "format"
)

// SupportedExtensions lists the extensions Load accepts.
var SupportedExtensions = []string{".txt", ".md", ".markdown"}

// Supported reports whether path has a loadable extension.
func Supported(path string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(filepath.Ext(path)))
}

// Load reads a text document. The document id is derived from the file name,
// so re-loading an edited file replaces the earlier version.
func Load(ctx context.Context, path string) (*ingestion.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !Supported(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s", ErrNotText, path)
	}

	name := filepath.Base(path)
	return &ingestion.Document{
		ID:   core.DocumentID(name),
		Name: name,
		Text: string(data),
		Metadata: map[string]string{
			MetadataPath:   path,
			MetadataFormat: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		},
	}, nil
}

// Failure records a file that could not be loaded.
type Failure struct {
	Path string
	Err  error
}

// Dir loads every supported file under root, recursively, in lexical order.
// Unsupported files are skipped silently; unreadable ones are reported.
func Dir(ctx context.Context, root string) ([]ingestion.Document, []Failure, error) {
	var docs []ingestion.Document
	var failures []Failure

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !Supported(path) {
			return nil
		}

		doc, loadErr := Load(ctx, path)
		if loadErr != nil {
			failures = append(failures, Failure{Path: path, Err: loadErr})
			return nil
		}
		docs = append(docs, *doc)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return docs, failures, nil
}
