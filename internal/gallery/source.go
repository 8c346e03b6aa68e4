package gallery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SourceItem is one item produced by a media source.
//
// Err is set when the source located the item but could not produce
// its bytes; the engine records such items as failed and continues.
type SourceItem struct {
	// ID is an opaque source identifier, stable across calls.
	ID string

	// Name is the item's display name (typically the original filename).
	Name string

	// Data holds the raw source bytes. Nil when Err is set.
	Data []byte

	// Err reports a per-item read failure.
	Err error
}

// Source is a lazy, finite sequence of media items. Next returns
// io.EOF when the sequence is exhausted. A Source instance is consumed
// by exactly one sync; callers wanting a retry construct a fresh one.
type Source interface {
	Next(ctx context.Context) (*SourceItem, error)
}

// imageExtensions are the file types DirSource considers images.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// DirSource walks a local directory tree in lexical order, yielding
// image files lazily. File bytes are read at Next time, not up front.
type DirSource struct {
	paths []string
	root  string
	pos   int
}

// NewDirSource enumerates image paths under root. The listing is
// captured at construction; file contents are read lazily.
func NewDirSource(root string) (*DirSource, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if imageExtensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gallery: walk %s: %w", root, err)
	}

	sort.Strings(paths)
	return &DirSource{paths: paths, root: root}, nil
}

// Len returns how many items the source will yield.
func (s *DirSource) Len() int {
	return len(s.paths)
}

// Next yields the next image file. A per-file read failure is reported
// via the item's Err field so the caller can account for it and move on.
func (s *DirSource) Next(ctx context.Context) (*SourceItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.paths) {
		return nil, io.EOF
	}

	path := s.paths[s.pos]
	s.pos++

	item := &SourceItem{
		ID:   path,
		Name: filepath.Base(path),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		item.Err = fmt.Errorf("%w: %w", ErrSourceRead, err)
		return item, nil
	}
	item.Data = data
	return item, nil
}

// SliceSource yields a fixed set of in-memory items. Used by callers
// that already hold the bytes, and by tests.
type SliceSource struct {
	Items []SourceItem
	pos   int
}

func (s *SliceSource) Next(ctx context.Context) (*SourceItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.Items) {
		return nil, io.EOF
	}
	item := s.Items[s.pos]
	s.pos++
	return &item, nil
}
