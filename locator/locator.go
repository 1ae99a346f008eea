package locator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/mod/module"
)

// DefaultExt is the file extension of module source files.
const DefaultExt = ".mhs"

// ErrNotFound is returned when no root holds the requested module.
var ErrNotFound = errors.New("module not found")

// Overlay provides in-memory module sources, keyed by module name.
// Entries in an overlay take precedence over files under the roots.
type Overlay map[string][]byte

// File is a module source found by a Locator.
type File struct {
	Module string
	Path   string // slash-separated path relative to its root, or "overlay:<name>"
	Source []byte
}

// Locator maps dotted module names ("Data.Text") to source files
// ("Data/Text.mhs") under a list of roots searched in order.
type Locator struct {
	roots   []fs.FS
	names   []string // display name of each root, for diagnostics
	ext     string
	overlay Overlay
}

// Option configures a Locator.
type Option func(*Locator)

// WithExt changes the module file extension.
func WithExt(ext string) Option {
	return func(l *Locator) {
		l.ext = ext
	}
}

// WithOverlay registers in-memory module sources.
func WithOverlay(overlay Overlay) Option {
	return func(l *Locator) {
		l.overlay = overlay
	}
}

// New creates a Locator over the given roots.
func New(roots []fs.FS, options ...Option) *Locator {
	l := &Locator{ext: DefaultExt}
	for i, root := range roots {
		l.roots = append(l.roots, root)
		l.names = append(l.names, fmt.Sprintf("root[%d]", i))
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// FromPaths creates a Locator over directories on the local file system.
// Every path must exist and be a directory.
func FromPaths(paths []string, options ...Option) (*Locator, error) {
	var roots []fs.FS
	var names []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		absPath, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for %s: %w", p, err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("could not stat search path %s: %w", absPath, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("search path %s is not a directory", absPath)
		}
		roots = append(roots, os.DirFS(absPath))
		names = append(names, absPath)
	}
	l := New(roots, options...)
	l.names = names
	return l, nil
}

// FilePath converts a module name to its slash-separated file path.
func (l *Locator) FilePath(moduleName string) (string, error) {
	if moduleName == "" {
		return "", fmt.Errorf("empty module name")
	}
	rel := strings.ReplaceAll(moduleName, ".", "/") + l.ext
	if err := module.CheckFilePath(rel); err != nil {
		return "", fmt.Errorf("invalid module name %q: %w", moduleName, err)
	}
	return rel, nil
}

// Find returns the source of moduleName from the overlay or the first root
// that contains it.
func (l *Locator) Find(moduleName string) (*File, error) {
	if src, ok := l.overlay[moduleName]; ok {
		return &File{Module: moduleName, Path: "overlay:" + moduleName, Source: src}, nil
	}

	rel, err := l.FilePath(moduleName)
	if err != nil {
		return nil, err
	}
	for i, root := range l.roots {
		src, err := fs.ReadFile(root, rel)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading %s in %s: %w", rel, l.names[i], err)
		}
		return &File{Module: moduleName, Path: path.Clean(rel), Source: src}, nil
	}
	return nil, fmt.Errorf("%w: %s (searched %d roots for %s)", ErrNotFound, moduleName, len(l.roots), rel)
}

// Roots returns the display names of the search roots.
func (l *Locator) Roots() []string {
	return append([]string(nil), l.names...)
}
