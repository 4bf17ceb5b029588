// Package imageio resolves catalog image paths and decodes images.
package imageio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrOutsideBase is returned when a catalog path resolves outside the base directory.
var ErrOutsideBase = errors.New("path escapes catalog base directory")

// Decode decodes an in-memory image in any registered format.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Loader opens catalog images relative to a fixed base directory.
type Loader struct {
	baseDir string
}

// NewLoader creates a loader rooted at baseDir.
func NewLoader(baseDir string) *Loader {
	return &Loader{baseDir: filepath.Clean(baseDir)}
}

// BaseDir returns the directory relative paths are resolved against.
func (l *Loader) BaseDir() string {
	return l.baseDir
}

// Resolve joins rel onto the base directory.
func (l *Loader) Resolve(rel string) (string, error) {
	full := filepath.Join(l.baseDir, filepath.FromSlash(rel))
	relToBase, err := filepath.Rel(l.baseDir, full)
	if err != nil || relToBase == ".." || strings.HasPrefix(relToBase, ".."+string(filepath.Separator)) {
		return full, fmt.Errorf("%s: %w", rel, ErrOutsideBase)
	}
	return full, nil
}

// Load resolves rel, then opens and decodes the file. The returned path is the
// resolved one, also on error, so callers can log it.
func (l *Loader) Load(ctx context.Context, rel string) (image.Image, string, error) {
	full, err := l.Resolve(rel)
	if err != nil {
		return nil, full, err
	}
	if err := ctx.Err(); err != nil {
		return nil, full, err
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, full, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, full, err
	}
	if !info.Mode().IsRegular() {
		return nil, full, fmt.Errorf("%s: not a regular file", full)
	}

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, full, fmt.Errorf("failed to decode %s: %w", full, err)
	}
	return img, full, nil
}
