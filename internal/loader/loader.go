// Package loader reads knowledge documents from disk. Only plain-text
// formats are supported; anything else is skipped rather than mangled.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnreadable wraps filesystem failures: missing path, permission
	// denied, short read.
	ErrUnreadable = errors.New("loader: unreadable document")

	// ErrUnsupported marks file types outside the supported set.
	ErrUnsupported = errors.New("loader: unsupported file type")
)

var supportedExts = map[string]bool{
	".txt": true,
	".md":  true,
}

// Supported reports whether path has a loadable extension.
func Supported(path string) bool {
	return supportedExts[strings.ToLower(filepath.Ext(path))]
}

// Load reads one document and returns its text. Bytes that are not valid
// UTF-8 are dropped so downstream chunking always sees clean runes.
func Load(path string) (string, error) {
	if !Supported(path) {
		return "", fmt.Errorf("%s: %w", path, ErrUnsupported)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%s: %v: %w", path, err, ErrUnreadable)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

// Walk lists every supported file under root in lexical order. Unsupported
// files are skipped silently; the caller decides what to report.
func Walk(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if Supported(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", root, err, ErrUnreadable)
	}
	return paths, nil
}
