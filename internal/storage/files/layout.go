// Package files stores promoted media artifacts on the local filesystem and defines the
// class-directory layout shared with the object-storage backend.
package files

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Togather-Foundation/eventos/internal/domain/media"
)

// ErrOutsideLayout is returned for a URL that does not point into a class directory.
var ErrOutsideLayout = errors.New("url outside media layout")

// Layout maps media classes to directories and directories to public URLs.
type Layout struct {
	prefix string
	dirs   map[media.Class]string
}

// NewLayout requires a directory for every class. Directories are slash-separated and
// relative; prefix is prepended to every URL.
func NewLayout(prefix string, dirs map[media.Class]string) (Layout, error) {
	clean := make(map[media.Class]string, len(media.Classes))
	for _, class := range media.Classes {
		dir := strings.Trim(path.Clean("/"+dirs[class]), "/")
		if dir == "" || dir == "." {
			return Layout{}, fmt.Errorf("no directory configured for media class %q", class)
		}
		clean[class] = dir
	}
	return Layout{prefix: "/" + strings.Trim(prefix, "/"), dirs: clean}, nil
}

// Dir returns the directory for class.
func (l Layout) Dir(class media.Class) (string, bool) {
	dir, ok := l.dirs[class]
	return dir, ok
}

// Place picks a fresh collision-free key for file under class, keeping its extension.
func (l Layout) Place(file media.StagedFile, class media.Class) (key, url string, err error) {
	dir, ok := l.dirs[class]
	if !ok {
		return "", "", media.ErrUnknownClass{Value: string(class)}
	}
	name := uuid.NewString() + strings.ToLower(filepath.Ext(file.Filename))
	key = path.Join(dir, name)
	return key, l.URL(key), nil
}

// URL returns the public URL of key.
func (l Layout) URL(key string) string {
	return path.Join(l.prefix, key)
}

// Key inverts URL. It rejects URLs that escape the prefix or do not name a file inside a
// class directory.
func (l Layout) Key(url string) (string, error) {
	cleaned := path.Clean("/" + strings.TrimSpace(url))
	prefix := l.prefix
	if prefix != "/" {
		prefix += "/"
	}
	if !strings.HasPrefix(cleaned, prefix) {
		return "", fmt.Errorf("%w: %s", ErrOutsideLayout, url)
	}
	key := strings.TrimPrefix(cleaned, prefix)
	dir, name := path.Split(key)
	if name == "" {
		return "", fmt.Errorf("%w: %s", ErrOutsideLayout, url)
	}
	for _, d := range l.dirs {
		if strings.TrimSuffix(dir, "/") == d {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrOutsideLayout, url)
}

// Discard deletes a staged file. A file that is already gone is not an error.
func Discard(file media.StagedFile) error {
	if file.Path == "" {
		return nil
	}
	if err := os.Remove(file.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard staged file: %w", err)
	}
	return nil
}
