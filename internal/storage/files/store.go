package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/eventos/internal/domain/events"
	"github.com/Togather-Foundation/eventos/internal/domain/media"
)

var _ events.ArtifactStore = (*Store)(nil)

// Store keeps artifacts under root, one directory per class.
type Store struct {
	root   string
	layout Layout
	logger zerolog.Logger
}

// NewStore creates the class directories under root if they do not exist.
func NewStore(root string, layout Layout, logger zerolog.Logger) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("media root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve media root: %w", err)
	}
	for _, class := range media.Classes {
		dir, _ := layout.Dir(class)
		if err := os.MkdirAll(filepath.Join(abs, filepath.FromSlash(dir)), 0o755); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", class, err)
		}
	}
	return &Store{
		root:   abs,
		layout: layout,
		logger: logger.With().Str("component", "media_files").Logger(),
	}, nil
}

// Promote moves the staged file into the class directory. The staged path no longer exists
// afterwards.
func (s *Store) Promote(ctx context.Context, file media.StagedFile, class media.Class) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, url, err := s.layout.Place(file, class)
	if err != nil {
		return "", err
	}
	dest := s.path(key)
	if err := move(file.Path, dest); err != nil {
		return "", fmt.Errorf("promote %s: %w", file.Filename, err)
	}
	s.logger.Debug().Str("class", string(class)).Str("url", url).Msg("artifact promoted")
	return url, nil
}

// Remove deletes the artifact behind url.
func (s *Store) Remove(_ context.Context, url string) error {
	key, err := s.layout.Key(url)
	if err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

func (s *Store) Discard(file media.StagedFile) error {
	return Discard(file)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// move renames src to dest, copying when they sit on different filesystems.
func move(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return err
	}
	return os.Remove(src)
}
