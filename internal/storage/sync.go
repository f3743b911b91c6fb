package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ObjectStore uploads lake files to a remote bucket or container.
// Implementations: S3Store, GCSStore, AzureStore.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader) error
	// Name identifies the backend and target bucket for logging.
	Name() string
}

// Syncer mirrors the local lake root to an object store. Uploads are
// full-file puts keyed by the file's lake-relative path, so a re-sync of an
// unchanged lake overwrites objects with identical bytes.
type Syncer struct {
	store  ObjectStore
	logger *slog.Logger
}

func NewSyncer(store ObjectStore, logger *slog.Logger) *Syncer {
	return &Syncer{store: store, logger: logger}
}

// Sync walks root and uploads every regular file under the given key
// prefix. Hidden entries (staging directories) are skipped. Returns the
// number of files uploaded.
func (s *Syncer) Sync(ctx context.Context, root, prefix string) (int, error) {
	uploaded := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" {
			key = strings.TrimSuffix(prefix, "/") + "/" + key
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()

		if err := s.store.Put(ctx, key, f); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		uploaded++
		s.logger.Debug("uploaded lake file", "key", key, "store", s.store.Name())
		return nil
	})
	if err != nil {
		return uploaded, err
	}
	s.logger.Info("lake sync complete", "files", uploaded, "store", s.store.Name())
	return uploaded, nil
}
