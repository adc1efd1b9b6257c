package transport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// LocalDir serves snapshot stores reachable through the local filesystem,
// typically a mounted remote volume. Snapshots are directories under
// Root/<host>/<dataset>/<name>.
type LocalDir struct {
	Root string

	logger *zap.Logger
}

// NewLocalDir returns a LocalDir transport rooted at root.
func NewLocalDir(root string, logger *zap.Logger) *LocalDir {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalDir{Root: root, logger: logger}
}

func (t *LocalDir) datasetPath(host, dataset string) string {
	return filepath.Join(t.Root, host, dataset)
}

// List reads the snapshot directory names of one dataset. Non-directories are
// skipped; a missing dataset directory yields an empty listing.
func (t *LocalDir) List(ctx context.Context, host, dataset string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(t.datasetPath(host, dataset))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("transport: listing %s:%s: %w", host, dataset, err)
	}

	var lines []string
	for _, entry := range entries {
		if !entry.IsDir() {
			t.logger.Debug("ignoring non-directory snapshot candidate",
				zap.String("dataset", dataset), zap.String("entry", entry.Name()))
			continue
		}
		lines = append(lines, entry.Name())
	}
	return lines, nil
}

// Delete removes one snapshot directory tree.
func (t *LocalDir) Delete(ctx context.Context, host, dataset, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(t.datasetPath(host, dataset), name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ErrSnapshotNotFound
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("transport: deleting %s: %w", path, err)
	}
	return nil
}
