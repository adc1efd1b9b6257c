package transport

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, host, dataset string, names ...string) *LocalDir {
	t.Helper()
	root := t.TempDir()
	for _, name := range names {
		dir := filepath.Join(root, host, dataset, name)
		require.NoError(t, os.MkdirAll(dir, 0755))
	}
	return NewLocalDir(root, nil)
}

func TestLocalDir_List(t *testing.T) {
	tr := newStore(t, "backup01", "home", "home-2024-01-01", "home-2024-01-02")
	// A stray file must not appear in the listing.
	require.NoError(t, ioutil.WriteFile(filepath.Join(tr.Root, "backup01", "home", "manifest.txt"), []byte("x"), 0644))

	lines, err := tr.List(context.Background(), "backup01", "home")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"home-2024-01-01", "home-2024-01-02"}, lines)
}

func TestLocalDir_ListMissingDataset(t *testing.T) {
	tr := NewLocalDir(t.TempDir(), nil)
	lines, err := tr.List(context.Background(), "backup01", "nope")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestLocalDir_Delete(t *testing.T) {
	tr := newStore(t, "backup01", "home", "home-2024-01-01")

	require.NoError(t, tr.Delete(context.Background(), "backup01", "home", "home-2024-01-01"))
	_, err := os.Stat(filepath.Join(tr.Root, "backup01", "home", "home-2024-01-01"))
	assert.True(t, os.IsNotExist(err))

	// Second delete reports the snapshot as already absent.
	err = tr.Delete(context.Background(), "backup01", "home", "home-2024-01-01")
	assert.True(t, IsNotFound(err))
}

func TestLocalDir_ContextCancelled(t *testing.T) {
	tr := newStore(t, "backup01", "home", "home-2024-01-01")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.List(ctx, "backup01", "home")
	assert.Error(t, err)
	err = tr.Delete(ctx, "backup01", "home", "home-2024-01-01")
	assert.Error(t, err)
	assert.False(t, IsNotFound(err))
}
