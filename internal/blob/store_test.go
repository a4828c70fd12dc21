package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

// exerciseStore runs the behaviour shared by every backend
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	info, err := s.Put(ctx, "run/cells_per_cell.csv", strings.NewReader("a,b\n1,2\n"), PutOptions{ContentType: "text/csv"})
	require.NoError(t, err)
	assert.Equal(t, "run/cells_per_cell.csv", info.Key)
	assert.Equal(t, int64(8), info.Size)

	got, rc, err := s.Get(ctx, "run/cells_per_cell.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", readAll(t, rc))
	assert.Equal(t, int64(8), got.Size)

	// Put replaces existing content
	_, err = s.Put(ctx, "run/cells_per_cell.csv", strings.NewReader("x\n"), PutOptions{})
	require.NoError(t, err)
	head, err := s.Head(ctx, "run/cells_per_cell.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(2), head.Size)

	_, err = s.Put(ctx, "run/cells_per_mouse.csv", strings.NewReader("y\n"), PutOptions{})
	require.NoError(t, err)
	_, err = s.Put(ctx, "other.csv", strings.NewReader("z\n"), PutOptions{})
	require.NoError(t, err)

	list, err := s.List(ctx, "run/")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "run/cells_per_cell.csv", list[0].Key)
	assert.Equal(t, "run/cells_per_mouse.csv", list[1].Key)

	existed, err := s.Delete(ctx, "other.csv")
	require.NoError(t, err)
	assert.True(t, existed)
	existed, err = s.Delete(ctx, "other.csv")
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = s.Head(ctx, "other.csv")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = s.Get(ctx, "missing.csv")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Put(ctx, "../escape.csv", strings.NewReader(""), PutOptions{})
	assert.Error(t, err)
	_, err = s.Put(ctx, "", strings.NewReader(""), PutOptions{})
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	assert.Equal(t, DriverMemory, s.Driver())
	exerciseStore(t, s)
}

func TestMemoryStoreMetadataIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	md := map[string]string{"run_id": "abc"}

	_, err := s.Put(ctx, "k", strings.NewReader("v"), PutOptions{Metadata: md})
	require.NoError(t, err)
	md["run_id"] = "changed"

	info, err := s.Head(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", info.Metadata["run_id"])

	info.Metadata["run_id"] = "mutated"
	again, err := s.Head(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", again.Metadata["run_id"])
}

func TestFilesystemStore(t *testing.T) {
	root := t.TempDir()
	s, err := NewFilesystem(root)
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())
	assert.Equal(t, root, s.Root())
	exerciseStore(t, s)

	// artifacts are plain files under the root
	data, err := os.ReadFile(filepath.Join(root, "run", "cells_per_mouse.csv"))
	require.NoError(t, err)
	assert.Equal(t, "y\n", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "run"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), "temp file left behind: %s", e.Name())
	}
}

func TestFilesystemStorePutReportsLocation(t *testing.T) {
	root := t.TempDir()
	s, err := NewFilesystem(root)
	require.NoError(t, err)

	info, err := s.Put(context.Background(), "membrane properties_per_cell.csv", strings.NewReader("a\n"), PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "membrane properties_per_cell.csv"), info.Location)
	assert.Len(t, info.ETag, 64)
}

func TestFilesystemStoreCancelledContext(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Put(ctx, "k.csv", strings.NewReader("v"), PutOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"a.csv", false},
		{"dir/a.csv", false},
		{"a..b.csv", false},
		{"", true},
		{"  ", true},
		{"/abs.csv", true},
		{"../up.csv", true},
		{"dir/../../up.csv", true},
		{`dir\..\up.csv`, true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			_, err := sanitizeKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
