package filestore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/postvec/internal/config"
)

func TestLocalSaveOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": dir}})
	require.NoError(t, err)
	require.Equal(t, "local", store.Type())

	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.WriteFile(src, []byte("line\n"), 0o644))
	f, err := os.Open(src)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Seek(2, io.SeekStart)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, "snapshots/a.jsonl", f, 5))
	rc, err := store.Open(ctx, "snapshots/a.jsonl")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "line\n", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(config.FileStoreConfig{})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "ftp"})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "local"})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{}})
	require.Error(t, err)
}

func TestValidKey(t *testing.T) {
	for _, key := range []string{"a", "a/b.jsonl", "snapshots/t-1.jsonl"} {
		require.NoError(t, validKey(key), key)
	}
	for _, key := range []string{"", "/abs", "a//b", "a/../b", "./a", `a\b`} {
		require.Error(t, validKey(key), key)
	}
}

func TestS3ConfigNamesMissingFields(t *testing.T) {
	_, err := New(config.FileStoreConfig{Type: "s3", Data: map[string]interface{}{"endpoint": "s3.local", "bucket": "b"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing secret_id, secret_key")
}

func TestS3SnapshotKeysAndOpen(t *testing.T) {
	s := &s3Store{bucket: "corpus", prefix: defaultS3Prefix}
	require.Equal(t, "postvec/snapshots/posts-1.jsonl", s.objectKey("snapshots/posts-1.jsonl"))

	_, err := s.Open(context.Background(), "snapshots/posts-1.jsonl")
	require.True(t, errors.Is(err, errors.ErrUnsupported))
	require.Contains(t, err.Error(), "corpus")

	require.Error(t, s.Save(context.Background(), "../escape", nil, 0))
}
