package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestExecute(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "store")
	configPath = writeFile(t, dir, "config.json", `{"storage_root": "`+root+`", "dimension": 4}`)
	t.Cleanup(func() { configPath = "" })

	req := writeFile(t, dir, "req.json", `{"posts":[{"id":7,"title":"t","content":"c"}],"embeddings":[[1,0,0,0]]}`)
	resp := execute(context.Background(), req, "upsert_embeddings")
	require.True(t, resp.Success, resp.Data)
	require.Equal(t, "Upserted 1 embeddings", resp.Data)

	resp = execute(context.Background(), req, "bogus")
	require.False(t, resp.Success)
	require.Equal(t, "Unknown operation: bogus", resp.Data)

	resp = execute(context.Background(), filepath.Join(dir, "missing.json"), "stats")
	require.False(t, resp.Success)
}
