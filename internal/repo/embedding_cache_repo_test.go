package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/postvec/internal/model"
	"github.com/xxxsen/postvec/internal/repo"
	"github.com/xxxsen/postvec/test/testutil"
)

func TestEmbeddingCacheRepo(t *testing.T) {
	ctx := context.Background()
	conn, _ := testutil.OpenTestDB(t)
	cache := repo.NewEmbeddingCacheRepo(conn)

	_, ok, err := cache.Get(ctx, "m", "", "h1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.Save(ctx, &model.EmbeddingCache{ModelName: "m", ContentHash: "h1", Embedding: []float32{1, 2}, Ctime: 100}))
	require.NoError(t, cache.Save(ctx, &model.EmbeddingCache{ModelName: "m", ContentHash: "h1", Embedding: []float32{3, 4}, Ctime: 300}))
	require.NoError(t, cache.Save(ctx, &model.EmbeddingCache{ModelName: "m", ContentHash: "h2", Embedding: []float32{5}, Ctime: 50}))

	vec, ok, err := cache.Get(ctx, "m", "", "h1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float32{3, 4}, vec)

	n, err := cache.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	deleted, err := cache.DeleteBefore(ctx, 200)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
	_, ok, err = cache.Get(ctx, "m", "", "h2")
	require.NoError(t, err)
	require.False(t, ok)
}
