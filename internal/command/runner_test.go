package command

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/postvec/internal/ai"
	"github.com/xxxsen/postvec/internal/browser"
	"github.com/xxxsen/postvec/internal/config"
	"github.com/xxxsen/postvec/internal/model"
	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
	"github.com/xxxsen/postvec/internal/pkg/timeutil"
	"github.com/xxxsen/postvec/internal/schema"
	"github.com/xxxsen/postvec/internal/service"
	"github.com/xxxsen/postvec/internal/vectorstore"
)

type fixedEmbedder struct {
	vec []float32
	err error
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fixedEmbedder) ModelName() string {
	return "fixed"
}

func newRunner(t *testing.T, emb ai.IEmbedder) *Runner {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.StorageRoot = t.TempDir()
	cfg.Dimension = 4
	factory := func(ctx context.Context, conn *sqlx.DB, model, apiKey string) (ai.IEmbedder, error) {
		return emb, nil
	}
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	return NewRunner(cfg, WithEmbedderFactory(factory), WithClock(timeutil.Fixed(now)))
}

func samplePosts() []model.Post {
	return []model.Post{
		{ID: 1, Title: "first", Content: "alpha", Date: "2024-05-01", Categories: []string{"go"}, Tags: []string{}},
		{ID: 2, Title: "second", Content: strings.Repeat("b", 600), Date: "2024-05-02", Categories: []string{"db"}, Tags: []string{"x"}},
	}
}

func TestUnknownOperation(t *testing.T) {
	r := newRunner(t, nil)
	resp := r.Run(context.Background(), "nope", &Request{})
	require.False(t, resp.Success)
	require.Equal(t, "Unknown operation: nope", resp.Data)
}

func TestUpsertThenSearch(t *testing.T) {
	ctx := context.Background()
	r := newRunner(t, nil)
	req := &Request{
		Posts:      samplePosts(),
		Embeddings: [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}},
	}
	resp := r.Run(ctx, "upsert_embeddings", req)
	require.True(t, resp.Success, resp.Data)
	require.Equal(t, "Upserted 2 embeddings", resp.Data)

	resp = r.Run(ctx, "search", &Request{QueryEmbedding: []float32{0, 1, 0, 0}, Limit: 5})
	require.True(t, resp.Success, resp.Data)
	out := resp.Data.(searchOutput)
	require.Equal(t, 2, out.Count)
	require.Equal(t, int64(2), out.Posts[0].ID)
	require.Equal(t, 0.0, out.Posts[0].SimilarityScore)
	require.Equal(t, strings.Repeat("b", 500)+"...", out.Posts[0].Content)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"similarity_score"`)
}

func TestStoreKeepsDuplicates(t *testing.T) {
	ctx := context.Background()
	r := newRunner(t, nil)
	req := &Request{Posts: samplePosts()[:1], Embeddings: [][]float32{{1, 0, 0, 0}}}
	for i := 0; i < 2; i++ {
		resp := r.Run(ctx, "store", req)
		require.True(t, resp.Success, resp.Data)
		require.Equal(t, "Stored 1 embeddings", resp.Data)
	}
	resp := r.Run(ctx, "stats", &Request{})
	require.True(t, resp.Success)
	st := resp.Data.(vectorstore.Stats)
	require.True(t, st.TableExists)
	require.Equal(t, int64(2), st.RowCount)
}

func TestMismatchedEmbeddings(t *testing.T) {
	r := newRunner(t, nil)
	resp := r.Run(context.Background(), "store", &Request{Posts: samplePosts(), Embeddings: [][]float32{{1, 0, 0, 0}}})
	require.False(t, resp.Success)
	require.True(t, strings.HasPrefix(resp.Data.(string), "Failed to store embeddings: "))
}

func TestMissingTableMessages(t *testing.T) {
	ctx := context.Background()
	r := newRunner(t, nil)
	resp := r.Run(ctx, "search", &Request{QueryEmbedding: []float32{1, 0, 0, 0}})
	require.False(t, resp.Success)
	require.Equal(t, "No embeddings table found. Please store embeddings first.", resp.Data)

	resp = r.Run(ctx, "get_embeddings_by_ids", &Request{PostIDs: []int64{1}})
	require.False(t, resp.Success)
	require.Equal(t, "No embeddings table found", resp.Data)

	resp = r.Run(ctx, "check_existing_embeddings", &Request{PostIDs: []int64{3, 1}})
	require.True(t, resp.Success)
	res := resp.Data.(vectorstore.ExistenceResult)
	require.Empty(t, res.Existing)
	require.ElementsMatch(t, []int64{1, 3}, res.Missing)
}

func TestGetByIDs(t *testing.T) {
	ctx := context.Background()
	r := newRunner(t, nil)
	resp := r.Run(ctx, "upsert", &Request{Posts: samplePosts(), Embeddings: [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}})
	require.True(t, resp.Success, resp.Data)

	resp = r.Run(ctx, "get-by-ids", &Request{PostIDs: []int64{1, 9}})
	require.True(t, resp.Success, resp.Data)
	out := resp.Data.(map[string]recordOutput)
	require.Len(t, out, 1)
	require.Equal(t, "first", out["1"].Title)
	require.Equal(t, []float32{1, 0, 0, 0}, out["1"].Embedding)
}

func TestBrowseFallsBackToSample(t *testing.T) {
	r := newRunner(t, nil)
	resp := r.Run(context.Background(), "browse", &Request{})
	require.True(t, resp.Success, resp.Data)
	page := resp.Data.(browser.PageResult)
	require.True(t, page.Sample)
	require.Equal(t, 1, page.Page)
	require.Equal(t, defaultPerPage, page.PerPage)
}

func TestBrowseRejectsBadPage(t *testing.T) {
	r := newRunner(t, nil)
	zero := 0
	resp := r.Run(context.Background(), "browse", &Request{Page: &zero})
	require.False(t, resp.Success)
	require.True(t, strings.HasPrefix(resp.Data.(string), "Failed to browse posts: "))
}

func TestEnsureSchemaOnAbsentTable(t *testing.T) {
	r := newRunner(t, nil)
	resp := r.Run(context.Background(), "ensure-schema", &Request{})
	require.True(t, resp.Success, resp.Data)
	res := resp.Data.(schema.Result)
	require.Equal(t, schema.ActionNoop, res.Action)
	require.False(t, res.TableExists)
}

func TestChunk(t *testing.T) {
	ctx := context.Background()
	r := newRunner(t, nil)
	resp := r.Run(ctx, "chunk", &Request{})
	require.False(t, resp.Success)
	require.Equal(t, "No text provided", resp.Data)

	text := "line one\nline two\nline three\n"
	resp = r.Run(ctx, "chunk", &Request{Text: text, TokenBudget: 1000})
	require.True(t, resp.Success, resp.Data)
	out := resp.Data.(chunkOutput)
	require.Equal(t, 1, out.Count)
	require.Equal(t, text, out.Chunks[0].Text)
	require.Equal(t, 1000, out.Budget)
}

func TestEmbed(t *testing.T) {
	ctx := context.Background()
	r := newRunner(t, &fixedEmbedder{vec: []float32{0.5, 0.5}})
	resp := r.Run(ctx, "embed", &Request{})
	require.False(t, resp.Success)
	require.Equal(t, "No text provided", resp.Data)

	resp = r.Run(ctx, "embed", &Request{Text: "héllo"})
	require.True(t, resp.Success, resp.Data)
	out := resp.Data.(embedOutput)
	require.Equal(t, []float32{0.5, 0.5}, out.Embedding)
	require.Equal(t, 5, out.TextLength)

	r = newRunner(t, &fixedEmbedder{err: ai.ErrUnavailable})
	resp = r.Run(ctx, "embed", &Request{Text: "hello"})
	require.False(t, resp.Success)
	require.Equal(t, "No API key provided", resp.Data)
}

func TestIngestAndSearchText(t *testing.T) {
	ctx := context.Background()
	r := newRunner(t, &fixedEmbedder{vec: []float32{0, 0, 1, 0}})
	resp := r.Run(ctx, "ingest", &Request{Posts: samplePosts()})
	require.True(t, resp.Success, resp.Data)
	res := resp.Data.(service.IngestResult)
	require.Equal(t, 2, res.Embedded)

	resp = r.Run(ctx, "ingest", &Request{Posts: samplePosts()})
	require.True(t, resp.Success, resp.Data)
	res = resp.Data.(service.IngestResult)
	require.Equal(t, 0, res.Embedded)
	require.Equal(t, 2, res.Skipped)

	resp = r.Run(ctx, "search_text", &Request{Query: "anything", Limit: 1})
	require.True(t, resp.Success, resp.Data)
	require.Equal(t, 1, resp.Data.(searchOutput).Count)
}

func TestResolveDBPath(t *testing.T) {
	require.Equal(t, "/data", ResolveDBPath("/data", ""))
	require.Equal(t, filepath.Join("/data", "site"), ResolveDBPath("/data", "site"))
	require.Equal(t, "/abs/site", ResolveDBPath("/data", "/abs/site"))
}

func TestConfineDBPath(t *testing.T) {
	dir, err := ConfineDBPath("/data", "")
	require.NoError(t, err)
	require.Equal(t, "/data", dir)

	dir, err = ConfineDBPath("/data", "sites/../blog")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/data", "blog"), dir)

	for _, p := range []string{"/abs/site", "..", "../data2", "site/../../x"} {
		_, err := ConfineDBPath("/data", p)
		require.ErrorIs(t, err, appErr.ErrInvalid, p)
	}
}

func TestConfinedRunnerRejectsOutsidePath(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.StorageRoot = t.TempDir()
	cfg.Dimension = 4
	outside := t.TempDir()
	r := NewRunner(cfg, WithConfinedStorage())
	_, err = r.Exec(context.Background(), "stats", &Request{DBPath: outside})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	require.Contains(t, err.Error(), "Failed to get stats")
	_, statErr := os.Stat(filepath.Join(outside, "postvec.db"))
	require.True(t, os.IsNotExist(statErr))
}

func TestCanonical(t *testing.T) {
	require.Equal(t, "check-existing", Canonical("check_existing_embeddings"))
	require.Equal(t, "store", Canonical("store"))
	r := newRunner(t, nil)
	require.Contains(t, r.Ops(), "get-by-ids")
}

func TestExecKeepsErrorChain(t *testing.T) {
	r := newRunner(t, nil)
	_, err := r.Exec(context.Background(), "search", &Request{QueryEmbedding: []float32{1, 0, 0, 0}})
	require.Error(t, err)
	require.ErrorIs(t, err, appErr.ErrTableNotFound)

	_, err = r.Exec(context.Background(), "missing", nil)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}
