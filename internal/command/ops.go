package command

import (
	"context"
	"errors"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/postvec/internal/ai"
	"github.com/xxxsen/postvec/internal/browser"
	"github.com/xxxsen/postvec/internal/chunker"
	"github.com/xxxsen/postvec/internal/model"
	"github.com/xxxsen/postvec/internal/normalize"
	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
	"github.com/xxxsen/postvec/internal/schema"
	"github.com/xxxsen/postvec/internal/service"
)

const (
	defaultPerPage    = 20
	previewRunes      = 500
	embedTaskDocument = "RETRIEVAL_DOCUMENT"
)

func entities(req *Request) ([]model.Entity, error) {
	if len(req.Posts) != len(req.Embeddings) {
		return nil, appErr.Invalid("got %d posts and %d embeddings", len(req.Posts), len(req.Embeddings))
	}
	out := make([]model.Entity, 0, len(req.Posts))
	for i, p := range req.Posts {
		out = append(out, model.Entity{Post: p, Embedding: req.Embeddings[i]})
	}
	return out, nil
}

func handleStore(ctx context.Context, _ *Runner, e *env) (interface{}, error) {
	items, err := entities(e.req)
	if err != nil {
		return nil, err
	}
	n, err := e.store.Store(ctx, items)
	if err != nil {
		return nil, err
	}
	return "Stored " + strconv.Itoa(n) + " embeddings", nil
}

func handleUpsert(ctx context.Context, _ *Runner, e *env) (interface{}, error) {
	items, err := entities(e.req)
	if err != nil {
		return nil, err
	}
	res, err := e.store.Upsert(ctx, items)
	if err != nil {
		return nil, err
	}
	return "Upserted " + strconv.Itoa(res.Written) + " embeddings", nil
}

type searchPost struct {
	ID              int64    `json:"id"`
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Date            string   `json:"date"`
	Permalink       string   `json:"permalink"`
	Categories      []string `json:"categories"`
	Tags            []string `json:"tags"`
	SimilarityScore float64  `json:"similarity_score"`
}

type searchOutput struct {
	Posts []searchPost `json:"posts"`
	Count int          `json:"count"`
}

func toSearchOutput(hits []model.Hit) searchOutput {
	out := searchOutput{Posts: make([]searchPost, 0, len(hits)), Count: len(hits)}
	for _, h := range hits {
		out.Posts = append(out.Posts, searchPost{
			ID:              h.ID,
			Title:           h.Title,
			Content:         preview(h.Content),
			Date:            h.Date,
			Permalink:       h.Permalink,
			Categories:      h.Categories,
			Tags:            h.Tags,
			SimilarityScore: h.Distance,
		})
	}
	return out
}

// preview cuts content to its first previewRunes characters.
func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewRunes]) + "..."
}

func handleSearch(ctx context.Context, _ *Runner, e *env) (interface{}, error) {
	if len(e.req.QueryEmbedding) == 0 {
		return nil, appErr.Invalid("query_embedding is required")
	}
	hits, err := e.store.Search(ctx, e.req.QueryEmbedding, e.req.Limit, e.req.Filters)
	if err != nil {
		if isTableMissing(err) {
			return nil, declined(err, "No embeddings table found. Please store embeddings first.")
		}
		return nil, err
	}
	return toSearchOutput(hits), nil
}

func handleSearchText(ctx context.Context, r *Runner, e *env) (interface{}, error) {
	emb, err := r.embedder(ctx, e)
	if err != nil {
		return nil, err
	}
	hits, err := service.NewSearchService(e.store, emb).SearchText(ctx, e.req.Query, e.req.Limit, e.req.Filters)
	if err != nil {
		if isTableMissing(err) {
			return nil, declined(err, "No embeddings table found. Please store embeddings first.")
		}
		return nil, err
	}
	return toSearchOutput(hits), nil
}

func handleStats(ctx context.Context, _ *Runner, e *env) (interface{}, error) {
	return e.store.Stats(ctx)
}

func handleCheckExisting(ctx context.Context, _ *Runner, e *env) (interface{}, error) {
	return e.store.CheckExisting(ctx, e.req.PostIDs)
}

type recordOutput struct {
	Embedding  []float32 `json:"embedding"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Date       string    `json:"date"`
	Permalink  string    `json:"permalink"`
	Categories []string  `json:"categories"`
	Tags       []string  `json:"tags"`
}

func handleGetByIDs(ctx context.Context, _ *Runner, e *env) (interface{}, error) {
	records, err := e.store.GetByIDs(ctx, e.req.PostIDs)
	if err != nil {
		if isTableMissing(err) {
			return nil, declined(err, "No embeddings table found")
		}
		return nil, err
	}
	out := make(map[string]recordOutput, len(records))
	for id, rec := range records {
		out[strconv.FormatInt(id, 10)] = recordOutput{
			Embedding:  rec.Embedding,
			Title:      rec.Title,
			Content:    rec.Content,
			Date:       rec.Date,
			Permalink:  rec.Permalink,
			Categories: rec.Categories,
			Tags:       rec.Tags,
		}
	}
	return out, nil
}

func handleEnsureSchema(ctx context.Context, r *Runner, e *env) (interface{}, error) {
	opts := []schema.Option{
		schema.WithDimension(r.cfg.Dimension),
		schema.WithTimeout(time.Duration(r.cfg.Timeouts.StorageMS) * time.Millisecond),
	}
	if r.snapshots != nil {
		opts = append(opts, schema.WithSnapshotStore(r.snapshots))
	}
	return schema.New(e.conn, opts...).EnsureSchema(ctx, e.store.Table())
}

func handleBrowse(ctx context.Context, r *Runner, e *env) (interface{}, error) {
	return browser.New(e.store, browser.WithClock(r.clock)).Page(ctx, browser.Query{
		Page:       intOr(e.req.Page, 1),
		PerPage:    intOr(e.req.PerPage, defaultPerPage),
		Search:     e.req.Search,
		DateBucket: e.req.DateFilter,
	})
}

func (r *Runner) splitter(ctx context.Context, req *Request) (chunker.Splitter, error) {
	budget := req.TokenBudget
	if budget == 0 {
		budget = r.cfg.MaxInputTokens
	}
	mode := req.Mode
	if mode == "" {
		mode = r.cfg.ChunkMode
	}
	model := req.Model
	if model == "" {
		model = r.cfg.EmbeddingsModel
	}
	return chunker.New(mode, budget, chunker.NewCounter(ctx, model))
}

type chunkOutput struct {
	Chunks []model.Chunk `json:"chunks"`
	Count  int           `json:"count"`
	Budget int           `json:"token_budget"`
}

func handleChunk(ctx context.Context, r *Runner, e *env) (interface{}, error) {
	text := e.req.Text
	if text == "" && e.req.HTML != "" {
		norm, err := normalize.New("")
		if err != nil {
			return nil, err
		}
		if text, err = norm.Normalize(ctx, e.req.HTML); err != nil {
			return nil, err
		}
	}
	if text == "" {
		return nil, declined(appErr.ErrInvalid, "No text provided")
	}
	sp, err := r.splitter(ctx, e.req)
	if err != nil {
		return nil, err
	}
	chunks, err := sp.Split(ctx, 0, text)
	if err != nil {
		return nil, err
	}
	return chunkOutput{Chunks: chunks, Count: len(chunks), Budget: sp.Budget()}, nil
}

type embedOutput struct {
	Embedding  []float32 `json:"embedding"`
	Model      string    `json:"model"`
	TextLength int       `json:"text_length"`
}

func handleEmbed(ctx context.Context, r *Runner, e *env) (interface{}, error) {
	if e.req.Text == "" {
		return nil, declined(appErr.ErrInvalid, "No text provided")
	}
	emb, err := r.embedder(ctx, e)
	if err != nil {
		return nil, err
	}
	vec, err := emb.Embed(ctx, e.req.Text, embedTaskDocument)
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			return nil, declined(err, "No API key provided")
		}
		return nil, err
	}
	return embedOutput{
		Embedding:  vec,
		Model:      emb.ModelName(),
		TextLength: utf8.RuneCountInString(e.req.Text),
	}, nil
}

func handleIngest(ctx context.Context, r *Runner, e *env) (interface{}, error) {
	emb, err := r.embedder(ctx, e)
	if err != nil {
		return nil, err
	}
	norm, err := normalize.New("")
	if err != nil {
		return nil, err
	}
	sp, err := r.splitter(ctx, e.req)
	if err != nil {
		return nil, err
	}
	svc := service.NewIngestService(e.store, norm, sp, emb, service.IngestConfig{
		Concurrency: r.cfg.Ingest.Concurrency,
		RPS:         r.cfg.Ingest.RPS,
	})
	return svc.Ingest(ctx, e.req.Posts, e.req.Force)
}
