package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xxxsen/postvec/internal/ai"
	"github.com/xxxsen/postvec/internal/chunker"
	"github.com/xxxsen/postvec/internal/model"
	"github.com/xxxsen/postvec/internal/normalize"
	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
	"github.com/xxxsen/postvec/internal/vectorstore"
)

const embedTaskDocument = "RETRIEVAL_DOCUMENT"

type PostStore interface {
	ResolveDimension(ctx context.Context) (int, error)
	CheckExisting(ctx context.Context, ids []int64) (vectorstore.ExistenceResult, error)
	Upsert(ctx context.Context, entities []model.Entity) (vectorstore.UpsertResult, error)
}

type IngestConfig struct {
	// Concurrency bounds how many posts are embedded at once.
	Concurrency int
	// RPS caps embedding requests per second. Zero means unlimited.
	RPS float64
}

type IngestResult struct {
	Checked   int     `json:"checked"`
	Existing  int     `json:"existing"`
	Embedded  int     `json:"embedded"`
	Skipped   int     `json:"skipped"`
	Failed    int     `json:"failed"`
	FailedIDs []int64 `json:"failed_ids,omitempty"`
	Message   string  `json:"message"`
}

type IngestService struct {
	store       PostStore
	normalizer  normalize.Normalizer
	splitter    chunker.Splitter
	embedder    ai.IEmbedder
	limiter     *rate.Limiter
	concurrency int
}

func NewIngestService(store PostStore, normalizer normalize.Normalizer, splitter chunker.Splitter, embedder ai.IEmbedder, cfg IngestConfig) *IngestService {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &IngestService{
		store:       store,
		normalizer:  normalizer,
		splitter:    splitter,
		embedder:    embedder,
		limiter:     limiter,
		concurrency: cfg.Concurrency,
	}
}

// Ingest embeds the posts that are not stored yet, or all of them when
// force is set, and upserts one row per post. A post that fails to embed is
// counted and skipped; a failing upsert fails the whole call.
func (s *IngestService) Ingest(ctx context.Context, posts []model.Post, force bool) (IngestResult, error) {
	logger := logutil.GetLogger(ctx)
	res := IngestResult{Checked: len(posts)}
	if len(posts) == 0 {
		res.Message = "No posts provided."
		return res, nil
	}
	ids := make([]int64, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	existing, err := s.store.CheckExisting(ctx, ids)
	if err != nil {
		return res, err
	}
	res.Existing = len(existing.Existing)

	todo := posts
	if !force {
		present := make(map[int64]struct{}, len(existing.Existing))
		for _, id := range existing.Existing {
			present[id] = struct{}{}
		}
		todo = make([]model.Post, 0, len(posts))
		for _, p := range posts {
			if _, ok := present[p.ID]; ok {
				res.Skipped++
				continue
			}
			todo = append(todo, p)
		}
	}
	if len(todo) == 0 {
		res.Message = fmt.Sprintf("Found %d existing embeddings, no new embeddings needed.", res.Existing)
		return res, nil
	}

	dim, err := s.store.ResolveDimension(ctx)
	if err != nil {
		return res, err
	}

	var (
		mu       sync.Mutex
		entities = make([]model.Entity, len(todo))
		ok       = make([]bool, len(todo))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, p := range todo {
		g.Go(func() error {
			entity, err := s.embedPost(gctx, p, dim)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("embed post failed", zap.Int64("post_id", p.ID), zap.Error(err))
				res.Failed++
				res.FailedIDs = append(res.FailedIDs, p.ID)
				return nil
			}
			entities[i] = entity
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	ready := make([]model.Entity, 0, len(todo))
	for i := range entities {
		if ok[i] {
			ready = append(ready, entities[i])
		}
	}
	if len(ready) > 0 {
		if _, err := s.store.Upsert(ctx, ready); err != nil {
			return res, err
		}
	}
	res.Embedded = len(ready)
	res.Message = fmt.Sprintf("Found %d existing embeddings, stored %d new embeddings.", res.Existing, res.Embedded)
	if res.Failed > 0 {
		res.Message += fmt.Sprintf(" %d posts failed.", res.Failed)
	}
	logger.Info("ingest finished",
		zap.Int("checked", res.Checked),
		zap.Int("existing", res.Existing),
		zap.Int("embedded", res.Embedded),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *IngestService) embedPost(ctx context.Context, p model.Post, dim int) (model.Entity, error) {
	content, err := s.normalizer.Normalize(ctx, p.Content)
	if err != nil {
		return model.Entity{}, fmt.Errorf("normalize: %w", err)
	}
	p.Content = content
	text := strings.TrimSpace(p.Title + " " + content)
	if text == "" {
		return model.Entity{}, appErr.Invalid("post %d has no text", p.ID)
	}
	chunks, err := s.splitter.Split(ctx, p.ID, text)
	if err != nil {
		return model.Entity{}, fmt.Errorf("chunk: %w", err)
	}
	vectors := make([][]float32, 0, len(chunks))
	weights := make([]int, 0, len(chunks))
	for _, c := range chunks {
		if err := s.limiter.Wait(ctx); err != nil {
			return model.Entity{}, err
		}
		vec, err := s.embedder.Embed(ctx, c.Text, embedTaskDocument)
		if err != nil {
			return model.Entity{}, fmt.Errorf("embed chunk %d: %w", c.SequenceIndex, err)
		}
		vectors = append(vectors, vec)
		weights = append(weights, c.TokenCount)
	}
	pooled, err := MeanPool(vectors, weights)
	if err != nil {
		return model.Entity{}, err
	}
	if len(pooled) != dim {
		return model.Entity{}, fmt.Errorf("%w: model returned %d values, table expects %d", appErr.ErrDimensionMismatch, len(pooled), dim)
	}
	return model.Entity{Post: p, Embedding: pooled}, nil
}

// MeanPool averages vectors weighted by the token count of the chunk each
// came from. Non-positive weights count as one.
func MeanPool(vectors [][]float32, weights []int) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no vectors to pool")
	}
	if len(weights) != len(vectors) {
		return nil, fmt.Errorf("got %d weights for %d vectors", len(weights), len(vectors))
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	total := 0.0
	for i, vec := range vectors {
		if len(vec) != dim {
			return nil, fmt.Errorf("%w: chunk vectors have %d and %d values", appErr.ErrDimensionMismatch, dim, len(vec))
		}
		w := float64(weights[i])
		if w <= 0 {
			w = 1
		}
		for j, v := range vec {
			sum[j] += w * float64(v)
		}
		total += w
	}
	out := make([]float32, dim)
	for j := range sum {
		out[j] = float32(sum[j] / total)
	}
	return out, nil
}
