package service

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/postvec/internal/ai"
	"github.com/xxxsen/postvec/internal/model"
	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
	"github.com/xxxsen/postvec/internal/vectorstore"
)

const embedTaskQuery = "RETRIEVAL_QUERY"

type Searcher interface {
	Search(ctx context.Context, query []float32, limit int, filters vectorstore.Filters) ([]model.Hit, error)
}

type SearchService struct {
	searcher Searcher
	embedder ai.IEmbedder
}

func NewSearchService(searcher Searcher, embedder ai.IEmbedder) *SearchService {
	return &SearchService{searcher: searcher, embedder: embedder}
}

// SearchText embeds query and returns its nearest posts.
func (s *SearchService) SearchText(ctx context.Context, query string, limit int, filters vectorstore.Filters) ([]model.Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, appErr.Invalid("query is required")
	}
	if s.embedder == nil {
		return nil, ai.ErrUnavailable
	}
	vec, err := s.embedder.Embed(ctx, query, embedTaskQuery)
	if err != nil {
		logutil.GetLogger(ctx).Error("failed to embed search query", zap.Error(err))
		return nil, err
	}
	return s.searcher.Search(ctx, vec, limit, filters)
}
