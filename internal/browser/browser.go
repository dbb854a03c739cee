package browser

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/postvec/internal/model"
	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
	"github.com/xxxsen/postvec/internal/pkg/timeutil"
	"github.com/xxxsen/postvec/internal/vectorstore"
)

// Source is the part of the vector store the browser reads from.
type Source interface {
	Table() string
	Dimension() int
	TableExists(ctx context.Context) (bool, error)
	ListMeta(ctx context.Context, dates vectorstore.DateRange) ([]vectorstore.Entry, error)
	EmbeddingsByRowIDs(ctx context.Context, rowIDs []int64) (map[int64][]float32, error)
}

type Query struct {
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	Search     string `json:"search"`
	DateBucket string `json:"date_filter"`
}

type PageResult struct {
	Posts      []model.Record `json:"posts"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
	TotalPages int            `json:"total_pages"`
	// Sample is set when the table is absent and Posts are generated.
	Sample bool `json:"sample"`
}

type Option func(*Browser)

func WithClock(clock timeutil.Clock) Option {
	return func(b *Browser) {
		b.clock = clock
	}
}

type Browser struct {
	src   Source
	clock timeutil.Clock
}

func New(src Source, opts ...Option) *Browser {
	b := &Browser{src: src, clock: timeutil.System()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Page filters the whole table in memory and returns one page of it. Only
// the returned rows have their embeddings loaded.
func (b *Browser) Page(ctx context.Context, q Query) (PageResult, error) {
	if q.Page < 1 {
		return PageResult{}, appErr.Invalid("page must be >= 1, got %d", q.Page)
	}
	if q.PerPage <= 0 {
		return PageResult{}, appErr.Invalid("per_page must be > 0, got %d", q.PerPage)
	}
	dates, err := ResolveBucket(q.DateBucket, b.clock())
	if err != nil {
		return PageResult{}, err
	}
	exists, err := b.src.TableExists(ctx)
	if err != nil {
		return PageResult{}, appErr.Wrap("browse", b.src.Table(), err)
	}
	if !exists {
		logutil.GetLogger(ctx).Warn("table not found, serving sample data", zap.String("table", b.src.Table()))
		return Sample(q.PerPage, b.src.Dimension(), b.clock()), nil
	}

	entries, err := b.src.ListMeta(ctx, dates)
	if err != nil {
		return PageResult{}, err
	}
	entries = filterTerms(entries, q.Search)

	res := PageResult{
		Posts:      []model.Record{},
		TotalCount: len(entries),
		Page:       q.Page,
		PerPage:    q.PerPage,
		TotalPages: totalPages(len(entries), q.PerPage),
	}
	start, end, ok := pageBounds(len(entries), q.Page, q.PerPage)
	if !ok {
		return res, nil
	}
	page := entries[start:end]
	rowIDs := make([]int64, 0, len(page))
	for _, e := range page {
		rowIDs = append(rowIDs, e.RowID)
	}
	vecs, err := b.src.EmbeddingsByRowIDs(ctx, rowIDs)
	if err != nil {
		return PageResult{}, err
	}
	for _, e := range page {
		rec := e.Record
		rec.Embedding = vecs[e.RowID]
		res.Posts = append(res.Posts, rec)
	}
	return res, nil
}

func totalPages(total, perPage int) int {
	pages := total / perPage
	if total%perPage != 0 {
		pages++
	}
	return pages
}

// pageBounds returns the slice bounds of page within total entries. ok is
// false for a page past the end. Nothing here can overflow for page >= 1
// and perPage > 0.
func pageBounds(total, page, perPage int) (int, int, bool) {
	if page-1 >= totalPages(total, perPage) {
		return 0, 0, false
	}
	start := (page - 1) * perPage
	end := total
	if total-start > perPage {
		end = start + perPage
	}
	return start, end, true
}

// filterTerms keeps entries whose title or content contains any of the
// whitespace separated terms, ignoring case.
func filterTerms(entries []vectorstore.Entry, search string) []vectorstore.Entry {
	terms := strings.Fields(strings.ToLower(search))
	if len(terms) == 0 {
		return entries
	}
	out := make([]vectorstore.Entry, 0, len(entries))
	for _, e := range entries {
		title := strings.ToLower(e.Record.Post.Title)
		content := strings.ToLower(e.Record.Post.Content)
		for _, term := range terms {
			if strings.Contains(title, term) || strings.Contains(content, term) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
