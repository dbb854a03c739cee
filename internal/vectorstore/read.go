package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/postvec/internal/model"
	"github.com/xxxsen/postvec/internal/pkg/dbutil"
	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
	"github.com/xxxsen/postvec/internal/pkg/vecsql"
)

const DefaultSearchLimit = 5

var metaFields = []string{"rowid", "id", "title", "content", "date", "permalink", "categories", "tags", "created_at"}

type row struct {
	RowID      int64   `db:"rowid"`
	ID         int64   `db:"id"`
	Title      string  `db:"title"`
	Content    string  `db:"content"`
	Date       string  `db:"date"`
	Permalink  string  `db:"permalink"`
	Categories string  `db:"categories"`
	Tags       string  `db:"tags"`
	Embedding  []byte  `db:"embedding"`
	CreatedAt  int64   `db:"created_at"`
	Distance   float64 `db:"distance"`
}

func (r row) toRecord() (model.Record, error) {
	categories, err := unmarshalList(r.Categories)
	if err != nil {
		return model.Record{}, fmt.Errorf("decode categories of row %d: %w", r.RowID, err)
	}
	tags, err := unmarshalList(r.Tags)
	if err != nil {
		return model.Record{}, fmt.Errorf("decode tags of row %d: %w", r.RowID, err)
	}
	rec := model.Record{
		Post: model.Post{
			ID:         r.ID,
			Title:      r.Title,
			Content:    r.Content,
			Date:       r.Date,
			Permalink:  r.Permalink,
			Categories: categories,
			Tags:       tags,
		},
		CreatedAt: time.UnixMicro(r.CreatedAt).UTC(),
	}
	if r.Embedding != nil {
		vec, err := vecsql.Decode(r.Embedding)
		if err != nil {
			return model.Record{}, fmt.Errorf("decode embedding of row %d: %w", r.RowID, err)
		}
		rec.Embedding = vec
	}
	return rec, nil
}

func unmarshalList(s string) ([]string, error) {
	out := []string{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// Search returns the limit rows nearest to query. Ties on distance are
// broken by insertion order.
func (s *Store) Search(ctx context.Context, query []float32, limit int, filters Filters) ([]model.Hit, error) {
	const op = "search"
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	dim, declared, err := DeclaredDimension(ctx, s.db, s.cfg.Table)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if !declared {
		dim = s.cfg.Dimension
	}
	if len(query) != dim {
		return nil, appErr.Wrap(op, s.cfg.Table,
			fmt.Errorf("%w: query has %d values, table expects %d", appErr.ErrDimensionMismatch, len(query), dim))
	}
	exists, err := s.TableExists(ctx)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if !exists {
		return nil, appErr.Wrap(op, s.cfg.Table, appErr.ErrTableNotFound)
	}

	where := filters.where()
	where["_orderby"] = "distance ASC, rowid ASC"
	where["_limit"] = []uint{0, uint(limit)}
	fields := append(append([]string{}, metaFields...), s.distance+"(embedding, ?) AS distance")
	sqlStr, args, err := builder.BuildSelect(s.cfg.Table, where, fields)
	if err != nil {
		return nil, s.fail(op, err)
	}
	args = append([]interface{}{vecsql.Encode(query)}, args...)

	var rows []row
	if err := sqlx.SelectContext(ctx, s.db, &rows, sqlStr, args...); err != nil {
		return nil, s.fail(op, err)
	}
	hits := make([]model.Hit, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toRecord()
		if err != nil {
			return nil, s.fail(op, err)
		}
		hits = append(hits, model.Hit{Record: rec, Distance: r.Distance})
	}
	return hits, nil
}

type ExistenceResult struct {
	Existing []int64 `json:"existing_ids"`
	Missing  []int64 `json:"missing_ids"`
}

// CheckExisting partitions ids by presence in the table. Existing ids come
// back ascending, missing ids in input order. Duplicates are collapsed.
func (s *Store) CheckExisting(ctx context.Context, ids []int64) (ExistenceResult, error) {
	const op = "check_existing"
	ids = uniqueIDs(ids)
	res := ExistenceResult{Existing: []int64{}, Missing: []int64{}}
	if len(ids) == 0 {
		return res, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	exists, err := s.TableExists(ctx)
	if err != nil {
		return res, s.fail(op, err)
	}
	if !exists {
		res.Missing = ids
		return res, nil
	}
	where := map[string]interface{}{"id in": dbutil.InArgs(ids)}
	sqlStr, args, err := builder.BuildSelect(s.cfg.Table, where, []string{"id"})
	if err != nil {
		return res, s.fail(op, err)
	}
	var found []int64
	if err := sqlx.SelectContext(ctx, s.db, &found, sqlStr, args...); err != nil {
		return res, s.fail(op, err, ids...)
	}
	present := make(map[int64]struct{}, len(found))
	for _, id := range found {
		present[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := present[id]; ok {
			res.Existing = append(res.Existing, id)
			continue
		}
		res.Missing = append(res.Missing, id)
	}
	sort.Slice(res.Existing, func(i, j int) bool { return res.Existing[i] < res.Existing[j] })
	return res, nil
}

// GetByIDs returns the stored record of every id found. When an id has more
// than one row the most recently inserted one wins.
func (s *Store) GetByIDs(ctx context.Context, ids []int64) (map[int64]model.Record, error) {
	const op = "get_by_ids"
	out := map[int64]model.Record{}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	exists, err := s.TableExists(ctx)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if !exists {
		return nil, appErr.Wrap(op, s.cfg.Table, appErr.ErrTableNotFound)
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return out, nil
	}
	where := map[string]interface{}{
		"id in":    dbutil.InArgs(ids),
		"_orderby": "rowid ASC",
	}
	fields := append(append([]string{}, metaFields...), "embedding")
	sqlStr, args, err := builder.BuildSelect(s.cfg.Table, where, fields)
	if err != nil {
		return nil, s.fail(op, err)
	}
	var rows []row
	if err := sqlx.SelectContext(ctx, s.db, &rows, sqlStr, args...); err != nil {
		return nil, s.fail(op, err, ids...)
	}
	for _, r := range rows {
		rec, err := r.toRecord()
		if err != nil {
			return nil, s.fail(op, err, r.ID)
		}
		out[r.ID] = rec
	}
	return out, nil
}

// Entry is a row without its embedding.
type Entry struct {
	RowID  int64
	Record model.Record
}

// ListMeta returns every row inside the date range, newest date first.
func (s *Store) ListMeta(ctx context.Context, dates DateRange) ([]Entry, error) {
	const op = "list_meta"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	where := dates.where()
	where["_orderby"] = "date DESC, rowid DESC"
	sqlStr, args, err := builder.BuildSelect(s.cfg.Table, where, append([]string{}, metaFields...))
	if err != nil {
		return nil, s.fail(op, err)
	}
	var rows []row
	if err := sqlx.SelectContext(ctx, s.db, &rows, sqlStr, args...); err != nil {
		return nil, s.fail(op, err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toRecord()
		if err != nil {
			return nil, s.fail(op, err)
		}
		out = append(out, Entry{RowID: r.RowID, Record: rec})
	}
	return out, nil
}

// EmbeddingsByRowIDs loads the embeddings of the given rows only.
func (s *Store) EmbeddingsByRowIDs(ctx context.Context, rowIDs []int64) (map[int64][]float32, error) {
	const op = "embeddings_by_rowids"
	out := map[int64][]float32{}
	if len(rowIDs) == 0 {
		return out, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	where := map[string]interface{}{"rowid in": dbutil.InArgs(rowIDs)}
	sqlStr, args, err := builder.BuildSelect(s.cfg.Table, where, []string{"rowid", "embedding"})
	if err != nil {
		return nil, s.fail(op, err)
	}
	var rows []row
	if err := sqlx.SelectContext(ctx, s.db, &rows, sqlStr, args...); err != nil {
		return nil, s.fail(op, err)
	}
	for _, r := range rows {
		vec, err := vecsql.Decode(r.Embedding)
		if err != nil {
			return nil, s.fail(op, fmt.Errorf("decode embedding of row %d: %w", r.RowID, err))
		}
		out[r.RowID] = vec
	}
	return out, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
