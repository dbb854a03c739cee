package vectorstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/postvec/internal/model"
	"github.com/xxxsen/postvec/internal/pkg/dbutil"
	"github.com/xxxsen/postvec/internal/pkg/vecsql"
)

type UpsertResult struct {
	Written int `json:"written"`
	Deleted int `json:"deleted"`
	// Gap is how long the upserted ids were absent from the table between
	// the delete commit and the insert commit. Zero for atomic upserts.
	Gap time.Duration `json:"gap"`
}

// Store appends rows. Ids are not deduplicated: storing the same id twice
// leaves two rows. Use Upsert to keep one row per id.
func (s *Store) Store(ctx context.Context, entities []model.Entity) (int, error) {
	const op = "store"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	dim, err := s.ResolveDimension(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.checkDimensions(op, dim, entities); err != nil {
		return 0, err
	}
	if err := s.ensureTable(ctx); err != nil {
		return 0, s.fail(op, err)
	}
	if len(entities) == 0 {
		return 0, nil
	}
	rows, err := s.buildRows(entities)
	if err != nil {
		return 0, s.fail(op, err)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, s.fail(op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := s.insertRows(ctx, tx, rows); err != nil {
		return 0, s.fail(op, err, entityIDs(entities)...)
	}
	if err := tx.Commit(); err != nil {
		return 0, s.fail(op, err)
	}
	logutil.GetLogger(ctx).Info("embeddings stored", zap.String("table", s.cfg.Table), zap.Int("count", len(rows)))
	return len(rows), nil
}

// Upsert deletes every row whose id is in the batch with a single statement
// and then inserts the batch, so at most one row per id survives. Unless
// AtomicUpsert is set the two steps commit separately and a concurrent
// reader may not see the ids in between; the length of that window is
// reported in the result.
func (s *Store) Upsert(ctx context.Context, entities []model.Entity) (UpsertResult, error) {
	const op = "upsert"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	dim, err := s.ResolveDimension(ctx)
	if err != nil {
		return UpsertResult{}, err
	}
	if err := s.checkDimensions(op, dim, entities); err != nil {
		return UpsertResult{}, err
	}
	if err := s.ensureTable(ctx); err != nil {
		return UpsertResult{}, s.fail(op, err)
	}
	entities = lastPerID(entities)
	if len(entities) == 0 {
		return UpsertResult{}, nil
	}
	ids := entityIDs(entities)
	rows, err := s.buildRows(entities)
	if err != nil {
		return UpsertResult{}, s.fail(op, err)
	}

	if s.cfg.AtomicUpsert {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return UpsertResult{}, s.fail(op, err)
		}
		defer func() {
			_ = tx.Rollback()
		}()
		deleted, err := s.deleteIDs(ctx, tx, ids)
		if err != nil {
			return UpsertResult{}, s.fail(op, err, ids...)
		}
		if err := s.insertRows(ctx, tx, rows); err != nil {
			return UpsertResult{}, s.fail(op, err, ids...)
		}
		if err := tx.Commit(); err != nil {
			return UpsertResult{}, s.fail(op, err, ids...)
		}
		return UpsertResult{Written: len(rows), Deleted: deleted}, nil
	}

	deleted, err := s.deleteIDs(ctx, s.db, ids)
	if err != nil {
		return UpsertResult{}, s.fail(op, err, ids...)
	}
	gapStart := time.Now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return UpsertResult{}, s.fail(op, err, ids...)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := s.insertRows(ctx, tx, rows); err != nil {
		return UpsertResult{}, s.fail(op, err, ids...)
	}
	if err := tx.Commit(); err != nil {
		return UpsertResult{}, s.fail(op, err, ids...)
	}
	gap := time.Since(gapStart)
	logutil.GetLogger(ctx).Info("embeddings upserted",
		zap.String("table", s.cfg.Table),
		zap.Int("count", len(rows)),
		zap.Int("deleted", deleted),
		zap.Duration("gap", gap),
	)
	return UpsertResult{Written: len(rows), Deleted: deleted, Gap: gap}, nil
}

func (s *Store) deleteIDs(ctx context.Context, exec sqlx.ExecerContext, ids []int64) (int, error) {
	where := map[string]interface{}{"id in": dbutil.InArgs(ids)}
	sqlStr, args, err := builder.BuildDelete(s.cfg.Table, where)
	if err != nil {
		return 0, err
	}
	res, err := exec.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

func (s *Store) buildRows(entities []model.Entity) ([]map[string]interface{}, error) {
	now := s.clock().UnixMicro()
	rows := make([]map[string]interface{}, 0, len(entities))
	for _, e := range entities {
		categories, err := marshalList(e.Post.Categories)
		if err != nil {
			return nil, err
		}
		tags, err := marshalList(e.Post.Tags)
		if err != nil {
			return nil, err
		}
		rows = append(rows, map[string]interface{}{
			"id":         e.Post.ID,
			"title":      e.Post.Title,
			"content":    e.Post.Content,
			"date":       e.Post.Date,
			"permalink":  e.Post.Permalink,
			"categories": categories,
			"tags":       tags,
			"embedding":  vecsql.Encode(e.Embedding),
			"created_at": now,
		})
	}
	return rows, nil
}

func (s *Store) insertRows(ctx context.Context, exec sqlx.ExecerContext, rows []map[string]interface{}) error {
	return InsertRows(ctx, exec, s.cfg.Table, rows)
}

// InsertRows inserts rows in batches small enough for SQLite's variable limit.
func InsertRows(ctx context.Context, exec sqlx.ExecerContext, table string, rows []map[string]interface{}) error {
	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		sqlStr, args, err := builder.BuildInsert(table, rows[start:end])
		if err != nil {
			return err
		}
		if _, err := exec.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return nil
}

func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// lastPerID keeps the last entity of every id, in order of those last occurrences.
func lastPerID(entities []model.Entity) []model.Entity {
	last := make(map[int64]int, len(entities))
	for i, e := range entities {
		last[e.Post.ID] = i
	}
	out := make([]model.Entity, 0, len(last))
	for i, e := range entities {
		if last[e.Post.ID] == i {
			out = append(out, e)
		}
	}
	return out
}

func entityIDs(entities []model.Entity) []int64 {
	ids := make([]int64, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.Post.ID)
	}
	return ids
}
