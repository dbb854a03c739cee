package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/postvec/internal/model"
	"github.com/xxxsen/postvec/internal/pkg/vecsql"
)

const embeddingCacheTable = "embedding_cache"

type EmbeddingCacheRepo struct {
	db *sqlx.DB
}

func NewEmbeddingCacheRepo(db *sqlx.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

func (r *EmbeddingCacheRepo) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	where := map[string]interface{}{
		"model_name":   modelName,
		"task_type":    taskType,
		"content_hash": contentHash,
	}
	sqlStr, args, err := builder.BuildSelect(embeddingCacheTable, where, []string{"embedding"})
	if err != nil {
		return nil, false, err
	}
	var blob []byte
	if err := sqlx.GetContext(ctx, r.db, &blob, sqlStr, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	vec, err := vecsql.Decode(blob)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (r *EmbeddingCacheRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	data := []map[string]interface{}{{
		"model_name":   item.ModelName,
		"task_type":    item.TaskType,
		"content_hash": item.ContentHash,
		"embedding":    vecsql.Encode(item.Embedding),
		"ctime":        item.Ctime,
	}}
	sqlStr, args, err := builder.BuildReplaceInsert(embeddingCacheTable, data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	sqlStr, args, err := builder.BuildDelete(embeddingCacheTable, map[string]interface{}{"ctime <": cutoff})
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *EmbeddingCacheRepo) Count(ctx context.Context) (int64, error) {
	sqlStr, args, err := builder.BuildSelect(embeddingCacheTable, nil, []string{"COUNT(*) AS cnt"})
	if err != nil {
		return 0, err
	}
	var n int64
	if err := sqlx.GetContext(ctx, r.db, &n, sqlStr, args...); err != nil {
		return 0, err
	}
	return n, nil
}
