package vectorstore

import (
	"context"
	"math"
	"os"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Stats struct {
	TableExists  bool    `json:"table_exists"`
	RowCount     int64   `json:"total_posts"`
	StorageBytes int64   `json:"storage_bytes"`
	DBSizeMB     float64 `json:"db_size_mb"`
	TableName    string  `json:"table_name"`
	DBPath       string  `json:"db_path"`
}

// Stats never fails because storage size cannot be measured; the size then
// falls back to the database files on disk, and finally to zero.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	const op = "stats"
	st := Stats{TableName: s.cfg.Table, DBPath: s.dbPath}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	exists, err := s.TableExists(ctx)
	if err != nil {
		return st, s.fail(op, err)
	}
	st.TableExists = exists
	if exists {
		sqlStr, args, err := builder.BuildSelect(s.cfg.Table, nil, []string{"COUNT(*) AS cnt"})
		if err != nil {
			return st, s.fail(op, err)
		}
		if err := sqlx.GetContext(ctx, s.db, &st.RowCount, sqlStr, args...); err != nil {
			return st, s.fail(op, err)
		}
	}
	st.StorageBytes = s.storageBytes(ctx, exists)
	st.DBSizeMB = math.Round(float64(st.StorageBytes)/(1024*1024)*100) / 100
	return st, nil
}

func (s *Store) storageBytes(ctx context.Context, exists bool) int64 {
	if exists {
		where := map[string]interface{}{"name in": []interface{}{s.cfg.Table, IndexName(s.cfg.Table)}}
		sqlStr, args, err := builder.BuildSelect("dbstat", where, []string{"COALESCE(SUM(pgsize), 0) AS size"})
		if err == nil {
			var size int64
			if err = sqlx.GetContext(ctx, s.db, &size, sqlStr, args...); err == nil {
				return size
			}
		}
		logutil.GetLogger(ctx).Debug("dbstat unavailable, use file size", zap.String("table", s.cfg.Table), zap.Error(err))
	}
	var total int64
	for _, suffix := range []string{"", "-wal", "-shm"} {
		fi, err := os.Stat(s.dbPath + suffix)
		if err != nil {
			if !os.IsNotExist(err) {
				logutil.GetLogger(ctx).Warn("stat db file failed", zap.String("path", s.dbPath+suffix), zap.Error(err))
			}
			continue
		}
		total += fi.Size()
	}
	return total
}
