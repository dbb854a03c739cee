package schema

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/postvec/internal/filestore"
	"github.com/xxxsen/postvec/internal/pkg/dbutil"
	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
	"github.com/xxxsen/postvec/internal/vectorstore"
)

type Action string

const (
	ActionNoop     Action = "noop"
	ActionMigrated Action = "migrated"
)

const (
	stagingSuffix = "__staging"
	legacySuffix  = "__legacy"
)

// Info describes the live table as found on disk.
type Info struct {
	TableExists   bool   `json:"table_exists"`
	CreatedAtType string `json:"created_at_type"`
	Dimension     int    `json:"dimension"`
	Rows          int64  `json:"rows"`
}

type Result struct {
	Action      Action `json:"action"`
	TableExists bool   `json:"table_exists"`
	FromType    string `json:"from_type,omitempty"`
	ToType      string `json:"to_type,omitempty"`
	Rows        int64  `json:"rows"`
	SnapshotKey string `json:"snapshot_key,omitempty"`
}

type Option func(*Manager)

// WithSnapshotStore makes every migration write a JSONL copy of the legacy
// rows before the table is touched.
func WithSnapshotStore(store filestore.Store) Option {
	return func(m *Manager) {
		m.snapshots = store
	}
}

func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// WithDimension sets the vector size used when a legacy table does not
// declare one and holds no rows to infer it from.
func WithDimension(dim int) Option {
	return func(m *Manager) {
		m.dimension = dim
	}
}

type Manager struct {
	db        *sqlx.DB
	snapshots filestore.Store
	timeout   time.Duration
	dimension int
}

func New(db *sqlx.DB, opts ...Option) *Manager {
	m := &Manager{db: db, dimension: vectorstore.DefaultDimension}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

type column struct {
	Name string `db:"name"`
	Type string `db:"type"`
}

func (m *Manager) Inspect(ctx context.Context, table string) (Info, error) {
	if err := dbutil.ValidateTable(table); err != nil {
		return Info{}, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	info, err := inspect(ctx, m.db, table, m.dimension)
	if err != nil {
		return Info{}, appErr.Wrap("inspect", table, dbutil.Classify(err))
	}
	return info, nil
}

func inspect(ctx context.Context, q sqlx.QueryerContext, table string, fallbackDim int) (Info, error) {
	exists, err := vectorstore.TableExists(ctx, q, table)
	if err != nil || !exists {
		return Info{}, err
	}
	info := Info{TableExists: true}
	var cols []column
	if err := sqlx.SelectContext(ctx, q, &cols, "SELECT name, type FROM pragma_table_info(?)", table); err != nil {
		return Info{}, err
	}
	declaredDim := 0
	for _, c := range cols {
		switch strings.ToLower(c.Name) {
		case "created_at":
			info.CreatedAtType = strings.ToUpper(strings.TrimSpace(c.Type))
		case "embedding":
			if dim, ok := vectorstore.ParseDimension(c.Type); ok {
				declaredDim = dim
			}
		}
	}
	sqlStr, args, err := builder.BuildSelect(table, nil, []string{"COUNT(*) AS cnt"})
	if err != nil {
		return Info{}, err
	}
	if err := sqlx.GetContext(ctx, q, &info.Rows, sqlStr, args...); err != nil {
		return Info{}, err
	}
	info.Dimension = declaredDim
	if info.Dimension == 0 && info.Rows > 0 {
		sqlStr, args, err := builder.BuildSelect(table, map[string]interface{}{"_limit": []uint{0, 1}}, []string{"length(embedding) AS size"})
		if err != nil {
			return Info{}, err
		}
		var size int
		if err := sqlx.GetContext(ctx, q, &size, sqlStr, args...); err == nil && size > 0 && size%4 == 0 {
			info.Dimension = size / 4
		}
	}
	if info.Dimension == 0 {
		info.Dimension = fallbackDim
	}
	return info, nil
}

// EnsureSchema brings the created_at column of table to microsecond
// precision. A table already in canonical form and an absent table are
// both left alone.
func (m *Manager) EnsureSchema(ctx context.Context, table string) (Result, error) {
	const op = "ensure_schema"
	info, err := m.Inspect(ctx, table)
	if err != nil {
		return Result{}, err
	}
	if !info.TableExists {
		return Result{Action: ActionNoop, TableExists: false}, nil
	}
	typ := info.CreatedAtType
	if typ == vectorstore.TimestampMicro {
		return Result{Action: ActionNoop, TableExists: true, FromType: typ, ToType: typ, Rows: info.Rows}, nil
	}
	if !isLegacyType(typ) {
		found := typ
		if found == "" {
			found = "missing created_at column"
		}
		return Result{}, appErr.Wrap(op, table, fmt.Errorf("%w: created_at type %q has no migration path", appErr.ErrUnrecoverableSchemaMismatch, found))
	}

	logger := logutil.GetLogger(ctx).With(zap.String("table", table), zap.String("from", typ))
	logger.Info("schema drift detected, migrating", zap.Int64("rows", info.Rows), zap.Int("dimension", info.Dimension))

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	res := Result{Action: ActionMigrated, TableExists: true, FromType: typ, ToType: vectorstore.TimestampMicro}
	if m.snapshots != nil {
		key, err := m.snapshot(ctx, table)
		if err != nil {
			return Result{}, appErr.Wrap(op, table, fmt.Errorf("snapshot: %w", dbutil.Classify(err)))
		}
		res.SnapshotKey = key
		logger.Info("legacy rows snapshotted", zap.String("key", key), zap.String("store", m.snapshots.Type()))
	}
	rows, err := m.swap(ctx, table, typ, info.Dimension)
	if err != nil {
		logger.Error("schema migration failed, live table unchanged", zap.Error(err))
		return Result{}, appErr.Wrap(op, table, dbutil.Classify(err))
	}
	res.Rows = rows
	logger.Info("schema migrated", zap.Int64("rows", rows))
	return res, nil
}

func isLegacyType(typ string) bool {
	switch typ {
	case vectorstore.TimestampMilli, vectorstore.TimestampNano, vectorstore.TimestampText:
		return true
	}
	return false
}

// swap copies the live table into a canonical staging table, verifies the
// copy and renames it into place, all in one transaction. A failure at any
// step rolls back and leaves the live table as it was.
func (m *Manager) swap(ctx context.Context, table, typ string, dim int) (int64, error) {
	staging := table + stagingSuffix
	legacy := table + legacySuffix
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range []string{
		"DROP TABLE IF EXISTS " + dbutil.Quote(staging),
		"DROP TABLE IF EXISTS " + dbutil.Quote(legacy),
		vectorstore.CreateTableSQL(staging, dim, false),
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, err
		}
	}

	legacyRows, err := readLegacyRows(ctx, tx, table)
	if err != nil {
		return 0, err
	}
	rows := make([]map[string]interface{}, 0, len(legacyRows))
	for _, r := range legacyRows {
		micros, err := ToMicros(typ, r.CreatedAt)
		if err != nil {
			return 0, fmt.Errorf("convert created_at of row %d (id %d): %w", r.RowID, r.ID, err)
		}
		rows = append(rows, r.toInsert(micros))
	}
	if err := vectorstore.InsertRows(ctx, tx, staging, rows); err != nil {
		return 0, err
	}

	liveCount, err := count(ctx, tx, table)
	if err != nil {
		return 0, err
	}
	stagedCount, err := count(ctx, tx, staging)
	if err != nil {
		return 0, err
	}
	if liveCount != stagedCount {
		return 0, fmt.Errorf("%w: live has %d rows, staging has %d", appErr.ErrMigrationVerify, liveCount, stagedCount)
	}

	for _, stmt := range []string{
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", dbutil.Quote(table), dbutil.Quote(legacy)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", dbutil.Quote(staging), dbutil.Quote(table)),
		"DROP TABLE " + dbutil.Quote(legacy),
		vectorstore.CreateIndexSQL(table),
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return stagedCount, nil
}

func count(ctx context.Context, q sqlx.QueryerContext, table string) (int64, error) {
	sqlStr, args, err := builder.BuildSelect(table, nil, []string{"COUNT(*) AS cnt"})
	if err != nil {
		return 0, err
	}
	var n int64
	if err := sqlx.GetContext(ctx, q, &n, sqlStr, args...); err != nil {
		return 0, err
	}
	return n, nil
}
