package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/postvec/internal/model"
	"github.com/xxxsen/postvec/internal/pkg/dbutil"
	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
	"github.com/xxxsen/postvec/internal/pkg/timeutil"
	"github.com/xxxsen/postvec/internal/pkg/vecsql"
)

const insertBatchSize = 500

type Config struct {
	Table     string
	Dimension int
	Metric    string
	// AtomicUpsert runs the delete and the insert of an upsert in one
	// transaction. Without it readers can briefly miss the upserted ids.
	AtomicUpsert bool
	Timeout      time.Duration
}

type Option func(*Store)

func WithClock(clock timeutil.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// Store is a vector table in one database, addressed by (db path, table).
type Store struct {
	db       *sqlx.DB
	dbPath   string
	cfg      Config
	distance string
	clock    timeutil.Clock
}

func New(db *sqlx.DB, dbPath string, cfg Config, opts ...Option) (*Store, error) {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if err := dbutil.ValidateTable(cfg.Table); err != nil {
		return nil, err
	}
	fn, err := vecsql.FuncName(cfg.Metric)
	if err != nil {
		return nil, appErr.Invalid("%s", err.Error())
	}
	s := &Store{
		db:       db,
		dbPath:   dbPath,
		cfg:      cfg,
		distance: fn,
		clock:    timeutil.System(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Table() string {
	return s.cfg.Table
}

// Dimension is the configured dimension used when the table is created.
func (s *Store) Dimension() int {
	return s.cfg.Dimension
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

func (s *Store) fail(op string, err error, ids ...int64) error {
	return appErr.Wrap(op, s.cfg.Table, dbutil.Classify(err), ids...)
}

// EnsureTableExists creates the table with the canonical schema when it is
// absent. An existing table is left untouched even if its schema drifted.
func (s *Store) EnsureTableExists(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.ensureTable(ctx); err != nil {
		return s.fail("ensure_table_exists", err)
	}
	return nil
}

func (s *Store) ensureTable(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if _, err := tx.ExecContext(ctx, CreateTableSQL(s.cfg.Table, s.cfg.Dimension, true)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, CreateIndexSQL(s.cfg.Table)); err != nil {
		return err
	}
	return tx.Commit()
}

// TableExists reports whether the table is present in the database.
func (s *Store) TableExists(ctx context.Context) (bool, error) {
	return TableExists(ctx, s.db, s.cfg.Table)
}

func TableExists(ctx context.Context, q sqlx.QueryerContext, table string) (bool, error) {
	where := map[string]interface{}{"type": "table", "name": table}
	sqlStr, args, err := builder.BuildSelect("sqlite_master", where, []string{"COUNT(*) AS cnt"})
	if err != nil {
		return false, err
	}
	var cnt int
	if err := sqlx.GetContext(ctx, q, &cnt, sqlStr, args...); err != nil {
		return false, err
	}
	return cnt > 0, nil
}

// ResolveDimension returns the dimension the existing table declares, or
// the configured one when the table is absent or declares none.
func (s *Store) ResolveDimension(ctx context.Context) (int, error) {
	dim, ok, err := DeclaredDimension(ctx, s.db, s.cfg.Table)
	if err != nil {
		return 0, s.fail("resolve_dimension", err)
	}
	if !ok {
		return s.cfg.Dimension, nil
	}
	return dim, nil
}

// DeclaredDimension reads D from the F32_BLOB(D) type of the embedding
// column. ok is false when the table or the declaration is missing.
func DeclaredDimension(ctx context.Context, q sqlx.QueryerContext, table string) (int, bool, error) {
	var types []string
	if err := sqlx.SelectContext(ctx, q, &types,
		"SELECT type FROM pragma_table_info(?) WHERE name = 'embedding'", table); err != nil {
		return 0, false, err
	}
	if len(types) == 0 {
		return 0, false, nil
	}
	dim, ok := ParseDimension(types[0])
	return dim, ok, nil
}

func (s *Store) checkDimensions(op string, dim int, entities []model.Entity) error {
	for _, e := range entities {
		if len(e.Embedding) != dim {
			return appErr.Wrap(op, s.cfg.Table,
				fmt.Errorf("%w: embedding has %d values, table expects %d", appErr.ErrDimensionMismatch, len(e.Embedding), dim),
				e.Post.ID)
		}
	}
	return nil
}
