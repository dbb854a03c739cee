package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/postvec/internal/ai"
	"github.com/xxxsen/postvec/internal/config"
	"github.com/xxxsen/postvec/internal/db"
	"github.com/xxxsen/postvec/internal/embedcache"
	"github.com/xxxsen/postvec/internal/filestore"
	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
	"github.com/xxxsen/postvec/internal/pkg/timeutil"
	"github.com/xxxsen/postvec/internal/repo"
	"github.com/xxxsen/postvec/internal/vectorstore"
)

// EmbedderFactory builds the embedder for one request. conn is nil for
// operations that do not open the database.
type EmbedderFactory func(ctx context.Context, conn *sqlx.DB, model, apiKey string) (ai.IEmbedder, error)

type Option func(*Runner)

func WithEmbedderFactory(f EmbedderFactory) Option {
	return func(r *Runner) {
		r.newEmbedder = f
	}
}

func WithClock(clock timeutil.Clock) Option {
	return func(r *Runner) {
		r.clock = clock
	}
}

func WithSnapshotStore(store filestore.Store) Option {
	return func(r *Runner) {
		r.snapshots = store
	}
}

// WithConfinedStorage keeps every db_path inside the storage root. Network
// facing entry points set it.
func WithConfinedStorage() Option {
	return func(r *Runner) {
		r.confined = true
	}
}

// env is what one request works against.
type env struct {
	cfg   *config.Config
	req   *Request
	conn  *sqlx.DB
	store *vectorstore.Store
}

type handlerFunc func(ctx context.Context, r *Runner, e *env) (interface{}, error)

type operation struct {
	needsDB bool
	// failPrefix is prepended to error messages that reach the caller.
	failPrefix string
	fn         handlerFunc
}

// Runner maps one JSON request to one operation and reports the outcome as a
// Response. Failures never escape as Go errors.
type Runner struct {
	cfg         *config.Config
	newEmbedder EmbedderFactory
	clock       timeutil.Clock
	snapshots   filestore.Store
	confined    bool
	ops         map[string]operation
}

func NewRunner(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{cfg: cfg, clock: timeutil.System()}
	r.newEmbedder = r.defaultEmbedder
	for _, opt := range opts {
		opt(r)
	}
	r.ops = map[string]operation{
		"store":          {needsDB: true, failPrefix: "Failed to store embeddings", fn: handleStore},
		"upsert":         {needsDB: true, failPrefix: "Failed to upsert embeddings", fn: handleUpsert},
		"search":         {needsDB: true, failPrefix: "Failed to search embeddings", fn: handleSearch},
		"search-text":    {needsDB: true, failPrefix: "Failed to search embeddings", fn: handleSearchText},
		"stats":          {needsDB: true, failPrefix: "Failed to get stats", fn: handleStats},
		"check-existing": {needsDB: true, failPrefix: "Failed to check existing embeddings", fn: handleCheckExisting},
		"get-by-ids":     {needsDB: true, failPrefix: "Failed to get embeddings by IDs", fn: handleGetByIDs},
		"ensure-schema":  {needsDB: true, failPrefix: "Failed to ensure schema", fn: handleEnsureSchema},
		"browse":         {needsDB: true, failPrefix: "Failed to browse posts", fn: handleBrowse},
		"ingest":         {needsDB: true, failPrefix: "Failed to ingest posts", fn: handleIngest},
		"chunk":          {failPrefix: "Failed to chunk text", fn: handleChunk},
		"embed":          {failPrefix: "Failed to get embedding", fn: handleEmbed},
	}
	return r
}

var aliases = map[string]string{
	"check_existing_embeddings": "check-existing",
	"get_embeddings_by_ids":     "get-by-ids",
	"upsert_embeddings":         "upsert",
	"search_text":               "search-text",
	"ensure_schema":             "ensure-schema",
}

// Canonical maps a legacy operation name to its current name.
func Canonical(op string) string {
	op = strings.TrimSpace(op)
	if name, ok := aliases[op]; ok {
		return name
	}
	return op
}

// Ops lists the operation names in sorted order.
func (r *Runner) Ops() []string {
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes op and folds the outcome into a Response.
func (r *Runner) Run(ctx context.Context, op string, req *Request) Response {
	data, err := r.Exec(ctx, op, req)
	if err != nil {
		return Response{Success: false, Data: err.Error()}
	}
	return Response{Success: true, Data: data}
}

// Exec executes op. The error text is what callers are shown and its chain
// still matches the sentinels in pkg/errors.
func (r *Runner) Exec(ctx context.Context, op string, req *Request) (interface{}, error) {
	name := Canonical(op)
	handler, ok := r.ops[name]
	if !ok {
		return nil, declined(appErr.ErrInvalid, "Unknown operation: %s", op)
	}
	if req == nil {
		req = &Request{}
	}
	logger := logutil.GetLogger(ctx).With(zap.String("op", name))
	e := &env{cfg: r.cfg, req: req}
	if handler.needsDB {
		closeFn, err := r.open(ctx, e)
		if err != nil {
			logger.Error("open store failed", zap.Error(err))
			return nil, &prefixedError{prefix: handler.failPrefix, err: err}
		}
		defer closeFn()
	}
	start := r.clock()
	data, err := handler.fn(ctx, r, e)
	if err != nil {
		var msg *messageError
		if errors.As(err, &msg) {
			logger.Warn("operation declined", zap.String("reason", msg.msg))
			return nil, err
		}
		logger.Error("operation failed", zap.Error(err))
		return nil, &prefixedError{prefix: handler.failPrefix, err: err}
	}
	logger.Debug("operation finished", zap.Duration("cost", r.clock().Sub(start)))
	return data, nil
}

func (r *Runner) open(ctx context.Context, e *env) (func(), error) {
	dir := ResolveDBPath(r.cfg.StorageRoot, e.req.DBPath)
	if r.confined {
		var err error
		if dir, err = ConfineDBPath(r.cfg.StorageRoot, e.req.DBPath); err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(ctx, dir)
	if err != nil {
		return nil, err
	}
	if err := db.ApplyMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	table := e.req.TableName
	if table == "" {
		table = r.cfg.TableName
	}
	store, err := vectorstore.New(conn, db.Path(dir), vectorstore.Config{
		Table:        table,
		Dimension:    r.cfg.Dimension,
		Metric:       r.cfg.Metric,
		AtomicUpsert: r.cfg.AtomicUpsert,
		Timeout:      time.Duration(r.cfg.Timeouts.StorageMS) * time.Millisecond,
	}, vectorstore.WithClock(r.clock))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	e.conn = conn
	e.store = store
	return func() { _ = conn.Close() }, nil
}

// defaultEmbedder builds the configured provider chain behind the embedding
// caches. A request api_key overrides the configured key of the primary
// provider.
func (r *Runner) defaultEmbedder(ctx context.Context, conn *sqlx.DB, model, apiKey string) (ai.IEmbedder, error) {
	keys := make(map[string]string, len(r.cfg.APIKeys)+1)
	for k, v := range r.cfg.APIKeys {
		keys[k] = v
	}
	if apiKey != "" {
		keys[r.cfg.Embedder.Provider] = apiKey
	}
	e, err := ai.Build(r.cfg.Embedder, model, keys, time.Duration(r.cfg.Timeouts.EmbedMS)*time.Millisecond)
	if err != nil {
		return nil, err
	}
	cacheCfg := r.cfg.EmbedCache
	var cache embedcache.Store
	if conn != nil {
		cache = repo.NewEmbeddingCacheRepo(conn)
	} else {
		cacheCfg.DB = false
	}
	return embedcache.Wrap(e, cacheCfg, cache), nil
}

func (r *Runner) embedder(ctx context.Context, e *env) (ai.IEmbedder, error) {
	model := e.req.Model
	if model == "" {
		model = r.cfg.EmbeddingsModel
	}
	return r.newEmbedder(ctx, e.conn, model, e.req.APIKey)
}

// messageError is reported to the caller verbatim.
type messageError struct {
	msg string
	err error
}

func (m *messageError) Error() string {
	return m.msg
}

func (m *messageError) Unwrap() error {
	return m.err
}

func declined(err error, format string, args ...interface{}) error {
	return &messageError{msg: fmt.Sprintf(format, args...), err: err}
}

type prefixedError struct {
	prefix string
	err    error
}

func (p *prefixedError) Error() string {
	return p.prefix + ": " + p.err.Error()
}

func (p *prefixedError) Unwrap() error {
	return p.err
}

func isTableMissing(err error) bool {
	return errors.Is(err, appErr.ErrTableNotFound)
}
