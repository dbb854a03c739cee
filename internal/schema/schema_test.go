package schema_test

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/postvec/internal/config"
	"github.com/xxxsen/postvec/internal/filestore"
	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
	"github.com/xxxsen/postvec/internal/pkg/vecsql"
	"github.com/xxxsen/postvec/internal/schema"
	"github.com/xxxsen/postvec/internal/vectorstore"
	"github.com/xxxsen/postvec/test/testutil"
)

func createLegacyTable(t *testing.T, conn *sqlx.DB, table, createdAtType string) {
	t.Helper()
	createdAt := ""
	if createdAtType != "" {
		createdAt = fmt.Sprintf(",\n\tcreated_at %s NOT NULL", createdAtType)
	}
	_, err := conn.Exec(fmt.Sprintf(`CREATE TABLE %s (
	id INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	date TEXT NOT NULL DEFAULT '',
	permalink TEXT NOT NULL DEFAULT '',
	categories TEXT NOT NULL DEFAULT '[]',
	tags TEXT NOT NULL DEFAULT '[]',
	embedding F32_BLOB(4) NOT NULL%s
)`, table, createdAt))
	require.NoError(t, err)
}

func insertLegacy(t *testing.T, conn *sqlx.DB, table string, id int64, vec []float32, createdAt interface{}) {
	t.Helper()
	_, err := conn.Exec(fmt.Sprintf(
		"INSERT INTO %s (id, title, content, date, permalink, categories, tags, embedding, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", table),
		id, fmt.Sprintf("post %d", id), "body", "2024-01-01", "https://example.com", `["a","b"]`, `[]`, vecsql.Encode(vec), createdAt)
	require.NoError(t, err)
}

func TestEnsureSchemaMigratesLegacyPrecision(t *testing.T) {
	tests := []struct {
		name   string
		typ    string
		values []interface{}
		want   []int64
	}{
		{
			name:   "milliseconds",
			typ:    vectorstore.TimestampMilli,
			values: []interface{}{int64(1700000000123), int64(1700000000999)},
			want:   []int64{1700000000123000, 1700000000999000},
		},
		{
			name:   "nanoseconds floor",
			typ:    vectorstore.TimestampNano,
			values: []interface{}{int64(1700000000123456789), int64(-1500)},
			want:   []int64{1700000000123456, -2},
		},
		{
			name:   "datetime text",
			typ:    vectorstore.TimestampText,
			values: []interface{}{"2024-01-02 03:04:05.1234567", "2024-01-02T03:04:05Z"},
			want: []int64{
				time.Date(2024, 1, 2, 3, 4, 5, 123456000, time.UTC).UnixMicro(),
				time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMicro(),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			conn, path := testutil.OpenTestDB(t)
			createLegacyTable(t, conn, "posts", tt.typ)
			for i, v := range tt.values {
				insertLegacy(t, conn, "posts", int64(i+1), testutil.Vector(4, float32(i+1)), v)
			}
			mgr := schema.New(conn, schema.WithDimension(4))

			res, err := mgr.EnsureSchema(ctx, "posts")
			require.NoError(t, err)
			require.Equal(t, schema.ActionMigrated, res.Action)
			require.Equal(t, tt.typ, res.FromType)
			require.Equal(t, vectorstore.TimestampMicro, res.ToType)
			require.Equal(t, int64(len(tt.values)), res.Rows)

			info, err := mgr.Inspect(ctx, "posts")
			require.NoError(t, err)
			require.Equal(t, vectorstore.TimestampMicro, info.CreatedAtType)
			require.Equal(t, 4, info.Dimension)
			require.Equal(t, int64(len(tt.values)), info.Rows)

			var micros []int64
			require.NoError(t, conn.Select(&micros, "SELECT created_at FROM posts ORDER BY rowid"))
			require.Equal(t, tt.want, micros)

			st, err := vectorstore.New(conn, path, vectorstore.Config{Table: "posts", Dimension: 4})
			require.NoError(t, err)
			got, err := st.GetByIDs(ctx, []int64{1})
			require.NoError(t, err)
			require.Equal(t, []string{"a", "b"}, got[1].Post.Categories)
			require.Equal(t, float32(1), got[1].Embedding[0])

			var leftovers int
			require.NoError(t, conn.Get(&leftovers, "SELECT COUNT(*) FROM sqlite_master WHERE name IN ('posts__staging', 'posts__legacy')"))
			require.Zero(t, leftovers)
			var indexes int
			require.NoError(t, conn.Get(&indexes, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_posts_id'"))
			require.Equal(t, 1, indexes)

			res, err = mgr.EnsureSchema(ctx, "posts")
			require.NoError(t, err)
			require.Equal(t, schema.ActionNoop, res.Action)
		})
	}
}

func TestEnsureSchemaNoop(t *testing.T) {
	ctx := context.Background()
	conn, path := testutil.OpenTestDB(t)
	mgr := schema.New(conn)

	res, err := mgr.EnsureSchema(ctx, "wordpress_posts")
	require.NoError(t, err)
	require.Equal(t, schema.ActionNoop, res.Action)
	require.False(t, res.TableExists)

	st, err := vectorstore.New(conn, path, vectorstore.Config{Dimension: 4})
	require.NoError(t, err)
	require.NoError(t, st.EnsureTableExists(ctx))
	res, err = mgr.EnsureSchema(ctx, "wordpress_posts")
	require.NoError(t, err)
	require.Equal(t, schema.ActionNoop, res.Action)
	require.True(t, res.TableExists)
}

func TestEnsureSchemaUnrecoverable(t *testing.T) {
	for _, typ := range []string{"TEXT", ""} {
		ctx := context.Background()
		conn, _ := testutil.OpenTestDB(t)
		createLegacyTable(t, conn, "posts", typ)
		_, err := schema.New(conn).EnsureSchema(ctx, "posts")
		require.ErrorIs(t, err, appErr.ErrUnrecoverableSchemaMismatch)
		if typ == "" {
			require.Contains(t, err.Error(), "missing created_at column")
		} else {
			require.Contains(t, err.Error(), typ)
		}
	}
}

func TestEnsureSchemaFailureLeavesLiveTable(t *testing.T) {
	ctx := context.Background()
	conn, _ := testutil.OpenTestDB(t)
	createLegacyTable(t, conn, "posts", vectorstore.TimestampMilli)
	insertLegacy(t, conn, "posts", 1, testutil.Vector(4, 1), int64(1000))
	insertLegacy(t, conn, "posts", 2, testutil.Vector(3, 1), int64(2000))

	mgr := schema.New(conn)
	_, err := mgr.EnsureSchema(ctx, "posts")
	require.Error(t, err)

	info, err := mgr.Inspect(ctx, "posts")
	require.NoError(t, err)
	require.Equal(t, vectorstore.TimestampMilli, info.CreatedAtType)
	require.Equal(t, int64(2), info.Rows)
	var leftovers int
	require.NoError(t, conn.Get(&leftovers, "SELECT COUNT(*) FROM sqlite_master WHERE name = 'posts__staging'"))
	require.Zero(t, leftovers)
}

func TestEnsureSchemaWritesSnapshot(t *testing.T) {
	ctx := context.Background()
	conn, _ := testutil.OpenTestDB(t)
	createLegacyTable(t, conn, "posts", vectorstore.TimestampMilli)
	insertLegacy(t, conn, "posts", 1, testutil.Vector(4, 1), int64(1000))
	insertLegacy(t, conn, "posts", 2, testutil.Vector(4, 2), int64(2000))

	dir := t.TempDir()
	store, err := filestore.New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": dir}})
	require.NoError(t, err)
	res, err := schema.New(conn, schema.WithSnapshotStore(store)).EnsureSchema(ctx, "posts")
	require.NoError(t, err)
	require.Regexp(t, `^snapshots/posts-[0-9a-f-]{36}\.jsonl$`, res.SnapshotKey)

	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(res.SnapshotKey)))
	require.NoError(t, err)
	defer f.Close()
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		require.Contains(t, sc.Text(), `"embedding":[`)
		lines++
	}
	require.Equal(t, 2, lines)
}

func TestInspectRejectsBadTable(t *testing.T) {
	conn, _ := testutil.OpenTestDB(t)
	_, err := schema.New(conn).Inspect(context.Background(), "posts; DROP TABLE x")
	require.True(t, appErr.IsInvalid(err))
}
