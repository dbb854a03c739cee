package testutil

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/postvec/internal/db"
)

// OpenTestDB opens a fresh database in a temp dir. The second value is the
// database file path.
func OpenTestDB(t *testing.T) (*sqlx.DB, string) {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(context.Background(), conn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn, db.Path(dir)
}

// Vector returns a dim-sized vector whose first value is v and the rest zero.
func Vector(dim int, v float32) []float32 {
	out := make([]float32, dim)
	out[0] = v
	return out
}
