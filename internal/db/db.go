package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/xxxsen/postvec/internal/pkg/dbutil"
	"github.com/xxxsen/postvec/internal/pkg/vecsql"
)

// FileName is the database file created inside a db_path directory.
const FileName = "postvec.db"

//go:embed migrations/*.sql
var migrationsFS embed.FS

func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Open creates dir if needed and opens its database with the vector
// functions available.
func Open(ctx context.Context, dir string) (*sqlx.DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	if err := vecsql.Register(); err != nil {
		return nil, fmt.Errorf("register vector functions: %w", err)
	}
	conn, err := sqlx.Open("sqlite", dbutil.DSN(Path(dir)))
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func ApplyMigrations(ctx context.Context, conn *sqlx.DB) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	for _, file := range files {
		content, err := fs.ReadFile(migrationsFS, "migrations/"+file)
		if err != nil {
			return err
		}
		for _, q := range strings.Split(string(content), ";") {
			q = strings.TrimSpace(q)
			if q == "" {
				continue
			}
			if _, err := conn.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("apply %s: %w", file, err)
			}
		}
	}
	return nil
}
