package dbutil

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
)

var tableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateTable rejects names that cannot be used as a bare identifier.
// Table names are the only values that are ever placed into SQL text.
func ValidateTable(name string) error {
	if !tableNameRegex.MatchString(name) {
		return appErr.Invalid("invalid table name %q", name)
	}
	return nil
}

func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// DSN enables WAL and a busy timeout so concurrent invocations wait instead of failing.
// Transactions take the write lock up front.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate", path)
}

func InArgs(ids []int64) []interface{} {
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func sqliteCode(err error) (int, bool) {
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code() & 0xff, true
	}
	return 0, false
}

func IsBusy(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED)
}

func IsNoSuchTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// Classify maps driver and context errors onto the storage error taxonomy.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || IsBusy(err) {
		return fmt.Errorf("%w: %w", appErr.ErrTimeout, err)
	}
	if IsNoSuchTable(err) {
		return fmt.Errorf("%w: %w", appErr.ErrTableNotFound, err)
	}
	code, ok := sqliteCode(err)
	if ok {
		switch code {
		case sqlite3.SQLITE_IOERR, sqlite3.SQLITE_FULL, sqlite3.SQLITE_CANTOPEN,
			sqlite3.SQLITE_READONLY, sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
			return fmt.Errorf("%w: %w", appErr.ErrStorageIO, err)
		}
	}
	return err
}
