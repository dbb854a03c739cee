package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalid      = errors.New("invalid")
	ErrTooMany      = errors.New("too many requests")
	ErrInternal     = errors.New("internal")

	ErrDependencyUnavailable       = errors.New("dependency unavailable")
	ErrTokenizerUnavailable        = fmt.Errorf("tokenizer unavailable: %w", ErrDependencyUnavailable)
	ErrSchemaDrift                 = errors.New("schema drift")
	ErrUnrecoverableSchemaMismatch = errors.New("unrecoverable schema mismatch")
	ErrMigrationVerify             = errors.New("migration verify failed")
	ErrStorageIO                   = errors.New("storage io")
	ErrTimeout                     = errors.New("timeout")
	ErrDimensionMismatch           = errors.New("dimension mismatch")
	ErrTableNotFound               = fmt.Errorf("table %w", ErrNotFound)
)

// OpError carries the operation, the table and the ids involved in a failure.
type OpError struct {
	Op    string
	Table string
	IDs   []int64
	Err   error
}

func (e *OpError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.Table != "" {
		sb.WriteString(" table=")
		sb.WriteString(e.Table)
	}
	if len(e.IDs) > 0 {
		sb.WriteString(" ids=")
		sb.WriteString(formatIDs(e.IDs))
	}
	sb.WriteString(": ")
	if e.Err != nil {
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func Wrap(op, table string, err error, ids ...int64) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Table: table, IDs: ids, Err: err}
}

func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsDependencyUnavailable(err error) bool {
	return errors.Is(err, ErrDependencyUnavailable)
}

func formatIDs(ids []int64) string {
	const maxShown = 10
	parts := make([]string, 0, len(ids))
	for i, id := range ids {
		if i == maxShown {
			parts = append(parts, fmt.Sprintf("...(+%d)", len(ids)-maxShown))
			break
		}
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
