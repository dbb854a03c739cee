package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/postvec/internal/pkg/vecsql"
	"github.com/xxxsen/postvec/internal/vectorstore"
)

type legacyRow struct {
	RowID      int64       `db:"rowid" json:"-"`
	ID         int64       `db:"id" json:"id"`
	Title      string      `db:"title" json:"title"`
	Content    string      `db:"content" json:"content"`
	Date       string      `db:"date" json:"date"`
	Permalink  string      `db:"permalink" json:"permalink"`
	Categories string      `db:"categories" json:"categories"`
	Tags       string      `db:"tags" json:"tags"`
	Embedding  []byte      `db:"embedding" json:"-"`
	CreatedAt  interface{} `db:"created_at" json:"created_at"`
}

func (r legacyRow) toInsert(createdAtMicros int64) map[string]interface{} {
	return map[string]interface{}{
		"id":         r.ID,
		"title":      r.Title,
		"content":    r.Content,
		"date":       r.Date,
		"permalink":  r.Permalink,
		"categories": r.Categories,
		"tags":       r.Tags,
		"embedding":  r.Embedding,
		"created_at": createdAtMicros,
	}
}

var legacyFields = []string{"rowid", "id", "title", "content", "date", "permalink", "categories", "tags", "embedding", "created_at"}

func readLegacyRows(ctx context.Context, q sqlx.QueryerContext, table string) ([]legacyRow, error) {
	where := map[string]interface{}{"_orderby": "rowid ASC"}
	sqlStr, args, err := builder.BuildSelect(table, where, append([]string{}, legacyFields...))
	if err != nil {
		return nil, err
	}
	var rows []legacyRow
	if err := sqlx.SelectContext(ctx, q, &rows, sqlStr, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

var textLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ToMicros converts a created_at value stored under a legacy column type to
// microseconds since the epoch. Finer values are floored, never rounded up.
func ToMicros(typ string, v interface{}) (int64, error) {
	switch typ {
	case vectorstore.TimestampMicro:
		return toInt64(v)
	case vectorstore.TimestampMilli:
		n, err := toInt64(v)
		if err != nil {
			return 0, err
		}
		return n * 1000, nil
	case vectorstore.TimestampNano:
		n, err := toInt64(v)
		if err != nil {
			return 0, err
		}
		return floorDiv(n, 1000), nil
	case vectorstore.TimestampText:
		t, err := toTime(v)
		if err != nil {
			return 0, err
		}
		return t.UnixMicro(), nil
	default:
		return 0, fmt.Errorf("no conversion from %q", typ)
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func toInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		return int64(math.Floor(x)), nil
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case time.Time:
		return x.UnixMicro(), nil
	case nil:
		return 0, fmt.Errorf("created_at is null")
	default:
		return 0, fmt.Errorf("unexpected created_at value %T", v)
	}
}

func toTime(v interface{}) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case []byte:
		return parseText(string(x))
	case string:
		return parseText(x)
	case int64:
		return time.Unix(x, 0).UTC(), nil
	case float64:
		sec, frac := math.Modf(x)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	case nil:
		return time.Time{}, fmt.Errorf("created_at is null")
	default:
		return time.Time{}, fmt.Errorf("unexpected created_at value %T", v)
	}
}

func parseText(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range textLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable datetime %q", s)
}

type snapshotRow struct {
	legacyRow
	Embedding []float32 `json:"embedding"`
}

type nopCloseReader struct {
	*bytes.Reader
}

func (nopCloseReader) Close() error {
	return nil
}

// snapshot writes every live row, untouched, as one JSON object per line.
func (m *Manager) snapshot(ctx context.Context, table string) (string, error) {
	rows, err := readLegacyRows(ctx, m.db, table)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		vec, err := vecsql.Decode(r.Embedding)
		if err != nil {
			return "", fmt.Errorf("decode embedding of row %d: %w", r.RowID, err)
		}
		if err := enc.Encode(snapshotRow{legacyRow: r, Embedding: vec}); err != nil {
			return "", err
		}
	}
	key := fmt.Sprintf("snapshots/%s-%s.jsonl", table, uuid.NewString())
	if err := m.snapshots.Save(ctx, key, nopCloseReader{bytes.NewReader(buf.Bytes())}, int64(buf.Len())); err != nil {
		return "", err
	}
	return key, nil
}
