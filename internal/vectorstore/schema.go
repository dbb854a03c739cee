package vectorstore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xxxsen/postvec/internal/pkg/dbutil"
)

const (
	DefaultTable     = "wordpress_posts"
	DefaultDimension = 1536

	// TimestampMicro is the canonical created_at type: integer microseconds
	// since the Unix epoch.
	TimestampMicro = "TIMESTAMP_US"
	// TimestampMilli and TimestampNano are legacy integer precisions.
	TimestampMilli = "TIMESTAMP_MS"
	TimestampNano  = "TIMESTAMP_NS"
	// TimestampText is the legacy textual datetime column.
	TimestampText = "DATETIME"
)

var embeddingTypeRegex = regexp.MustCompile(`(?i)^F32_BLOB\((\d+)\)$`)

// Columns in insert order. rowid is implicit.
var Columns = []string{"id", "title", "content", "date", "permalink", "categories", "tags", "embedding", "created_at"}

func EmbeddingType(dim int) string {
	return fmt.Sprintf("F32_BLOB(%d)", dim)
}

// ParseDimension extracts D from a declared F32_BLOB(D) column type.
func ParseDimension(declType string) (int, bool) {
	m := embeddingTypeRegex.FindStringSubmatch(strings.TrimSpace(declType))
	if m == nil {
		return 0, false
	}
	dim, err := strconv.Atoi(m[1])
	if err != nil || dim <= 0 {
		return 0, false
	}
	return dim, true
}

// CreateTableSQL renders the canonical table definition. The caller must
// have validated table.
func CreateTableSQL(table string, dim int, ifNotExists bool) string {
	clause := ""
	if ifNotExists {
		clause = "IF NOT EXISTS "
	}
	return fmt.Sprintf(`CREATE TABLE %s%s (
	id INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	date TEXT NOT NULL DEFAULT '',
	permalink TEXT NOT NULL DEFAULT '',
	categories TEXT NOT NULL DEFAULT '[]',
	tags TEXT NOT NULL DEFAULT '[]',
	embedding %s NOT NULL CHECK (length(embedding) = %d),
	created_at %s NOT NULL
)`, clause, dbutil.Quote(table), EmbeddingType(dim), dim*4, TimestampMicro)
}

func IndexName(table string) string {
	return "idx_" + table + "_id"
}

func CreateIndexSQL(table string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (id)", dbutil.Quote(IndexName(table)), dbutil.Quote(table))
}
