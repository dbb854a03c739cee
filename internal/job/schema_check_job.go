package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/postvec/internal/schema"
)

type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context, table string) (schema.Result, error)
}

// SchemaCheckJob brings the corpus table to the canonical schema, migrating
// legacy timestamp columns when it finds them.
type SchemaCheckJob struct {
	manager SchemaEnsurer
	table   string
}

func NewSchemaCheckJob(manager SchemaEnsurer, table string) *SchemaCheckJob {
	return &SchemaCheckJob{manager: manager, table: table}
}

func (j *SchemaCheckJob) Name() string {
	return "schema_check"
}

func (j *SchemaCheckJob) Run(ctx context.Context) error {
	res, err := j.manager.EnsureSchema(ctx, j.table)
	if err != nil {
		return err
	}
	if res.Action == schema.ActionMigrated {
		logutil.GetLogger(ctx).Warn("corpus table migrated",
			zap.String("table", j.table),
			zap.String("from", res.FromType),
			zap.String("to", res.ToType),
			zap.Int64("rows", res.Rows),
		)
	}
	return nil
}
