package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/xxxsen/postvec/internal/command"
)

type operationCommand struct {
	name  string
	short string
}

var operationCommands = []operationCommand{
	{"store", "append posts with their embeddings"},
	{"upsert", "replace posts with their embeddings, one row per id"},
	{"search", "nearest posts to a query embedding"},
	{"search-text", "embed a query and return the nearest posts"},
	{"stats", "row count and storage size of the table"},
	{"check-existing", "split post ids into stored and missing"},
	{"get-by-ids", "load stored posts with their embeddings"},
	{"ensure-schema", "migrate a legacy table to the current schema"},
	{"browse", "page through stored posts"},
	{"chunk", "split text into token-bounded chunks"},
	{"embed", "embed one text"},
	{"ingest", "chunk, embed and upsert posts that are not stored yet"},
}

func newOperationCmd(op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <request.json>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd.Context(), args[0], op)
		},
	}
}

// newOpsCmd keeps the legacy "<request.json> <operation>" calling convention.
func newOpsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ops <request.json> <operation>",
		Short: "run an operation by name, legacy names included",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd.Context(), args[0], args[1])
		},
	}
}

func runOperation(ctx context.Context, requestPath, op string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	resp := execute(ctx, requestPath, op)
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}

func execute(ctx context.Context, requestPath, op string) command.Response {
	cfg, err := loadConfig(false)
	if err != nil {
		return command.Response{Success: false, Data: err.Error()}
	}
	req, err := command.ReadRequest(requestPath)
	if err != nil {
		return command.Response{Success: false, Data: err.Error()}
	}
	runner, err := newRunner(cfg)
	if err != nil {
		return command.Response{Success: false, Data: err.Error()}
	}
	return runner.Run(ctx, op, req)
}
