package command

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxsen/postvec/internal/model"
	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
	"github.com/xxxsen/postvec/internal/vectorstore"
)

// Request is the JSON document every operation reads. Each operation uses
// the subset of fields it needs.
type Request struct {
	DBPath    string `json:"db_path"`
	TableName string `json:"table_name"`

	Posts          []model.Post        `json:"posts"`
	Embeddings     [][]float32         `json:"embeddings"`
	QueryEmbedding []float32           `json:"query_embedding"`
	Query          string              `json:"query"`
	Limit          int                 `json:"limit"`
	Filters        vectorstore.Filters `json:"filters"`
	PostIDs        []int64             `json:"post_ids"`
	Force          bool                `json:"force"`

	Page       *int   `json:"page"`
	PerPage    *int   `json:"per_page"`
	Search     string `json:"search"`
	DateFilter string `json:"date_filter"`

	Text        string `json:"text"`
	HTML        string `json:"html"`
	TokenBudget int    `json:"token_budget"`
	Mode        string `json:"mode"`
	Model       string `json:"model"`
	APIKey      string `json:"api_key"`
}

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

func ReadRequest(path string) (*Request, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	req := &Request{}
	if err := json.Unmarshal(raw, req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

// ResolveDBPath places a relative db_path under root. An empty db_path is
// root itself.
func ResolveDBPath(root, p string) string {
	if p == "" {
		return root
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// ConfineDBPath is ResolveDBPath for callers that must stay inside root:
// absolute paths and relative paths that climb out of root are rejected.
func ConfineDBPath(root, p string) (string, error) {
	if p == "" {
		return root, nil
	}
	if filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return "", appErr.Invalid("db_path must be relative to the storage root: %s", p)
	}
	dir := filepath.Join(root, p)
	rel, err := filepath.Rel(filepath.Clean(root), dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", appErr.Invalid("db_path escapes the storage root: %s", p)
	}
	return dir, nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
