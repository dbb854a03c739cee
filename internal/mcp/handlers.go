package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/xxxsen/postvec/internal/command"
	"github.com/xxxsen/postvec/internal/vectorstore"
)

type Executor interface {
	Exec(ctx context.Context, op string, req *command.Request) (interface{}, error)
}

type Handlers struct {
	exec Executor
}

func NewHandlers(exec Executor) *Handlers {
	return &Handlers{exec: exec}
}

func (h *Handlers) SearchPosts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	categories, err := stringSlice(request, "categories")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.run(ctx, "search-text", &command.Request{
		Query: query,
		Limit: request.GetInt("limit", vectorstore.DefaultSearchLimit),
		Filters: vectorstore.Filters{
			StartDate:  request.GetString("start_date", ""),
			EndDate:    request.GetString("end_date", ""),
			Categories: categories,
		},
	})
}

func (h *Handlers) CorpusStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.run(ctx, "stats", &command.Request{})
}

func (h *Handlers) BrowsePosts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page := request.GetInt("page", 1)
	perPage := request.GetInt("per_page", 20)
	return h.run(ctx, "browse", &command.Request{
		Page:       &page,
		PerPage:    &perPage,
		Search:     request.GetString("search", ""),
		DateFilter: request.GetString("date_filter", ""),
	})
}

func (h *Handlers) CheckExisting(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := int64Slice(request, "post_ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.run(ctx, "check-existing", &command.Request{PostIDs: ids})
}

func (h *Handlers) run(ctx context.Context, op string, req *command.Request) (*mcp.CallToolResult, error) {
	data, err := h.exec.Exec(ctx, op, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func arrayArg(request mcp.CallToolRequest, name string) ([]interface{}, bool, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return nil, false, nil
	}
	raw, exists := args[name]
	if !exists || raw == nil {
		return nil, false, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, true, fmt.Errorf("%s must be an array", name)
	}
	return items, true, nil
}

func stringSlice(request mcp.CallToolRequest, name string) ([]string, error) {
	items, _, err := arrayArg(request, name)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s must contain strings", name)
		}
		out = append(out, s)
	}
	return out, nil
}

func int64Slice(request mcp.CallToolRequest, name string) ([]int64, error) {
	items, present, err := arrayArg(request, name)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, fmt.Errorf("%s argument is required", name)
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		f, ok := item.(float64)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("%s must contain integers", name)
		}
		out = append(out, int64(f))
	}
	return out, nil
}
