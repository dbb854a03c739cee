package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// RegisterTools exposes the read side of the corpus as MCP tools.
func RegisterTools(server *mcpserver.MCPServer, exec Executor) *Handlers {
	h := NewHandlers(exec)

	server.AddTool(mcp.Tool{
		Name:        "search_posts",
		Description: "Semantic search over the stored posts. Returns the closest posts with their distance.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Free text to search for",
				},
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of posts (default: 5)",
					"default":     5,
				},
				"start_date": map[string]interface{}{
					"type":        "string",
					"description": "Only posts dated on or after this day (YYYY-MM-DD)",
				},
				"end_date": map[string]interface{}{
					"type":        "string",
					"description": "Only posts dated on or before this day (YYYY-MM-DD)",
				},
				"categories": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Only posts in at least one of these categories",
				},
			},
			Required: []string{"query"},
		},
	}, h.SearchPosts)

	server.AddTool(mcp.Tool{
		Name:        "corpus_stats",
		Description: "Row count and storage size of the post table.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, h.CorpusStats)

	server.AddTool(mcp.Tool{
		Name:        "browse_posts",
		Description: "Page through stored posts, newest first, with optional keyword and date filters.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"page": map[string]interface{}{
					"type":    "number",
					"default": 1,
				},
				"per_page": map[string]interface{}{
					"type":    "number",
					"default": 20,
				},
				"search": map[string]interface{}{
					"type":        "string",
					"description": "Whitespace separated terms, any of which must appear in title or content",
				},
				"date_filter": map[string]interface{}{
					"type": "string",
					"enum": []string{"all", "today", "week", "month", "year"},
				},
			},
		},
	}, h.BrowsePosts)

	server.AddTool(mcp.Tool{
		Name:        "check_existing",
		Description: "Split post ids into those already embedded and those missing.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"post_ids": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"type": "number"},
				},
			},
			Required: []string{"post_ids"},
		},
	}, h.CheckExisting)

	return h
}
