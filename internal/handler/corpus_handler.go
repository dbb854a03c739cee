package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/postvec/internal/command"
	"github.com/xxxsen/postvec/internal/pkg/errcode"
	"github.com/xxxsen/postvec/internal/pkg/response"
)

// Executor runs one named corpus operation.
type Executor interface {
	Exec(ctx context.Context, op string, req *command.Request) (interface{}, error)
}

type CorpusHandler struct {
	exec Executor
}

func NewCorpusHandler(exec Executor) *CorpusHandler {
	return &CorpusHandler{exec: exec}
}

func (h *CorpusHandler) run(c *gin.Context, op string, req *command.Request) {
	data, err := h.exec.Exec(c.Request.Context(), op, req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, data)
}

func (h *CorpusHandler) runJSON(c *gin.Context, op string) {
	var req command.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	h.run(c, op, &req)
}

func (h *CorpusHandler) Search(c *gin.Context) {
	h.runJSON(c, "search")
}

func (h *CorpusHandler) SearchText(c *gin.Context) {
	h.runJSON(c, "search-text")
}

func (h *CorpusHandler) CheckExisting(c *gin.Context) {
	h.runJSON(c, "check-existing")
}

func (h *CorpusHandler) GetByIDs(c *gin.Context) {
	h.runJSON(c, "get-by-ids")
}

func (h *CorpusHandler) Store(c *gin.Context) {
	h.runJSON(c, "store")
}

func (h *CorpusHandler) Upsert(c *gin.Context) {
	h.runJSON(c, "upsert")
}

func (h *CorpusHandler) Ingest(c *gin.Context) {
	h.runJSON(c, "ingest")
}

func (h *CorpusHandler) EnsureSchema(c *gin.Context) {
	h.runJSON(c, "ensure-schema")
}

func (h *CorpusHandler) Chunk(c *gin.Context) {
	h.runJSON(c, "chunk")
}

func (h *CorpusHandler) Stats(c *gin.Context) {
	h.run(c, "stats", &command.Request{
		DBPath:    c.Query("db_path"),
		TableName: c.Query("table_name"),
	})
}

func (h *CorpusHandler) Browse(c *gin.Context) {
	req := &command.Request{
		DBPath:     c.Query("db_path"),
		TableName:  c.Query("table_name"),
		Search:     c.Query("search"),
		DateFilter: c.Query("date_filter"),
	}
	for name, dst := range map[string]**int{"page": &req.Page, "per_page": &req.PerPage} {
		raw, ok := c.GetQuery(name)
		if !ok {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, errcode.ErrInvalid, name+" must be an integer")
			return
		}
		*dst = &v
	}
	h.run(c, "browse", req)
}
