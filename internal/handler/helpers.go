package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/postvec/internal/middleware"
	"github.com/xxxsen/postvec/internal/pkg/response"
)

func getSubject(c *gin.Context) string {
	return c.GetString(middleware.ContextSubjectKey)
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("subject", getSubject(c)),
		zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
		zap.Error(err),
	)
	response.FromError(c, err)
}

func Healthz(c *gin.Context) {
	response.Success(c, gin.H{"ok": true})
}
