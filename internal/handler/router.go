package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/postvec/internal/middleware"
)

type RouterDeps struct {
	Corpus    *CorpusHandler
	JWTSecret []byte
	// SearchWindow is the per-client interval between searches.
	SearchWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", Healthz)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))

	searchGroup := authGroup.Group("")
	searchGroup.Use(middleware.RateLimit(deps.SearchWindow))
	searchGroup.POST("/search", deps.Corpus.Search)
	searchGroup.POST("/search/text", deps.Corpus.SearchText)

	authGroup.GET("/stats", deps.Corpus.Stats)
	authGroup.GET("/browse", deps.Corpus.Browse)
	authGroup.POST("/posts/check", deps.Corpus.CheckExisting)
	authGroup.POST("/posts/get", deps.Corpus.GetByIDs)
	authGroup.POST("/posts/store", deps.Corpus.Store)
	authGroup.POST("/posts/upsert", deps.Corpus.Upsert)
	authGroup.POST("/ingest", deps.Corpus.Ingest)
	authGroup.POST("/schema/ensure", deps.Corpus.EnsureSchema)
	authGroup.POST("/chunk", deps.Corpus.Chunk)
}
