package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketplace-search/internal/common/auth"
	"marketplace-search/internal/common/logger"
)

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(h *Handler, verifier *auth.Verifier, log logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log), Errors(log))

	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(Caller(verifier))
	{
		search := api.Group("/search")
		search.GET("", h.Search)
		search.POST("/reindex/listing-created", h.ListingCreated)
		search.PATCH("/reindex/listing-edited", h.ListingEdited)
		search.DELETE("/reindex/listing-deleted", h.ListingDeleted)

		recs := api.Group("/recommendations")
		recs.GET("", h.Recommendations)
		recs.POST("/stop/:id", h.StopSuggesting)
	}

	return r
}
