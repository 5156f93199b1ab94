package api

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the recall API on the given engine.
func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.GET("/health", h.Health)

	v1 := r.Group("/api/v1")
	{
		memory := v1.Group("/memory")
		{
			memory.POST("/recall", h.Recall)
			memory.POST("/store", h.Store)
		}
		graph := v1.Group("/graph")
		{
			graph.GET("/context", h.Context)
			graph.POST("/context", h.Context)
			graph.POST("/dialog/update", h.DialogUpdate)
		}
		tactics := v1.Group("/tactics")
		{
			tactics.POST("/filter", h.FilterTactics)
			tactics.POST("/mark", h.MarkTactic)
		}
	}
}
