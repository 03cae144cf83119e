package api

import (
	"github.com/gin-gonic/gin"
)

// Router wires the HTTP surface consumed by the presentation layer.
type Router struct {
	Engine *gin.Engine
}

// NewRouter builds the route table.
func NewRouter(h *Handlers) *Router {
	r := gin.Default()

	api := r.Group("/api")
	{
		api.GET("/status", h.Status)
		api.POST("/sync", h.Sync)
		api.POST("/sync/historical", h.SyncHistorical)
		api.GET("/emails", h.ListEmails)
		api.GET("/emails/:id", h.GetEmail)
		api.GET("/emails/:id/responses", h.GetResponses)
		api.POST("/emails/:id/send", h.Send)
		api.POST("/emails/:id/improve", h.Improve)
		api.GET("/stats", h.Stats)
		api.GET("/preferences/:key", h.GetPreference)
		api.POST("/preferences/:key", h.SetPreference)
	}

	return &Router{Engine: r}
}

// Run starts the HTTP server on addr.
func (r *Router) Run(addr string) error {
	return r.Engine.Run(addr)
}
