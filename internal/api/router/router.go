package router

import (
	"net/http"

	"github.com/cedarshop/indexing-be/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "indexing-api-service",
		})
	})

	// Initialize queue handler
	queueHandler := handler.NewQueueHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		queue := v1.Group("/queue")
		{
			// POST /api/v1/queue/urls - Enqueue explicit URLs
			queue.POST("/urls", queueHandler.AddURLs)

			// POST /api/v1/queue/sitemap - Seed the queue from a sitemap
			queue.POST("/sitemap", queueHandler.SeedSitemap)

			// POST /api/v1/queue/schedule-fresh - Enqueue fresh catalog entries
			queue.POST("/schedule-fresh", queueHandler.ScheduleFresh)

			// POST /api/v1/queue/process - Run one claim-and-dispatch cycle
			queue.POST("/process", queueHandler.ProcessBatch)

			// GET /api/v1/queue/stats - Per-status queue counts
			queue.GET("/stats", queueHandler.GetStats)

			// GET /api/v1/queue/items - List items with filtering and pagination
			queue.GET("/items", queueHandler.ListItems)

			// DELETE /api/v1/queue/items/:item_id - Delete an item
			queue.DELETE("/items/:item_id", queueHandler.DeleteItem)
		}
	}

	return r
}
