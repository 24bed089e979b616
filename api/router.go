// api/router.go
package api

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/devadigapratham/microdose/api/handlers"
	"github.com/devadigapratham/microdose/raft"
)

// RouterOptions holds the optional parts of the HTTP surface
type RouterOptions struct {
	// Node is nil when the history is kept in the local store only
	Node *raft.Node
	// Health serves /live and /ready
	Health healthcheck.Handler
	// Gatherer is exposed on /metrics when set
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// SetupRouter sets up the API routes
func SetupRouter(handler *handlers.Handler, opts RouterOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(opts.Logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(opts.Logger, true))

	api := router.Group("/api/v1")
	api.Use(handler.RaftLeaderMiddleware())
	{
		// Order workflow
		api.POST("/orders", handler.CreateOrder)
		api.POST("/orders/fetch", handler.FetchOrder)
		api.GET("/orders", handler.GetOrders)
		api.GET("/orders/:id", handler.GetOrder)
		api.POST("/orders/:id/scan", handler.BeginScan)
		api.POST("/orders/:id/confirm", handler.ConfirmDosing)
		api.POST("/orders/:id/bypass", handler.BypassMaterial)

		// History
		api.GET("/dosing_events", handler.GetDosingEvents)

		// Listing preferences
		api.GET("/preferences/sort/:page", handler.GetSortOrder)
		api.PUT("/preferences/sort/:page", handler.PutSortOrder)

		// Labels
		api.GET("/barcodes/:code", handler.GetBarcode)
	}

	if opts.Node != nil {
		node := opts.Node
		router.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"is_leader":   node.Leader(),
				"leader_addr": node.LeaderAddress(),
				"state":       node.State().String(),
			})
		})
		raft.NewTransport(node).RegisterRoutes(router.Group("/cluster"))
	}

	if opts.Health != nil {
		router.GET("/live", gin.WrapH(opts.Health))
		router.GET("/ready", gin.WrapH(opts.Health))
	}

	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	return router
}
