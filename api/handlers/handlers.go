package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/devadigapratham/microdose/dosing"
	"github.com/devadigapratham/microdose/store"
)

// OrderSource seeds orders from the production backend
type OrderSource interface {
	FetchOrder(ctx context.Context, orderID string) (dosing.Order, error)
}

// LeaderInfo reports raft leadership; nil when the history is not replicated
type LeaderInfo interface {
	Leader() bool
	LeaderAddress() string
}

// Handler represents the API handlers
type Handler struct {
	Orders  *dosing.Manager
	History dosing.EventLog
	Prefs   store.Preferences
	Source  OrderSource
	Leader  LeaderInfo
	Log     *zap.SugaredLogger
}

// RaftLeaderMiddleware rejects writes on followers and points at the leader
func (h *Handler) RaftLeaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.Leader == nil {
			c.Next()
			return
		}
		// Only apply to write operations
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			if !h.Leader.Leader() {
				c.JSON(http.StatusConflict, gin.H{
					"error":  "not the leader",
					"leader": h.Leader.LeaderAddress(),
				})
				c.Abort()
				return
			}
		}
		c.Next()
	}
}

// writeError maps workflow errors to status codes; the body always carries a kind
func (h *Handler) writeError(c *gin.Context, err error) {
	var de *dosing.Error
	switch {
	case errors.As(err, &de):
		status := http.StatusUnprocessableEntity
		if de.Kind == dosing.KindNoCurrentMaterial || de.Kind == dosing.KindOrderComplete {
			status = http.StatusConflict
		}
		c.JSON(status, de)
	case errors.Is(err, dosing.ErrUnknownOrder):
		c.JSON(http.StatusNotFound, gin.H{"kind": "UnknownOrder", "detail": err.Error()})
	case errors.Is(err, dosing.ErrOrderExists):
		c.JSON(http.StatusConflict, gin.H{"kind": "OrderExists", "detail": err.Error()})
	default:
		h.Log.Errorw("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"kind": "Internal", "detail": err.Error()})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"kind": "BadRequest", "detail": err.Error()})
}
