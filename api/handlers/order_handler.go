package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/devadigapratham/microdose/api/models"
	"github.com/devadigapratham/microdose/dosing"
)

// CreateOrder opens an order from the posted material lines
func (h *Handler) CreateOrder(c *gin.Context) {
	var req models.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	// Generate an ID if not provided
	if req.OrderID == "" {
		req.OrderID = uuid.New().String()
	}

	st, err := h.Orders.Open(dosing.NewOrder(req.OrderID, req.RecipeName, req.ToLines()))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.NewOrderView(st.State()))
}

// FetchOrder opens an order seeded from the REST backend
func (h *Handler) FetchOrder(c *gin.Context) {
	if h.Source == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"kind": "NoBackend", "detail": "no backend configured"})
		return
	}

	var req models.FetchOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if req.OrderID == "" {
		req.OrderID = uuid.New().String()
	}

	order, err := h.Source.FetchOrder(c.Request.Context(), req.OrderID)
	if err != nil {
		h.Log.Warnw("fetching order from backend failed", "order_id", req.OrderID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"kind": "Backend", "detail": err.Error()})
		return
	}
	if len(order.Lines) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"kind": "NoMaterials", "detail": "backend returned no materials"})
		return
	}

	st, err := h.Orders.Open(order)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.NewOrderView(st.State()))
}

// GetOrders returns every open order
func (h *Handler) GetOrders(c *gin.Context) {
	states := h.Orders.States()
	views := make([]models.OrderView, 0, len(states))
	for _, s := range states {
		views = append(views, models.NewOrderView(s))
	}
	c.JSON(http.StatusOK, views)
}

// GetOrder returns one order with its lines and scan state
func (h *Handler) GetOrder(c *gin.Context) {
	st, err := h.Orders.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewOrderView(st.State()))
}

// BeginScan starts barcode verification of the current line
func (h *Handler) BeginScan(c *gin.Context) {
	st, err := h.Orders.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	generation, err := st.BeginScan()
	var de *dosing.Error
	if err != nil && !(errors.As(err, &de) && de.Kind == dosing.KindMissingBarcode) {
		h.writeError(c, err)
		return
	}
	if de != nil {
		// The line is in progress now; only the scan failed
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"kind":       de.Kind,
			"detail":     de.Detail,
			"generation": generation,
			"order":      models.NewOrderView(st.State()),
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"generation": generation,
		"order":      models.NewOrderView(st.State()),
	})
}

// ConfirmDosing doses the current line with the entered quantity
func (h *Handler) ConfirmDosing(c *gin.Context) {
	st, err := h.Orders.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	var req models.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ev, err := st.Confirm(c.Request.Context(), *req.Actual)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": ev, "order": models.NewOrderView(st.State())})
}

// BypassMaterial skips the current line without a tolerance check
func (h *Handler) BypassMaterial(c *gin.Context) {
	st, err := h.Orders.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	ev, err := st.Bypass(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": ev, "order": models.NewOrderView(st.State())})
}
