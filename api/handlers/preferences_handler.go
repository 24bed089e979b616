package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/devadigapratham/microdose/api/models"
)

// GetSortOrder returns the saved manual sort order of a listing page
func (h *Handler) GetSortOrder(c *gin.Context) {
	ids, err := h.Prefs.SortOrder(c.Request.Context(), c.Param("page"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"page": c.Param("page"), "ids": ids})
}

// PutSortOrder replaces the saved manual sort order of a listing page
func (h *Handler) PutSortOrder(c *gin.Context) {
	var req models.SortOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.Prefs.SetSortOrder(c.Request.Context(), c.Param("page"), req.IDs); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"page": c.Param("page"), "ids": req.IDs})
}
