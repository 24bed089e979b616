package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/devadigapratham/microdose/dosing"
)

// GetDosingEvents returns the dosing history, optionally filtered by order and outcome
func (h *Handler) GetDosingEvents(c *gin.Context) {
	outcome := dosing.Outcome(c.Query("outcome"))
	if outcome != "" && outcome != dosing.OutcomeCompleted && outcome != dosing.OutcomeBypassed {
		c.JSON(http.StatusBadRequest, gin.H{"kind": "BadRequest", "detail": "invalid outcome"})
		return
	}

	events, err := h.History.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dosing.Filter(events, c.Query("order_id"), outcome))
}
