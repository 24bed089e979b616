package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/devadigapratham/microdose/label"
)

// GetBarcode renders a code as a CODE128 PNG
func (h *Handler) GetBarcode(c *gin.Context) {
	width, _ := strconv.Atoi(c.Query("width"))
	height, _ := strconv.Atoi(c.Query("height"))

	img, err := label.PNG(c.Param("code"), width, height)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", img)
}
