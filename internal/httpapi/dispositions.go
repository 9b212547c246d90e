package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"callcenter-platform/internal/dispositions"
)

func (h Handlers) CreateDisposition(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var in dispositions.Input
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.Dispositions.Create(c.Request.Context(), aid, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h Handlers) ListDispositions(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	activeOnly := c.Query("active") == "true"
	out, err := h.Dispositions.List(c.Request.Context(), aid, activeOnly)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispositions": out})
}

func (h Handlers) UpdateDisposition(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var in dispositions.Input
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.Dispositions.Update(c.Request.Context(), aid, c.Param("disposition_id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) DeleteDisposition(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	if err := h.Dispositions.Delete(c.Request.Context(), aid, c.Param("disposition_id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
