package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type dncAddRequest struct {
	Phone  string `json:"phone"`
	Reason string `json:"reason"`
}

func (h Handlers) AddDncEntry(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var req dncAddRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.Dnc.Add(c.Request.Context(), aid, req.Phone, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h Handlers) ListDncEntries(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	entries, err := h.Dnc.List(c.Request.Context(), aid, intQuery(c, "limit", 100), intQuery(c, "offset", 0))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h Handlers) RemoveDncEntry(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	if err := h.Dnc.Remove(c.Request.Context(), aid, c.Param("phone")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CheckDncNumber looks up one number, read-through cached.
func (h Handlers) CheckDncNumber(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	blocked, err := h.Dnc.IsBlocked(c.Request.Context(), aid, c.Param("phone"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"phone": c.Param("phone"), "blocked": blocked})
}
