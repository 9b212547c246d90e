package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"callcenter-platform/internal/pbx"
)

// --- SIP providers ---

func (h Handlers) CreateProvider(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var in pbx.ProviderInput
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.Pbx.CreateProvider(c.Request.Context(), aid, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h Handlers) ListProviders(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	out, err := h.Pbx.ListProviders(c.Request.Context(), aid)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

func (h Handlers) UpdateProvider(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var in pbx.ProviderInput
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.Pbx.UpdateProvider(c.Request.Context(), aid, c.Param("provider_id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) DeleteProvider(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	if err := h.Pbx.DeleteProvider(c.Request.Context(), aid, c.Param("provider_id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- SIP trunks ---

func (h Handlers) CreateTrunk(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var in pbx.TrunkInput
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.Pbx.CreateTrunk(c.Request.Context(), aid, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h Handlers) ListTrunks(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	out, err := h.Pbx.ListTrunks(c.Request.Context(), aid)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trunks": out})
}

func (h Handlers) UpdateTrunk(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var in pbx.TrunkInput
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.Pbx.UpdateTrunk(c.Request.Context(), aid, c.Param("trunk_id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) DeleteTrunk(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	if err := h.Pbx.DeleteTrunk(c.Request.Context(), aid, c.Param("trunk_id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- PBX nodes ---

func (h Handlers) CreateNode(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var in pbx.NodeInput
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.Pbx.CreateNode(c.Request.Context(), aid, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h Handlers) ListNodes(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	out, err := h.Pbx.ListNodes(c.Request.Context(), aid)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": out})
}

func (h Handlers) UpdateNode(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var in pbx.NodeInput
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.Pbx.UpdateNode(c.Request.Context(), aid, c.Param("node_id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) DeleteNode(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	if err := h.Pbx.DeleteNode(c.Request.Context(), aid, c.Param("node_id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CheckNodeHealth probes the node's AMI port and persists the result.
func (h Handlers) CheckNodeHealth(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	status, err := h.Gateway.CheckNodeHealth(c.Request.Context(), aid, c.Param("node_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"health_status": status})
}
