package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"callcenter-platform/internal/agents"
)

func (h Handlers) CreateAgent(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var in agents.Input
	if !bindJSON(c, &in) {
		return
	}
	a, err := h.Agents.Create(c.Request.Context(), aid, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h Handlers) ListAgents(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	out, err := h.Agents.List(c.Request.Context(), aid)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": out})
}

func (h Handlers) GetAgent(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	a, err := h.Agents.Get(c.Request.Context(), aid, c.Param("agent_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h Handlers) UpdateAgent(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var in agents.Input
	if !bindJSON(c, &in) {
		return
	}
	a, err := h.Agents.Update(c.Request.Context(), aid, c.Param("agent_id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h Handlers) DeleteAgent(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	if err := h.Agents.Delete(c.Request.Context(), aid, c.Param("agent_id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type agentStatusRequest struct {
	Status      string `json:"status"`
	PauseReason string `json:"pause_reason"`
}

// SetAgentStatus moves an agent through the presence state machine.
func (h Handlers) SetAgentStatus(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var req agentStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	a, err := h.Agents.SetStatus(c.Request.Context(), aid, c.Param("agent_id"), agents.Status(req.Status), req.PauseReason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
