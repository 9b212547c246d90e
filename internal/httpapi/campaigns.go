package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"callcenter-platform/internal/campaigns"
	"callcenter-platform/internal/dialer"
)

func (h Handlers) CreateCampaign(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var in campaigns.Input
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.Campaigns.Create(c.Request.Context(), aid, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h Handlers) ListCampaigns(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	out, err := h.Campaigns.List(c.Request.Context(), aid)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": out})
}

func (h Handlers) GetCampaign(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	out, err := h.Campaigns.Get(c.Request.Context(), aid, c.Param("campaign_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) UpdateCampaign(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var in campaigns.Input
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.Campaigns.Update(c.Request.Context(), aid, c.Param("campaign_id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) DeleteCampaign(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	if err := h.Campaigns.Delete(c.Request.Context(), aid, c.Param("campaign_id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- lifecycle ---

func (h Handlers) StartCampaign(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	out, err := h.Campaigns.Start(c.Request.Context(), aid, c.Param("campaign_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) PauseCampaign(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	out, err := h.Campaigns.Pause(c.Request.Context(), aid, c.Param("campaign_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) StopCampaign(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	out, err := h.Campaigns.Stop(c.Request.Context(), aid, c.Param("campaign_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) CampaignStats(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	out, err := h.Stats.Snapshot(c.Request.Context(), aid, c.Param("campaign_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- agent assignments ---

type assignAgentRequest struct {
	AgentID  string `json:"agent_id"`
	Priority int    `json:"priority"`
}

func (h Handlers) AssignCampaignAgent(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var req assignAgentRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.Campaigns.AssignAgent(c.Request.Context(), aid, c.Param("campaign_id"), req.AgentID, req.Priority)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h Handlers) RemoveCampaignAgent(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	if err := h.Campaigns.RemoveAgent(c.Request.Context(), aid, c.Param("campaign_id"), c.Param("agent_id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) ListCampaignAgents(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	out, err := h.Campaigns.ListAssignments(c.Request.Context(), aid, c.Param("campaign_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": out})
}

// --- leads ---

type enrollLeadRequest struct {
	ContactID string `json:"contact_id"`
	Phone     string `json:"phone"`
}

func (h Handlers) EnrollLead(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var req enrollLeadRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.Campaigns.Enroll(c.Request.Context(), aid, c.Param("campaign_id"), req.ContactID, req.Phone)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

type enrollListRequest struct {
	ListID     string `json:"list_id"`
	PhoneField string `json:"phone_field"`
}

// EnrollLeadList bulk-enrolls every contact on a list, skipping
// duplicates and pre-marking DNC numbers.
func (h Handlers) EnrollLeadList(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var req enrollListRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.Campaigns.EnrollList(c.Request.Context(), aid, c.Param("campaign_id"), req.ListID, req.PhoneField)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) ListCampaignLeads(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	status := campaigns.LeadStatus(c.Query("status"))
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	leads, total, err := h.Campaigns.ListLeads(c.Request.Context(), aid, c.Param("campaign_id"), status, limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": leads, "total": total})
}

// --- dialing ---

type manualCallRequest struct {
	AgentID  string `json:"agent_id"`
	LeadID   string `json:"lead_id"`
	CallerID string `json:"caller_id"`
}

// ManualCall places one call on behalf of an agent. A refused call is
// a 200 with success=false, mirroring how agent consoles consume it.
func (h Handlers) ManualCall(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var req manualCallRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.Dialer.ManualCall(c.Request.Context(), aid, dialer.ManualCallRequest{
		CampaignID: c.Param("campaign_id"),
		AgentID:    req.AgentID,
		LeadID:     req.LeadID,
		CallerID:   req.CallerID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type dispositionRequest struct {
	LeadID       string     `json:"lead_id"`
	CallRecordID string     `json:"call_record_id"`
	Code         string     `json:"code"`
	Note         string     `json:"note"`
	CallbackAt   *time.Time `json:"callback_at"`
}

// ApplyDisposition records the outcome of a finished call.
func (h Handlers) ApplyDisposition(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	var req dispositionRequest
	if !bindJSON(c, &req) {
		return
	}
	lead, err := h.Dialer.ProcessDisposition(c.Request.Context(), aid, c.Param("campaign_id"),
		req.LeadID, req.CallRecordID, req.Code, req.Note, req.CallbackAt)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lead)
}
