package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"callcenter-platform/internal/cdr"
)

func (h Handlers) ListCallRecords(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	filter := cdr.ListFilter{
		CampaignID: c.Query("campaign_id"),
		AgentID:    c.Query("agent_id"),
		Result:     cdr.Result(c.Query("result")),
		Limit:      intQuery(c, "limit", 50),
		Offset:     intQuery(c, "offset", 0),
	}
	records, total, err := h.Records.List(c.Request.Context(), aid, filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "total": total})
}

func (h Handlers) GetCallRecord(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	rec, err := h.Records.Get(c.Request.Context(), aid, c.Param("record_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// CallRecordTimeline returns the per-call event trail.
func (h Handlers) CallRecordTimeline(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	events, err := h.Records.Timeline(c.Request.Context(), aid, c.Param("record_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// HangupCall asks the PBX to drop the call behind a record.
func (h Handlers) HangupCall(c *gin.Context) {
	aid, ok := accountID(c)
	if !ok {
		return
	}
	if err := h.Gateway.Hangup(c.Request.Context(), aid, c.Param("record_id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "hangup requested"})
}
