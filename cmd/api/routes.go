package main

import (
	"github.com/gin-gonic/gin"

	"callcenter-platform/internal/httpapi"
	"callcenter-platform/internal/metrics"
	"callcenter-platform/internal/rbac"
)

// registerRoutes wires HTTP routes to handlers. Keep this file free of
// business logic; handlers delegate to the internal packages.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, m *metrics.Metrics) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", m.Handler())

	r.POST("/api/v1/auth/login", h.Login)
	r.POST("/api/v1/auth/refresh", h.Refresh)

	// protected API group
	v1 := r.Group("/api/v1")
	v1.Use(authMW)
	v1.Use(rbac.RequireAccount())
	{
		v1.GET("/me", h.Me)

		// Campaign control is a supervisor concern.
		manage := rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleSupervisor)

		campaigns := v1.Group("/campaigns")
		campaigns.Use(manage)
		{
			campaigns.POST("", h.CreateCampaign)
			campaigns.GET("", h.ListCampaigns)
			campaigns.GET("/:campaign_id", h.GetCampaign)
			campaigns.PUT("/:campaign_id", h.UpdateCampaign)
			campaigns.DELETE("/:campaign_id", h.DeleteCampaign)

			campaigns.POST("/:campaign_id/start", h.StartCampaign)
			campaigns.POST("/:campaign_id/pause", h.PauseCampaign)
			campaigns.POST("/:campaign_id/stop", h.StopCampaign)
			campaigns.GET("/:campaign_id/stats", h.CampaignStats)

			campaigns.POST("/:campaign_id/agents", h.AssignCampaignAgent)
			campaigns.GET("/:campaign_id/agents", h.ListCampaignAgents)
			campaigns.DELETE("/:campaign_id/agents/:agent_id", h.RemoveCampaignAgent)

			campaigns.POST("/:campaign_id/leads", h.EnrollLead)
			campaigns.POST("/:campaign_id/leads/bulk", h.EnrollLeadList)
			campaigns.GET("/:campaign_id/leads", h.ListCampaignLeads)
		}

		// Agents place calls and record outcomes themselves.
		dialing := rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleSupervisor, rbac.RoleAgent)
		v1.POST("/campaigns/:campaign_id/manual-call", dialing, h.ManualCall)
		v1.POST("/campaigns/:campaign_id/disposition", dialing, h.ApplyDisposition)

		agents := v1.Group("/agents")
		{
			agents.POST("", manage, h.CreateAgent)
			agents.GET("", manage, h.ListAgents)
			agents.GET("/:agent_id", dialing, h.GetAgent)
			agents.PUT("/:agent_id", manage, h.UpdateAgent)
			agents.DELETE("/:agent_id", manage, h.DeleteAgent)
			agents.PUT("/:agent_id/status", dialing, h.SetAgentStatus)
		}

		dispositions := v1.Group("/dispositions")
		{
			dispositions.GET("", dialing, h.ListDispositions)
			dispositions.POST("", manage, h.CreateDisposition)
			dispositions.PUT("/:disposition_id", manage, h.UpdateDisposition)
			dispositions.DELETE("/:disposition_id", manage, h.DeleteDisposition)
		}

		calls := v1.Group("/calls")
		calls.Use(dialing)
		{
			calls.GET("", h.ListCallRecords)
			calls.GET("/:record_id", h.GetCallRecord)
			calls.GET("/:record_id/events", h.CallRecordTimeline)
			calls.POST("/:record_id/hangup", h.HangupCall)
		}

		dnc := v1.Group("/dnc")
		dnc.Use(manage)
		{
			dnc.POST("", h.AddDncEntry)
			dnc.GET("", h.ListDncEntries)
			dnc.GET("/check/:phone", h.CheckDncNumber)
			dnc.DELETE("/:phone", h.RemoveDncEntry)
		}

		// PBX catalog is admin-only.
		admin := rbac.RequireAnyRole(rbac.RoleAdmin)

		catalog := v1.Group("/pbx")
		catalog.Use(admin)
		{
			catalog.POST("/providers", h.CreateProvider)
			catalog.GET("/providers", h.ListProviders)
			catalog.PUT("/providers/:provider_id", h.UpdateProvider)
			catalog.DELETE("/providers/:provider_id", h.DeleteProvider)

			catalog.POST("/trunks", h.CreateTrunk)
			catalog.GET("/trunks", h.ListTrunks)
			catalog.PUT("/trunks/:trunk_id", h.UpdateTrunk)
			catalog.DELETE("/trunks/:trunk_id", h.DeleteTrunk)

			catalog.POST("/nodes", h.CreateNode)
			catalog.GET("/nodes", h.ListNodes)
			catalog.PUT("/nodes/:node_id", h.UpdateNode)
			catalog.DELETE("/nodes/:node_id", h.DeleteNode)
			catalog.POST("/nodes/:node_id/health-check", h.CheckNodeHealth)
		}
	}
}
