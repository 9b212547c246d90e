package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"callcenter-platform/internal/agents"
	"callcenter-platform/internal/auth"
	"callcenter-platform/internal/campaigns"
	"callcenter-platform/internal/cdr"
	"callcenter-platform/internal/config"
	"callcenter-platform/internal/contacts"
	"callcenter-platform/internal/dialer"
	"callcenter-platform/internal/dispositions"
	"callcenter-platform/internal/dnc"
	"callcenter-platform/internal/pbx"
	"callcenter-platform/internal/rbac"
	"callcenter-platform/internal/telephony"
	"callcenter-platform/pkg/ami"
)

type apiFixture struct {
	router   *gin.Engine
	manager  *auth.Manager
	contacts *contacts.MemoryRepo
	repo     *campaigns.MemoryRepo
	agents   *agents.Service
	nodes    *pbx.Service
	mock     *ami.MockClient
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	manager, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	mock := ami.NewMockClient()
	agentSvc := agents.NewService(agents.NewMemoryRepo())
	nodeSvc := pbx.NewService(pbx.NewMemoryRepo())
	campaignRepo := campaigns.NewMemoryRepo()
	recordSvc := cdr.NewService(cdr.NewMemoryRepo())
	dncSvc := dnc.NewService(dnc.NewMemoryRepo(), rdb)
	dispositionSvc := dispositions.NewService(dispositions.NewMemoryRepo())
	contactRepo := contacts.NewMemoryRepo()
	campaignSvc := campaigns.NewService(campaignRepo, dncSvc, contactRepo)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gw := telephony.NewGateway(nodeSvc, agentSvc, campaignRepo, recordSvc, ami.MockDial(mock), 30*time.Second, logger)
	engine := dialer.NewEngine(campaignSvc, agentSvc, dncSvc, dispositionSvc, recordSvc, gw, rdb, logger)

	h := Handlers{
		Auth:         manager,
		Agents:       agentSvc,
		Campaigns:    campaignSvc,
		Stats:        campaigns.NewStatsService(campaignRepo, agentSvc, recordSvc),
		Records:      recordSvc,
		Dispositions: dispositionSvc,
		Dnc:          dncSvc,
		Pbx:          nodeSvc,
		Gateway:      gw,
		Dialer:       engine,
	}

	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.Use(auth.RequireAccessToken(manager))
	v1.Use(rbac.RequireAccount())
	{
		cg := v1.Group("/campaigns")
		cg.Use(rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleSupervisor))
		{
			cg.POST("", h.CreateCampaign)
			cg.GET("/:campaign_id", h.GetCampaign)
			cg.POST("/:campaign_id/start", h.StartCampaign)
			cg.POST("/:campaign_id/agents", h.AssignCampaignAgent)
			cg.POST("/:campaign_id/leads", h.EnrollLead)
			cg.GET("/:campaign_id/stats", h.CampaignStats)
		}
		v1.POST("/campaigns/:campaign_id/manual-call",
			rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleSupervisor, rbac.RoleAgent), h.ManualCall)
		dg := v1.Group("/dnc")
		dg.Use(rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleSupervisor))
		{
			dg.POST("", h.AddDncEntry)
			dg.GET("/check/:phone", h.CheckDncNumber)
			dg.DELETE("/:phone", h.RemoveDncEntry)
		}
	}

	return &apiFixture{
		router:   r,
		manager:  manager,
		contacts: contactRepo,
		repo:     campaignRepo,
		agents:   agentSvc,
		nodes:    nodeSvc,
		mock:     mock,
	}
}

func (f *apiFixture) token(t *testing.T, role string) string {
	t.Helper()
	pair, err := f.manager.IssuePair(time.Now(), "user-1", "acc-1", role)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	return pair.AccessToken
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRequiresBearerToken(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodPost, "/api/v1/campaigns", "", map[string]any{"name": "x"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAgentRoleCannotManageCampaigns(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodPost, "/api/v1/campaigns", f.token(t, rbac.RoleAgent), map[string]any{"name": "x"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestCampaignLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	tok := f.token(t, rbac.RoleAdmin)

	w := f.do(t, http.MethodPost, "/api/v1/campaigns", tok, map[string]any{
		"name": "q3 outreach", "dial_mode": "manual",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var created campaigns.Campaign
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	// starting with no leads is a bad request, not a conflict
	w = f.do(t, http.MethodPost, "/api/v1/campaigns/"+created.ID+"/start", tok, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("start-empty status = %d: %s", w.Code, w.Body.String())
	}

	f.contacts.Put(contacts.Contact{
		ID: "ct-1", AccountID: "acc-1",
		Fields: map[string]string{"phone": "15551234"},
	})
	w = f.do(t, http.MethodPost, "/api/v1/campaigns/"+created.ID+"/leads", tok, map[string]any{
		"contact_id": "ct-1", "phone": "15551234",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("enroll status = %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/api/v1/campaigns/"+created.ID+"/start", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/api/v1/campaigns/"+created.ID+"/stats", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d: %s", w.Code, w.Body.String())
	}
	var stats campaigns.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.TotalLeads != 1 || stats.Status != campaigns.StatusRunning {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestGetUnknownCampaignIs404(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodGet, "/api/v1/campaigns/nope", f.token(t, rbac.RoleAdmin), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestManualCallOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	ctxToken := f.token(t, rbac.RoleAgent)
	admin := f.token(t, rbac.RoleAdmin)

	if _, err := f.nodes.CreateNode(context.Background(), "acc-1", pbx.NodeInput{
		Name: "pbx-1", Host: "10.0.0.2", AMIUser: "admin", AMIPassword: "x",
	}); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	w := f.do(t, http.MethodPost, "/api/v1/campaigns", admin, map[string]any{
		"name": "manual", "dial_mode": "manual",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	var created campaigns.Campaign
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	f.contacts.Put(contacts.Contact{ID: "ct-1", AccountID: "acc-1", Fields: map[string]string{"phone": "15551234"}})
	w = f.do(t, http.MethodPost, "/api/v1/campaigns/"+created.ID+"/leads", admin, map[string]any{
		"contact_id": "ct-1", "phone": "15551234",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("enroll status = %d: %s", w.Code, w.Body.String())
	}
	var lead campaigns.Lead
	if err := json.Unmarshal(w.Body.Bytes(), &lead); err != nil {
		t.Fatalf("unmarshal lead: %v", err)
	}

	ag, err := f.agents.Create(context.Background(), "acc-1", agents.Input{
		Name: "Ana", Extension: "1001", SIPPassword: "x",
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	if _, err := f.agents.SetStatus(context.Background(), "acc-1", ag.ID, agents.StatusAvailable, ""); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	w = f.do(t, http.MethodPost, "/api/v1/campaigns/"+created.ID+"/manual-call", ctxToken, map[string]any{
		"agent_id": ag.ID, "lead_id": lead.ID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("manual-call status = %d: %s", w.Code, w.Body.String())
	}
	var res telephony.OriginateResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !res.Success || !res.Mock {
		t.Fatalf("result: %+v", res)
	}
	if len(f.mock.Originates()) != 1 {
		t.Fatalf("mock saw %d originates", len(f.mock.Originates()))
	}
}

func TestDncRoundTripOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	tok := f.token(t, rbac.RoleSupervisor)

	w := f.do(t, http.MethodPost, "/api/v1/dnc", tok, map[string]any{"phone": "15550000", "reason": "opt-out"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d: %s", w.Code, w.Body.String())
	}
	// same number again conflicts
	w = f.do(t, http.MethodPost, "/api/v1/dnc", tok, map[string]any{"phone": "15550000"})
	if w.Code != http.StatusConflict {
		t.Fatalf("dup status = %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/v1/dnc/check/15550000", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("check status = %d", w.Code)
	}
	var check struct {
		Blocked bool `json:"blocked"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &check); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !check.Blocked {
		t.Fatalf("number should be blocked")
	}

	w = f.do(t, http.MethodDelete, "/api/v1/dnc/15550000", tok, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
}
