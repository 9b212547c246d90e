package dialer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"callcenter-platform/internal/agents"
	"callcenter-platform/internal/campaigns"
	"callcenter-platform/internal/cdr"
	"callcenter-platform/internal/contacts"
	"callcenter-platform/internal/dispositions"
	"callcenter-platform/internal/dnc"
	"callcenter-platform/internal/pbx"
	"callcenter-platform/internal/telephony"
	"callcenter-platform/pkg/ami"
	"callcenter-platform/pkg/utils"
)

type fixture struct {
	engine    *Engine
	campaigns *campaigns.Service
	repo      *campaigns.MemoryRepo
	agents    *agents.Service
	nodes     *pbx.Service
	records   *cdr.Service
	dnc       *dnc.Service
	disp      *dispositions.Service
	mock      *ami.MockClient
	rdb       *redis.Client
}

func fixedNow() time.Time { return time.Unix(1700000000, 0).UTC() }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	mock := ami.NewMockClient()
	agentSvc := agents.NewService(agents.NewMemoryRepo())
	nodeSvc := pbx.NewService(pbx.NewMemoryRepo())
	campaignRepo := campaigns.NewMemoryRepo()
	recordSvc := cdr.NewService(cdr.NewMemoryRepo())
	dncSvc := dnc.NewService(dnc.NewMemoryRepo(), rdb)
	dispositionSvc := dispositions.NewService(dispositions.NewMemoryRepo())
	campaignSvc := campaigns.NewService(campaignRepo, dncSvc, contacts.NewMemoryRepo())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gw := telephony.NewGateway(nodeSvc, agentSvc, campaignRepo, recordSvc, ami.MockDial(mock), 30*time.Second, logger)
	e := NewEngine(campaignSvc, agentSvc, dncSvc, dispositionSvc, recordSvc, gw, rdb, logger)
	e.clock = fixedNow
	return &fixture{
		engine:    e,
		campaigns: campaignSvc,
		repo:      campaignRepo,
		agents:    agentSvc,
		nodes:     nodeSvc,
		records:   recordSvc,
		dnc:       dncSvc,
		disp:      dispositionSvc,
		mock:      mock,
		rdb:       rdb,
	}
}

func (f *fixture) seedNode(t *testing.T) {
	t.Helper()
	_, err := f.nodes.CreateNode(context.Background(), "acc-1", pbx.NodeInput{
		Name: "pbx-1", Host: "10.0.0.2", AMIUser: "admin", AMIPassword: "s3cret",
	})
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
}

func (f *fixture) seedAgent(t *testing.T, extension string, status agents.Status) agents.Agent {
	t.Helper()
	a, err := f.agents.Create(context.Background(), "acc-1", agents.Input{
		Name: "Agent " + extension, Extension: extension, SIPPassword: "x",
	})
	if err != nil {
		t.Fatalf("Create agent: %v", err)
	}
	if _, err := f.agents.SetStatus(context.Background(), "acc-1", a.ID, status, ""); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	return a
}

func (f *fixture) seedCampaign(t *testing.T, mut func(*campaigns.Campaign)) campaigns.Campaign {
	t.Helper()
	c := campaigns.Campaign{
		ID: "camp-1", AccountID: "acc-1", Name: "camp",
		DialMode: campaigns.DialProgressive, Status: campaigns.StatusRunning,
		Timezone: "UTC", MaxConcurrentCalls: 5, MaxRetries: 3,
		RetryDelayMinutes: 60, RingTimeout: 30, PredictiveRatio: 1.2,
		CreatedAt: fixedNow(), UpdatedAt: fixedNow(),
	}
	if mut != nil {
		mut(&c)
	}
	if err := f.repo.Create(context.Background(), c); err != nil {
		t.Fatalf("Create campaign: %v", err)
	}
	return c
}

func (f *fixture) seedLeads(t *testing.T, campaignID string, phones ...string) []campaigns.Lead {
	t.Helper()
	out := make([]campaigns.Lead, 0, len(phones))
	for i, phone := range phones {
		l := campaigns.Lead{
			ID:         fmt.Sprintf("lead-%d", i+1),
			CampaignID: campaignID,
			ContactID:  fmt.Sprintf("ct-%d", i+1),
			Phone:      phone,
			Status:     campaigns.LeadPending,
			CreatedAt:  fixedNow().Add(time.Duration(i) * time.Second),
			UpdatedAt:  fixedNow(),
		}
		if err := f.repo.AddLead(context.Background(), l); err != nil {
			t.Fatalf("AddLead: %v", err)
		}
		out = append(out, l)
	}
	return out
}

func (f *fixture) assign(t *testing.T, campaignID string, agentIDs ...string) {
	t.Helper()
	for i, id := range agentIDs {
		a := campaigns.Assignment{
			ID: fmt.Sprintf("as-%d", i+1), CampaignID: campaignID, AgentID: id,
			Priority: i + 1, CreatedAt: fixedNow(),
		}
		if err := f.repo.AssignAgent(context.Background(), a); err != nil {
			t.Fatalf("AssignAgent: %v", err)
		}
	}
}

func (f *fixture) countByStatus(t *testing.T, campaignID string) campaigns.LeadCounts {
	t.Helper()
	counts, err := f.repo.CountLeads(context.Background(), campaignID)
	if err != nil {
		t.Fatalf("CountLeads: %v", err)
	}
	return counts
}

func TestManualCallSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedNode(t)
	agent := f.seedAgent(t, "1001", agents.StatusAvailable)
	c := f.seedCampaign(t, func(c *campaigns.Campaign) {
		c.DialMode = campaigns.DialManual
		c.Status = campaigns.StatusDraft
	})
	leads := f.seedLeads(t, c.ID, "15551234")

	res, err := f.engine.ManualCall(ctx, "acc-1", ManualCallRequest{
		CampaignID: c.ID, AgentID: agent.ID, LeadID: leads[0].ID,
	})
	if err != nil {
		t.Fatalf("ManualCall: %v", err)
	}
	if !res.Success || res.CallRecordID == "" {
		t.Fatalf("result: %+v", res)
	}
	lead, _ := f.repo.GetLead(ctx, c.ID, leads[0].ID)
	if lead.Status != campaigns.LeadDialing || lead.Attempts != 1 {
		t.Fatalf("lead: %+v", lead)
	}
	if len(f.mock.Originates()) != 1 {
		t.Fatalf("mock saw %d originates", len(f.mock.Originates()))
	}
}

func TestManualCallAllowsWrapUpAgent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedNode(t)
	agent := f.seedAgent(t, "1001", agents.StatusWrapUp)
	c := f.seedCampaign(t, nil)
	leads := f.seedLeads(t, c.ID, "15551234")

	res, err := f.engine.ManualCall(ctx, "acc-1", ManualCallRequest{
		CampaignID: c.ID, AgentID: agent.ID, LeadID: leads[0].ID,
	})
	if err != nil {
		t.Fatalf("ManualCall: %v", err)
	}
	if !res.Success {
		t.Fatalf("wrap-up agent should be allowed to dial manually: %+v", res)
	}
}

func TestManualCallBlockedNumber(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedNode(t)
	agent := f.seedAgent(t, "1001", agents.StatusAvailable)
	c := f.seedCampaign(t, nil)
	leads := f.seedLeads(t, c.ID, "15551234")
	if _, err := f.dnc.Add(ctx, "acc-1", "15551234", "customer request"); err != nil {
		t.Fatalf("dnc Add: %v", err)
	}

	res, err := f.engine.ManualCall(ctx, "acc-1", ManualCallRequest{
		CampaignID: c.ID, AgentID: agent.ID, LeadID: leads[0].ID,
	})
	if err != nil {
		t.Fatalf("ManualCall: %v", err)
	}
	if res.Success || res.Message != "Number is on DNC list" {
		t.Fatalf("result: %+v", res)
	}
	lead, _ := f.repo.GetLead(ctx, c.ID, leads[0].ID)
	if lead.Status != campaigns.LeadDnc {
		t.Fatalf("lead should be marked dnc: %+v", lead)
	}
	// no ledger record and no wire traffic for a blocked number
	_, total, err := f.records.List(ctx, "acc-1", cdr.ListFilter{})
	if err != nil {
		t.Fatalf("List records: %v", err)
	}
	if total != 0 || len(f.mock.Originates()) != 0 {
		t.Fatalf("blocked number reached the wire: %d records, %d originates", total, len(f.mock.Originates()))
	}
}

func TestProgressiveTickPairsAgentsOneToOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedNode(t)
	a1 := f.seedAgent(t, "1001", agents.StatusAvailable)
	a2 := f.seedAgent(t, "1002", agents.StatusAvailable)
	busy := f.seedAgent(t, "1003", agents.StatusOnCall)
	c := f.seedCampaign(t, nil)
	f.seedLeads(t, c.ID, "1111", "2222", "3333", "4444", "5555")
	f.assign(t, c.ID, a1.ID, a2.ID, busy.ID)

	if err := f.engine.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if got := len(f.mock.Originates()); got != 2 {
		t.Fatalf("originates = %d, want one per available agent", got)
	}
	counts := f.countByStatus(t, c.ID)
	if counts[campaigns.LeadDialing] != 2 || counts[campaigns.LeadPending] != 3 {
		t.Fatalf("counts: %+v", counts)
	}
	for _, a := range []agents.Agent{a1, a2} {
		got, _ := f.agents.Get(ctx, "acc-1", a.ID)
		if got.Status != agents.StatusRinging {
			t.Fatalf("agent %s: %+v", a.Extension, got)
		}
	}
}

func TestProgressiveRespectsConcurrencyRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedNode(t)
	a1 := f.seedAgent(t, "1001", agents.StatusAvailable)
	a2 := f.seedAgent(t, "1002", agents.StatusAvailable)
	c := f.seedCampaign(t, func(c *campaigns.Campaign) { c.MaxConcurrentCalls = 1 })
	f.seedLeads(t, c.ID, "1111", "2222")
	f.assign(t, c.ID, a1.ID, a2.ID)

	if err := f.engine.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := len(f.mock.Originates()); got != 1 {
		t.Fatalf("originates = %d, want the concurrency room", got)
	}
}

func TestTickSkipsCampaignOutOfSchedule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedNode(t)
	a1 := f.seedAgent(t, "1001", agents.StatusAvailable)
	// fixedNow is 22:13 UTC; the window closed at 10:00
	c := f.seedCampaign(t, func(c *campaigns.Campaign) {
		c.StartTime = "09:00"
		c.EndTime = "10:00"
	})
	f.seedLeads(t, c.ID, "1111")
	f.assign(t, c.ID, a1.ID)

	if err := f.engine.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := len(f.mock.Originates()); got != 0 {
		t.Fatalf("originates = %d, want none outside the calling window", got)
	}
}

func TestPredictiveOverdialCappedByReservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedNode(t)
	a1 := f.seedAgent(t, "1001", agents.StatusAvailable)
	a2 := f.seedAgent(t, "1002", agents.StatusAvailable)
	c := f.seedCampaign(t, func(c *campaigns.Campaign) {
		c.DialMode = campaigns.DialPredictive
		c.PredictiveRatio = 2.0
		c.MaxConcurrentCalls = 10
	})
	f.seedLeads(t, c.ID, "1111", "2222", "3333", "4444", "5555", "6666")
	f.assign(t, c.ID, a1.ID, a2.ID)

	if err := f.engine.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// ratio 2.0 over 2 agents targets 4 dials, but the third and
	// fourth hit already-ringing agents and are refused before the
	// lead is claimed
	if got := len(f.mock.Originates()); got != 2 {
		t.Fatalf("originates = %d", got)
	}
	counts := f.countByStatus(t, c.ID)
	if counts[campaigns.LeadDialing] != 2 || counts[campaigns.LeadPending] != 4 {
		t.Fatalf("counts: %+v", counts)
	}
}

func TestDialBatchSkipsBlockedLeadWithoutBurningAgent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedNode(t)
	a1 := f.seedAgent(t, "1001", agents.StatusAvailable)
	c := f.seedCampaign(t, nil)
	leads := f.seedLeads(t, c.ID, "1111", "2222")
	f.assign(t, c.ID, a1.ID)
	if _, err := f.dnc.Add(ctx, "acc-1", "1111", "opt-out"); err != nil {
		t.Fatalf("dnc Add: %v", err)
	}

	if err := f.engine.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	first, _ := f.repo.GetLead(ctx, c.ID, leads[0].ID)
	second, _ := f.repo.GetLead(ctx, c.ID, leads[1].ID)
	if first.Status != campaigns.LeadDnc {
		t.Fatalf("blocked lead: %+v", first)
	}
	if second.Status != campaigns.LeadDialing {
		t.Fatalf("agent slot should fall through to the next lead: %+v", second)
	}
	if got := len(f.mock.Originates()); got != 1 {
		t.Fatalf("originates = %d", got)
	}
}

func TestDistributedCapBlocksTick(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedNode(t)
	a1 := f.seedAgent(t, "1001", agents.StatusAvailable)
	c := f.seedCampaign(t, func(c *campaigns.Campaign) { c.MaxConcurrentCalls = 2 })
	f.seedLeads(t, c.ID, "1111", "2222")
	f.assign(t, c.ID, a1.ID)

	// another dialer instance holds both slots
	for i := 0; i < 2; i++ {
		ok, err := utils.AcquireConcurrencyCap(ctx, f.rdb, "dialer:cap:"+c.ID, 2, time.Minute)
		if err != nil || !ok {
			t.Fatalf("acquire slot %d: ok=%v err=%v", i, ok, err)
		}
	}

	if err := f.engine.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := len(f.mock.Originates()); got != 0 {
		t.Fatalf("originates = %d, want none while the cap is held", got)
	}
	counts := f.countByStatus(t, c.ID)
	if counts[campaigns.LeadPending] != 2 {
		t.Fatalf("counts: %+v", counts)
	}
}

func TestProcessDispositionCallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := f.seedAgent(t, "1001", agents.StatusWrapUp)
	c := f.seedCampaign(t, nil)
	leads := f.seedLeads(t, c.ID, "1111")
	lead := leads[0]
	lead.Status = campaigns.LeadContacted
	lead.AssignedAgentID = agent.ID
	if err := f.repo.UpdateLead(ctx, lead); err != nil {
		t.Fatalf("UpdateLead: %v", err)
	}
	d, err := f.disp.Create(ctx, "acc-1", dispositions.Input{
		Code: "callback", Name: "Callback requested", RequiresCallback: true,
	})
	if err != nil {
		t.Fatalf("Create disposition: %v", err)
	}
	rec, err := f.records.Open(ctx, cdr.OpenRequest{
		AccountID: "acc-1", CampaignID: c.ID, CampaignLeadID: lead.ID,
		AgentID: agent.ID, Destination: "1111",
	})
	if err != nil {
		t.Fatalf("Open record: %v", err)
	}
	if _, err := f.records.Close(ctx, "acc-1", rec.ID, cdr.ResultAnswered, 16, "Normal Clearing"); err != nil {
		t.Fatalf("Close record: %v", err)
	}

	// the code is resolved case-insensitively; callback time is required
	if _, err := f.engine.ProcessDisposition(ctx, "acc-1", c.ID, lead.ID, rec.ID, "CALLBACK", "call after lunch", nil); err != ErrCallbackRequired {
		t.Fatalf("expected ErrCallbackRequired, got %v", err)
	}

	at := fixedNow().Add(3 * time.Hour)
	got, err := f.engine.ProcessDisposition(ctx, "acc-1", c.ID, lead.ID, rec.ID, "callback", "call after lunch", &at)
	if err != nil {
		t.Fatalf("ProcessDisposition: %v", err)
	}
	if got.Status != campaigns.LeadScheduled || got.CallbackAt == nil || !got.CallbackAt.Equal(at) {
		t.Fatalf("lead: %+v", got)
	}
	if got.DispositionID != d.ID || got.DispositionNote != "call after lunch" {
		t.Fatalf("lead disposition: %+v", got)
	}

	stamped, _ := f.records.Get(ctx, "acc-1", rec.ID)
	if stamped.DispositionID != d.ID {
		t.Fatalf("record disposition: %+v", stamped)
	}
	released, _ := f.agents.Get(ctx, "acc-1", agent.ID)
	if released.Status != agents.StatusAvailable {
		t.Fatalf("wrap-up agent should be released: %+v", released)
	}
}

func TestProcessDispositionResolvesRecordThroughAgent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := f.seedAgent(t, "1001", agents.StatusAvailable)
	c := f.seedCampaign(t, nil)
	leads := f.seedLeads(t, c.ID, "1111")
	lead := leads[0]
	lead.Status = campaigns.LeadContacted
	lead.AssignedAgentID = agent.ID
	if err := f.repo.UpdateLead(ctx, lead); err != nil {
		t.Fatalf("UpdateLead: %v", err)
	}
	d, err := f.disp.Create(ctx, "acc-1", dispositions.Input{Code: "SALE", Name: "Sale closed"})
	if err != nil {
		t.Fatalf("Create disposition: %v", err)
	}
	rec, err := f.records.Open(ctx, cdr.OpenRequest{
		AccountID: "acc-1", CampaignID: c.ID, CampaignLeadID: lead.ID,
		AgentID: agent.ID, Destination: "1111",
	})
	if err != nil {
		t.Fatalf("Open record: %v", err)
	}
	if _, err := f.agents.Reserve(ctx, "acc-1", agent.ID, rec.ID, false); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := f.agents.MarkAnswered(ctx, "acc-1", agent.ID, rec.ID); err != nil {
		t.Fatalf("MarkAnswered: %v", err)
	}

	// no record id given; the assigned agent's current call names it
	if _, err := f.engine.ProcessDisposition(ctx, "acc-1", c.ID, lead.ID, "", "SALE", "closed on the call", nil); err != nil {
		t.Fatalf("ProcessDisposition: %v", err)
	}
	stamped, _ := f.records.Get(ctx, "acc-1", rec.ID)
	if stamped.DispositionID != d.ID || stamped.DispositionNote != "closed on the call" {
		t.Fatalf("record disposition: %+v", stamped)
	}
}

func TestProcessDispositionFinalClosesLead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.seedCampaign(t, nil)
	leads := f.seedLeads(t, c.ID, "1111", "2222")
	if _, err := f.disp.Create(ctx, "acc-1", dispositions.Input{Code: "SALE", Name: "Sale closed"}); err != nil {
		t.Fatalf("Create disposition: %v", err)
	}

	got, err := f.engine.ProcessDisposition(ctx, "acc-1", c.ID, leads[0].ID, "", "SALE", "", nil)
	if err != nil {
		t.Fatalf("ProcessDisposition: %v", err)
	}
	if got.Status != campaigns.LeadCompleted {
		t.Fatalf("lead: %+v", got)
	}

	// the cached campaign counters follow the disposition
	updated, _ := f.campaigns.Get(ctx, "acc-1", c.ID)
	if updated.LeadsContacted != 1 || updated.LeadsPending != 1 {
		t.Fatalf("campaign counters: %+v", updated)
	}
}

func TestProcessDispositionNonFinalKeepsLeadContacted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.seedCampaign(t, nil)
	leads := f.seedLeads(t, c.ID, "1111")
	notFinal := false
	if _, err := f.disp.Create(ctx, "acc-1", dispositions.Input{
		Code: "INTERESTED", Name: "Interested, call again", IsFinal: &notFinal,
	}); err != nil {
		t.Fatalf("Create disposition: %v", err)
	}

	got, err := f.engine.ProcessDisposition(ctx, "acc-1", c.ID, leads[0].ID, "", "INTERESTED", "wants a quote", nil)
	if err != nil {
		t.Fatalf("ProcessDisposition: %v", err)
	}
	if got.Status != campaigns.LeadContacted || got.DispositionNote != "wants a quote" {
		t.Fatalf("lead: %+v", got)
	}
}
