// Package dialer drives outbound campaigns. Each tick walks the
// running campaigns, matches available agents to due leads according
// to the campaign's dial mode, and hands the pairs to the telephony
// gateway. It also owns manual dials and the disposition step that
// closes out a finished conversation.
package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"callcenter-platform/internal/agents"
	"callcenter-platform/internal/campaigns"
	"callcenter-platform/internal/cdr"
	"callcenter-platform/internal/dispositions"
	"callcenter-platform/internal/dnc"
	"callcenter-platform/internal/metrics"
	"callcenter-platform/internal/telephony"
	"callcenter-platform/pkg/utils"
)

var (
	ErrValidation       = errors.New("dialer: invalid request")
	ErrCallbackRequired = errors.New("dialer: disposition requires a callback time")
)

// Engine runs the dialing strategies over the campaign repositories.
// It never talks AMI directly; every origination goes through the
// gateway so failures unwind uniformly.
type Engine struct {
	campaigns    *campaigns.Service
	agents       *agents.Service
	dnc          *dnc.Service
	dispositions *dispositions.Service
	records      *cdr.Service
	gateway      *telephony.Gateway

	// rdb guards the per-campaign in-flight budget across dialer
	// instances. Nil disables the distributed cap; the dialing lead
	// count remains the durable gate.
	rdb    *redis.Client
	logger *slog.Logger
	clock  func() time.Time
}

func NewEngine(
	campaignSvc *campaigns.Service,
	agentSvc *agents.Service,
	dncSvc *dnc.Service,
	dispositionSvc *dispositions.Service,
	records *cdr.Service,
	gateway *telephony.Gateway,
	rdb *redis.Client,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		campaigns:    campaignSvc,
		agents:       agentSvc,
		dnc:          dncSvc,
		dispositions: dispositionSvc,
		records:      records,
		gateway:      gateway,
		rdb:          rdb,
		logger:       logger,
		clock:        time.Now,
	}
}

// ManualCallRequest is an agent-initiated dial of one campaign lead.
type ManualCallRequest struct {
	CampaignID string
	AgentID    string
	LeadID     string
	CallerID   string
}

// ManualCall dials a single lead on behalf of an agent. The campaign
// does not need to be running and the schedule window is not checked;
// the agent decided to place this call. Wrap-up agents may dial.
func (e *Engine) ManualCall(ctx context.Context, accountID string, req ManualCallRequest) (telephony.OriginateResult, error) {
	if req.CampaignID == "" || req.AgentID == "" || req.LeadID == "" {
		return telephony.OriginateResult{}, fmt.Errorf("%w: campaign_id, agent_id and lead_id are required", ErrValidation)
	}
	campaign, err := e.campaigns.Get(ctx, accountID, req.CampaignID)
	if err != nil {
		return telephony.OriginateResult{}, err
	}
	lead, err := e.campaigns.Repo().GetLead(ctx, campaign.ID, req.LeadID)
	if err != nil {
		return telephony.OriginateResult{}, err
	}

	blocked, err := e.dnc.IsBlocked(ctx, accountID, lead.Phone)
	if err != nil {
		return telephony.OriginateResult{}, err
	}
	if blocked {
		e.markLeadDnc(ctx, accountID, campaign.ID, lead)
		return telephony.OriginateResult{Message: "Number is on DNC list"}, nil
	}

	return e.gateway.Originate(ctx, telephony.OriginateRequest{
		AccountID:   accountID,
		AgentID:     req.AgentID,
		CampaignID:  campaign.ID,
		LeadID:      lead.ID,
		CallerID:    req.CallerID,
		AllowWrapUp: true,
	})
}

// Tick runs one pass over every running campaign. Per-campaign errors
// are logged and do not stop the pass.
func (e *Engine) Tick(ctx context.Context) error {
	start := time.Now()
	running, err := e.campaigns.Repo().ListRunning(ctx)
	if err != nil {
		return err
	}
	active := 0
	for _, c := range running {
		if counts, err := e.campaigns.Repo().CountLeads(ctx, c.ID); err == nil {
			active += counts[campaigns.LeadDialing]
		}
	}
	defer func() {
		metrics.ObserveTick(time.Since(start).Seconds(), active, len(running))
	}()
	for _, c := range running {
		var err error
		switch c.DialMode {
		case campaigns.DialProgressive:
			err = e.runProgressive(ctx, c)
		case campaigns.DialPredictive:
			err = e.runPredictive(ctx, c)
		case campaigns.DialManual:
			// Agents dial manually; nothing for the tick to do.
		}
		if err != nil {
			e.logger.Error("dialer tick failed for campaign",
				"campaign_id", c.ID, "dial_mode", c.DialMode, "error", err)
		}
	}
	return nil
}

// runProgressive pairs each available agent with exactly one due lead.
func (e *Engine) runProgressive(ctx context.Context, c campaigns.Campaign) error {
	if !c.InSchedule(e.clock()) {
		return nil
	}
	avail, err := e.availableAgents(ctx, c)
	if err != nil || len(avail) == 0 {
		return err
	}
	counts, err := e.campaigns.Repo().CountLeads(ctx, c.ID)
	if err != nil {
		return err
	}
	room := c.MaxConcurrentCalls - counts[campaigns.LeadDialing]
	if room <= 0 {
		return nil
	}
	if room > len(avail) {
		room = len(avail)
	}
	return e.dialBatch(ctx, c, avail, room)
}

// runPredictive dials ahead of the agent pool by the campaign's ratio.
// Over-dialed calls beyond the pool are refused by agent reservation,
// so the ratio controls pacing rather than true agentless dials.
func (e *Engine) runPredictive(ctx context.Context, c campaigns.Campaign) error {
	if !c.InSchedule(e.clock()) {
		return nil
	}
	avail, err := e.availableAgents(ctx, c)
	if err != nil || len(avail) == 0 {
		return err
	}
	counts, err := e.campaigns.Repo().CountLeads(ctx, c.ID)
	if err != nil {
		return err
	}
	active := counts[campaigns.LeadDialing]
	target := int(float64(len(avail)) * c.PredictiveRatio)
	maxNew := target - active
	if room := c.MaxConcurrentCalls - active; maxNew > room {
		maxNew = room
	}
	if maxNew <= 0 {
		return nil
	}
	return e.dialBatch(ctx, c, avail, maxNew)
}

// dialBatch originates up to n calls, rotating through the available
// agents. DNC hits consume the lead but not the agent slot.
func (e *Engine) dialBatch(ctx context.Context, c campaigns.Campaign, avail []agents.Agent, n int) error {
	now := e.clock().UTC()
	placed := 0
	for placed < n {
		lead, err := e.campaigns.Repo().NextLead(ctx, c.ID, c.MaxRetries, now)
		if err != nil {
			if errors.Is(err, campaigns.ErrNotFound) {
				return nil
			}
			return err
		}

		blocked, err := e.dnc.IsBlocked(ctx, c.AccountID, lead.Phone)
		if err != nil {
			return err
		}
		if blocked {
			e.markLeadDnc(ctx, c.AccountID, c.ID, lead)
			continue
		}

		agent := avail[placed%len(avail)]
		ok, err := e.acquireSlot(ctx, c)
		if err != nil {
			return err
		}
		if !ok {
			e.logger.Warn("campaign concurrency cap reached", "campaign_id", c.ID)
			return nil
		}
		res, err := e.gateway.Originate(ctx, telephony.OriginateRequest{
			AccountID:  c.AccountID,
			AgentID:    agent.ID,
			CampaignID: c.ID,
			LeadID:     lead.ID,
		})
		if err != nil {
			e.releaseSlot(ctx, c)
			return err
		}
		if !res.Success {
			// The gateway already unwound the lead and agent.
			// Successful slots expire with the cap TTL.
			e.releaseSlot(ctx, c)
			e.logger.Info("origination refused",
				"campaign_id", c.ID, "lead_id", lead.ID, "agent_id", agent.ID, "message", res.Message)
		}
		placed++
	}
	return nil
}

// ProcessDisposition records the outcome of a finished call on the
// lead and on the call record, named explicitly or resolved through
// the assigned agent's current call. Callback dispositions reschedule
// the lead, final ones close it out, anything else marks it contacted.
func (e *Engine) ProcessDisposition(ctx context.Context, accountID, campaignID, leadID, callRecordID, code, note string, callbackAt *time.Time) (campaigns.Lead, error) {
	d, err := e.dispositions.Resolve(ctx, accountID, code)
	if err != nil {
		return campaigns.Lead{}, err
	}
	if _, err := e.campaigns.Get(ctx, accountID, campaignID); err != nil {
		return campaigns.Lead{}, err
	}
	lead, err := e.campaigns.Repo().GetLead(ctx, campaignID, leadID)
	if err != nil {
		return campaigns.Lead{}, err
	}

	now := e.clock().UTC()
	switch {
	case d.RequiresCallback:
		if callbackAt == nil {
			return campaigns.Lead{}, ErrCallbackRequired
		}
		lead.Status = campaigns.LeadScheduled
		at := callbackAt.UTC()
		lead.CallbackAt = &at
	case d.IsFinal:
		lead.Status = campaigns.LeadCompleted
		lead.CallbackAt = nil
	default:
		lead.Status = campaigns.LeadContacted
		lead.CallbackAt = nil
	}
	lead.DispositionID = d.ID
	lead.DispositionNote = note
	lead.NextAttemptAt = nil
	lead.UpdatedAt = now
	if err := e.campaigns.Repo().UpdateLead(ctx, lead); err != nil {
		return campaigns.Lead{}, err
	}

	// Without an explicit record id, the lead's assigned agent points
	// at the call being wrapped up.
	if callRecordID == "" && lead.AssignedAgentID != "" {
		if agent, err := e.agents.Get(ctx, accountID, lead.AssignedAgentID); err == nil {
			callRecordID = agent.CurrentCallID
		}
	}
	if callRecordID != "" {
		if err := e.records.SetDisposition(ctx, accountID, callRecordID, d.ID, d.Code, note); err != nil {
			return campaigns.Lead{}, err
		}
	}

	// A wrap-up agent is done once the disposition lands.
	if lead.AssignedAgentID != "" {
		agent, err := e.agents.Get(ctx, accountID, lead.AssignedAgentID)
		if err == nil && agent.Status == agents.StatusWrapUp {
			if _, err := e.agents.SetStatus(ctx, accountID, agent.ID, agents.StatusAvailable, ""); err != nil {
				e.logger.Warn("failed to release wrap-up agent", "agent_id", agent.ID, "error", err)
			}
		}
	}

	if err := e.campaigns.RecomputeStats(ctx, accountID, campaignID); err != nil {
		e.logger.Warn("failed to recompute campaign stats", "campaign_id", campaignID, "error", err)
	}
	return lead, nil
}

// availableAgents resolves the campaign's assigned agents that can
// take a call right now, in assignment priority order.
func (e *Engine) availableAgents(ctx context.Context, c campaigns.Campaign) ([]agents.Agent, error) {
	assignments, err := e.campaigns.Repo().ListAssignments(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	var out []agents.Agent
	for _, a := range assignments {
		agent, err := e.agents.Get(ctx, c.AccountID, a.AgentID)
		if err != nil {
			if errors.Is(err, agents.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if agent.Active && agent.Status == agents.StatusAvailable {
			out = append(out, agent)
		}
	}
	return out, nil
}

func (e *Engine) markLeadDnc(ctx context.Context, accountID, campaignID string, lead campaigns.Lead) {
	metrics.IncDncBlocked()
	lead.Status = campaigns.LeadDnc
	lead.NextAttemptAt = nil
	lead.UpdatedAt = e.clock().UTC()
	if err := e.campaigns.Repo().UpdateLead(ctx, lead); err != nil {
		e.logger.Error("failed to mark lead dnc", "lead_id", lead.ID, "error", err)
		return
	}
	if err := e.campaigns.RecomputeStats(ctx, accountID, campaignID); err != nil {
		e.logger.Warn("failed to recompute campaign stats", "campaign_id", campaignID, "error", err)
	}
}

func (e *Engine) acquireSlot(ctx context.Context, c campaigns.Campaign) (bool, error) {
	if e.rdb == nil {
		return true, nil
	}
	ttl := time.Duration(c.RingTimeout+60) * time.Second
	return utils.AcquireConcurrencyCap(ctx, e.rdb, capKey(c.ID), c.MaxConcurrentCalls, ttl)
}

func (e *Engine) releaseSlot(ctx context.Context, c campaigns.Campaign) {
	if e.rdb == nil {
		return
	}
	if err := utils.ReleaseConcurrencyCap(ctx, e.rdb, capKey(c.ID)); err != nil {
		e.logger.Warn("failed to release concurrency slot", "campaign_id", c.ID, "error", err)
	}
}

func capKey(campaignID string) string {
	return "dialer:cap:" + campaignID
}
