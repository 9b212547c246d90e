// Package telephony is the origination gateway between the dialer and
// the PBX fleet. It resolves which node and trunk carry a call, opens
// the ledger record before the wire is touched, and unwinds agent and
// lead state when the PBX refuses the call.
package telephony

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"callcenter-platform/internal/agents"
	"callcenter-platform/internal/campaigns"
	"callcenter-platform/internal/cdr"
	"callcenter-platform/internal/metrics"
	"callcenter-platform/internal/pbx"
	"callcenter-platform/pkg/ami"
)

var (
	ErrNoActiveNode = errors.New("telephony: no active PBX node")
	ErrValidation   = errors.New("telephony: invalid request")
)

// OriginateRequest asks the gateway to place one outbound call and
// bridge it to an agent.
type OriginateRequest struct {
	AccountID  string
	AgentID    string
	CampaignID string
	// LeadID names the campaign lead being dialed. Empty for direct
	// dials outside a campaign.
	LeadID string
	// Destination overrides the lead's phone. Required when LeadID is
	// empty.
	Destination string
	// TrunkID overrides the campaign's trunk.
	TrunkID string
	// CallerID overrides every other caller id source.
	CallerID string
	// AllowWrapUp lets manual dials take an agent out of wrap-up.
	AllowWrapUp bool
}

// OriginateResult is the structured outcome. A refused call is not an
// error; Success is false and Message says why.
type OriginateResult struct {
	Success      bool   `json:"success"`
	UniqueID     string `json:"uniqueid,omitempty"`
	Message      string `json:"message"`
	CallRecordID string `json:"call_record_id,omitempty"`
	Mock         bool   `json:"mock,omitempty"`
}

// Gateway coordinates PBX nodes, trunks, agents, leads and the call
// ledger around AMI originations.
type Gateway struct {
	nodes     *pbx.Service
	agents    *agents.Service
	campaigns campaigns.Repository
	records   *cdr.Service
	dial      ami.DialFunc
	logger    *slog.Logger

	// defaultRingTimeout applies when no campaign sets one.
	defaultRingTimeout time.Duration
	clock              func() time.Time
}

func NewGateway(
	nodes *pbx.Service,
	agentSvc *agents.Service,
	campaignRepo campaigns.Repository,
	records *cdr.Service,
	dial ami.DialFunc,
	defaultRingTimeout time.Duration,
	logger *slog.Logger,
) *Gateway {
	if defaultRingTimeout <= 0 {
		defaultRingTimeout = 30 * time.Second
	}
	return &Gateway{
		nodes:              nodes,
		agents:             agentSvc,
		campaigns:          campaignRepo,
		records:            records,
		dial:               dial,
		logger:             logger,
		defaultRingTimeout: defaultRingTimeout,
		clock:              time.Now,
	}
}

// Originate places a call. The sequence is deliberate: the lead is
// claimed and the ledger record opened before the AMI action goes
// out, so every attempt leaves a trace and a concurrent tick cannot
// dial the same lead twice.
func (g *Gateway) Originate(ctx context.Context, req OriginateRequest) (OriginateResult, error) {
	agent, err := g.agents.Get(ctx, req.AccountID, req.AgentID)
	if err != nil {
		if errors.Is(err, agents.ErrNotFound) {
			return refused("Agent not found or inactive"), nil
		}
		return OriginateResult{}, err
	}
	if !agent.Active {
		return refused("Agent not found or inactive"), nil
	}
	allowed := agent.Status == agents.StatusAvailable ||
		(req.AllowWrapUp && agent.Status == agents.StatusWrapUp)
	if !allowed {
		return refused(fmt.Sprintf("Agent is not available (current: %s)", agent.Status)), nil
	}

	var campaign *campaigns.Campaign
	if req.CampaignID != "" {
		c, err := g.campaigns.Get(ctx, req.AccountID, req.CampaignID)
		if err != nil {
			if errors.Is(err, campaigns.ErrNotFound) {
				return refused("Campaign not found"), nil
			}
			return OriginateResult{}, err
		}
		campaign = &c
	}

	destination := req.Destination
	var lead *campaigns.Lead
	if req.LeadID != "" {
		if campaign == nil {
			return OriginateResult{}, fmt.Errorf("%w: lead dial requires a campaign", ErrValidation)
		}
		claimed, err := g.campaigns.ClaimLeadForDial(ctx, campaign.ID, req.LeadID, campaign.MaxRetries, g.clock().UTC())
		if err != nil {
			switch {
			case errors.Is(err, campaigns.ErrRetryExhausted):
				return refused("Max retries reached for this lead"), nil
			case errors.Is(err, campaigns.ErrLeadBusy):
				return refused("Lead is not dialable"), nil
			case errors.Is(err, campaigns.ErrNotFound):
				return refused("Campaign lead not found"), nil
			}
			return OriginateResult{}, err
		}
		lead = &claimed
		destination = claimed.Phone
	}
	if destination == "" {
		return OriginateResult{}, fmt.Errorf("%w: destination is required", ErrValidation)
	}

	node, err := g.resolveNode(ctx, req.AccountID, agent, campaign)
	if err != nil {
		if errors.Is(err, ErrNoActiveNode) {
			g.unwindLead(ctx, campaign, lead)
			return refused("No active PBX node found"), nil
		}
		g.unwindLead(ctx, campaign, lead)
		return OriginateResult{}, err
	}

	trunk, err := g.resolveTrunk(ctx, req.AccountID, req.TrunkID, campaign)
	if err != nil {
		g.unwindLead(ctx, campaign, lead)
		return OriginateResult{}, err
	}

	dialNumber := destination
	channel := "PJSIP/" + dialNumber + "@outbound"
	callerID := firstNonEmpty(req.CallerID, destination)
	trunkID := ""
	if trunk != nil {
		dialNumber = trunk.RewriteNumber(destination)
		channel = "PJSIP/" + dialNumber + "@" + trunk.Name
		campaignCallerID := ""
		if campaign != nil {
			campaignCallerID = campaign.CallerID
		}
		callerID = firstNonEmpty(req.CallerID, campaignCallerID, trunk.CallerID, destination)
		trunkID = trunk.ID
	} else if campaign != nil {
		callerID = firstNonEmpty(req.CallerID, campaign.CallerID, destination)
	}

	ringTimeout := g.defaultRingTimeout
	if campaign != nil && campaign.RingTimeout > 0 {
		ringTimeout = time.Duration(campaign.RingTimeout) * time.Second
	}

	open := cdr.OpenRequest{
		AccountID:   req.AccountID,
		AgentID:     agent.ID,
		TrunkID:     trunkID,
		CallerID:    callerID,
		Destination: destination,
		Extension:   agent.Extension,
	}
	if campaign != nil {
		open.CampaignID = campaign.ID
	}
	if lead != nil {
		open.CampaignLeadID = lead.ID
	}
	record, err := g.records.Open(ctx, open)
	if err != nil {
		g.unwindLead(ctx, campaign, lead)
		return OriginateResult{}, err
	}
	if err := g.records.AppendEvent(ctx, record.ID, "originate", map[string]any{
		"channel":      channel,
		"extension":    agent.Extension,
		"caller_id":    callerID,
		"ring_timeout": int(ringTimeout.Seconds()),
	}); err != nil {
		g.abortCall(ctx, req.AccountID, record.ID, campaign, lead, err.Error())
		return OriginateResult{}, err
	}

	if _, err := g.agents.Reserve(ctx, req.AccountID, agent.ID, record.ID, req.AllowWrapUp); err != nil {
		if errors.Is(err, agents.ErrNotAvailable) {
			g.failCall(ctx, req.AccountID, record.ID, campaign, lead, agent.ID, "Agent became unavailable")
			return OriginateResult{
				Success:      false,
				Message:      "Agent became unavailable",
				CallRecordID: record.ID,
			}, nil
		}
		g.abortCall(ctx, req.AccountID, record.ID, campaign, lead, err.Error())
		return OriginateResult{}, err
	}
	if lead != nil {
		lead.AssignedAgentID = agent.ID
		lead.UpdatedAt = g.clock().UTC()
		if err := g.campaigns.UpdateLead(ctx, *lead); err != nil {
			g.failCall(ctx, req.AccountID, record.ID, campaign, lead, agent.ID, err.Error())
			return OriginateResult{}, err
		}
	}

	resp, err := g.sendOriginate(ctx, node, ami.OriginateRequest{
		Channel:     "PJSIP/" + agent.Extension,
		Context:     "from-internal",
		Exten:       dialNumber,
		Priority:    1,
		Application: "Dial",
		Data:        fmt.Sprintf("%s,%d,tTkKhHgG", channel, int(ringTimeout.Seconds())),
		CallerID:    callerID,
		Timeout:     ringTimeout,
		Variables: map[string]string{
			"CDR_PROP(disable)": "1",
			"CALL_RECORD_ID":    record.ID,
			"CAMPAIGN_ID":       open.CampaignID,
			"AGENT_ID":          agent.ID,
		},
	})
	if err != nil {
		g.logger.Error("originate failed",
			"call_record_id", record.ID, "node", node.Name, "error", err)
		g.failCall(ctx, req.AccountID, record.ID, campaign, lead, agent.ID, err.Error())
		return OriginateResult{
			Success:      false,
			Message:      fmt.Sprintf("AMI connection error: %v", err),
			CallRecordID: record.ID,
		}, nil
	}
	if !resp.Success {
		msg := firstNonEmpty(resp.Message, "Unknown AMI error")
		g.logger.Error("originate rejected",
			"call_record_id", record.ID, "node", node.Name, "message", msg)
		g.failCall(ctx, req.AccountID, record.ID, campaign, lead, agent.ID, msg)
		return OriginateResult{
			Success:      false,
			Message:      msg,
			CallRecordID: record.ID,
		}, nil
	}

	if err := g.records.SetUniqueID(ctx, req.AccountID, record.ID, resp.UniqueID); err != nil {
		return OriginateResult{}, err
	}
	g.logger.Info("originate success",
		"call_record_id", record.ID, "agent", agent.Extension, "destination", destination, "mock", resp.Mock)
	metrics.IncCallOriginated(dialMode(campaign))
	return OriginateResult{
		Success:      true,
		UniqueID:     resp.UniqueID,
		Message:      "Call originated successfully",
		CallRecordID: record.ID,
		Mock:         resp.Mock,
	}, nil
}

// Hangup asks the PBX to drop an active call.
func (g *Gateway) Hangup(ctx context.Context, accountID, callRecordID string) error {
	record, err := g.records.Get(ctx, accountID, callRecordID)
	if err != nil {
		return err
	}
	if record.UniqueID == "" {
		return fmt.Errorf("%w: call has no PBX identifier", ErrValidation)
	}

	var agent agents.Agent
	if record.AgentID != "" {
		agent, _ = g.agents.Get(ctx, accountID, record.AgentID)
	}
	node, err := g.resolveNode(ctx, accountID, agent, nil)
	if err != nil {
		return err
	}

	client, err := g.dial(ctx, nodeConfig(node))
	if err != nil {
		return err
	}
	defer client.Close()
	resp, err := client.Hangup(ctx, record.UniqueID)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("telephony: hangup rejected: %s", resp.Message)
	}
	return g.records.AppendEvent(ctx, record.ID, "hangup_requested", nil)
}

// CheckNodeHealth probes a node over AMI and records the outcome.
func (g *Gateway) CheckNodeHealth(ctx context.Context, accountID, nodeID string) (pbx.HealthStatus, error) {
	node, err := g.nodes.GetNode(ctx, accountID, nodeID)
	if err != nil {
		return "", err
	}
	ok := false
	if client, err := g.dial(ctx, nodeConfig(node)); err == nil {
		if resp, err := client.CoreStatus(ctx); err == nil && resp.Success {
			ok = true
		}
		client.Close()
	}
	if err := g.nodes.RecordHealth(ctx, accountID, nodeID, ok); err != nil {
		return "", err
	}
	if ok {
		return pbx.HealthOK, nil
	}
	return pbx.HealthError, nil
}

func (g *Gateway) sendOriginate(ctx context.Context, node pbx.Node, req ami.OriginateRequest) (ami.Response, error) {
	// Bound the whole exchange by the ring timeout plus protocol slack.
	dialCtx, cancel := context.WithTimeout(ctx, req.Timeout+10*time.Second)
	defer cancel()

	client, err := g.dial(dialCtx, nodeConfig(node))
	if err != nil {
		return ami.Response{}, err
	}
	defer client.Close()
	return client.Originate(dialCtx, req)
}

// resolveNode prefers the agent's pinned node, then the campaign's,
// then any active node of the account.
func (g *Gateway) resolveNode(ctx context.Context, accountID string, agent agents.Agent, campaign *campaigns.Campaign) (pbx.Node, error) {
	if agent.PbxNodeID != "" {
		if n, err := g.nodes.GetNode(ctx, accountID, agent.PbxNodeID); err == nil {
			return n, nil
		}
	}
	if campaign != nil && campaign.PbxNodeID != "" {
		if n, err := g.nodes.GetNode(ctx, accountID, campaign.PbxNodeID); err == nil {
			return n, nil
		}
	}
	n, err := g.nodes.FirstActiveNode(ctx, accountID)
	if errors.Is(err, pbx.ErrNotFound) {
		return pbx.Node{}, ErrNoActiveNode
	}
	return n, err
}

func (g *Gateway) resolveTrunk(ctx context.Context, accountID, trunkID string, campaign *campaigns.Campaign) (*pbx.Trunk, error) {
	id := trunkID
	if id == "" && campaign != nil {
		id = campaign.TrunkID
	}
	if id == "" {
		return nil, nil
	}
	t, err := g.nodes.GetTrunk(ctx, accountID, id)
	if errors.Is(err, pbx.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// failCall unwinds everything a failed origination touched: the
// record is finalized as failed, the agent goes back to available and
// the lead is marked failed with its next retry scheduled.
func (g *Gateway) failCall(ctx context.Context, accountID, recordID string, campaign *campaigns.Campaign, lead *campaigns.Lead, agentID, msg string) {
	metrics.IncCallFailed(dialMode(campaign))
	if _, err := g.records.Close(ctx, accountID, recordID, cdr.ResultFailed, 0, msg); err != nil {
		g.logger.Error("closing failed call record", "call_record_id", recordID, "error", err)
	}
	if err := g.records.AppendEvent(ctx, recordID, "failed", map[string]any{"error": msg}); err != nil {
		g.logger.Error("appending failed event", "call_record_id", recordID, "error", err)
	}
	if err := g.agents.ReleaseFailed(ctx, accountID, agentID, recordID); err != nil {
		g.logger.Error("releasing agent after failure", "agent_id", agentID, "error", err)
	}
	if lead != nil && campaign != nil {
		lead.Status = campaigns.LeadFailed
		next := g.clock().UTC().Add(campaign.RetryDelay())
		lead.NextAttemptAt = &next
		lead.AssignedAgentID = ""
		lead.UpdatedAt = g.clock().UTC()
		if err := g.campaigns.UpdateLead(ctx, *lead); err != nil {
			g.logger.Error("marking lead failed", "lead_id", lead.ID, "error", err)
		}
	}
}

// abortCall is the unwind for infra errors after the record is open
// but before the agent holds the call. The agent was never reserved,
// so only the record and the claimed lead need compensation.
func (g *Gateway) abortCall(ctx context.Context, accountID, recordID string, campaign *campaigns.Campaign, lead *campaigns.Lead, msg string) {
	metrics.IncCallFailed(dialMode(campaign))
	if _, err := g.records.Close(ctx, accountID, recordID, cdr.ResultFailed, 0, msg); err != nil {
		g.logger.Error("closing aborted call record", "call_record_id", recordID, "error", err)
	}
	g.unwindLead(ctx, campaign, lead)
}

func (g *Gateway) unwindLead(ctx context.Context, campaign *campaigns.Campaign, lead *campaigns.Lead) {
	if lead == nil || campaign == nil {
		return
	}
	lead.Status = campaigns.LeadFailed
	next := g.clock().UTC().Add(campaign.RetryDelay())
	lead.NextAttemptAt = &next
	lead.UpdatedAt = g.clock().UTC()
	if err := g.campaigns.UpdateLead(ctx, *lead); err != nil {
		g.logger.Error("unwinding lead claim", "lead_id", lead.ID, "error", err)
	}
}

func nodeConfig(n pbx.Node) ami.NodeConfig {
	return ami.NodeConfig{
		Host:     n.Host,
		Port:     n.AMIPort,
		Username: n.AMIUser,
		Secret:   n.AMIPassword,
	}
}

func dialMode(campaign *campaigns.Campaign) string {
	if campaign == nil {
		return "direct"
	}
	return string(campaign.DialMode)
}

func refused(msg string) OriginateResult {
	metrics.IncCallRefused(msg)
	return OriginateResult{Success: false, Message: msg}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
