package campaigns

import "context"

// AgentCounter reports how many of the given agents are available.
type AgentCounter interface {
	CountAvailable(ctx context.Context, accountID string, ids []string) (int, error)
}

// HandleTimes exposes billable-seconds aggregates from the call ledger.
type HandleTimes interface {
	AvgBillableSeconds(ctx context.Context, campaignID string) (float64, bool, error)
}

// Stats is the live snapshot served to supervisors. Ratio fields are
// nil until the campaign has the data to compute them.
type Stats struct {
	CampaignID      string `json:"campaign_id"`
	Status          Status `json:"status"`
	TotalLeads      int    `json:"total_leads"`
	LeadsPending    int    `json:"leads_pending"`
	LeadsContacted  int    `json:"leads_contacted"`
	LeadsNoAnswer   int    `json:"leads_no_answer"`
	LeadsBusy       int    `json:"leads_busy"`
	LeadsFailed     int    `json:"leads_failed"`
	LeadsCompleted  int    `json:"leads_completed"`
	ActiveCalls     int    `json:"active_calls"`
	AvailableAgents int    `json:"available_agents"`
	// ASR is answered over attempted.
	ASR *float64 `json:"asr"`
	// AHT is the mean billable seconds per answered call.
	AHT *float64 `json:"aht"`
	// ContactRate is contacted over total enrolled.
	ContactRate *float64 `json:"contact_rate"`
}

// StatsService computes live campaign statistics on demand.
type StatsService struct {
	repo    Repository
	agents  AgentCounter
	handles HandleTimes
}

func NewStatsService(repo Repository, agents AgentCounter, handles HandleTimes) *StatsService {
	return &StatsService{repo: repo, agents: agents, handles: handles}
}

func (s *StatsService) Snapshot(ctx context.Context, accountID, campaignID string) (Stats, error) {
	c, err := s.repo.Get(ctx, accountID, campaignID)
	if err != nil {
		return Stats{}, err
	}
	counts, err := s.repo.CountLeads(ctx, campaignID)
	if err != nil {
		return Stats{}, err
	}

	out := Stats{
		CampaignID:     c.ID,
		Status:         c.Status,
		TotalLeads:     counts.Total(),
		LeadsPending:   counts[LeadPending],
		LeadsContacted: counts[LeadContacted],
		LeadsNoAnswer:  counts[LeadNoAnswer],
		LeadsBusy:      counts[LeadBusy],
		LeadsFailed:    counts[LeadFailed],
		LeadsCompleted: counts[LeadCompleted],
		ActiveCalls:    counts[LeadDialing],
	}

	assignments, err := s.repo.ListAssignments(ctx, campaignID)
	if err != nil {
		return Stats{}, err
	}
	if len(assignments) > 0 {
		ids := make([]string, len(assignments))
		for i, a := range assignments {
			ids[i] = a.AgentID
		}
		n, err := s.agents.CountAvailable(ctx, accountID, ids)
		if err != nil {
			return Stats{}, err
		}
		out.AvailableAgents = n
	}

	answered := counts[LeadContacted] + counts[LeadCompleted]
	attempted := answered + counts[LeadNoAnswer] + counts[LeadBusy] + counts[LeadFailed]
	if attempted > 0 {
		asr := float64(answered) / float64(attempted)
		out.ASR = &asr
	}
	if out.TotalLeads > 0 {
		rate := float64(answered) / float64(out.TotalLeads)
		out.ContactRate = &rate
	}
	if s.handles != nil {
		aht, ok, err := s.handles.AvgBillableSeconds(ctx, campaignID)
		if err != nil {
			return Stats{}, err
		}
		if ok {
			out.AHT = &aht
		}
	}
	return out, nil
}
