package campaigns

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu          sync.Mutex
	campaigns   map[string]Campaign
	assignments map[string]Assignment
	leads       map[string]Lead
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		campaigns:   map[string]Campaign{},
		assignments: map[string]Assignment{},
		leads:       map[string]Lead{},
	}
}

func (r *MemoryRepo) Create(ctx context.Context, c Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = c
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, accountID, id string) (Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.AccountID != accountID {
		return Campaign{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) List(ctx context.Context, accountID string) ([]Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Campaign
	for _, c := range r.campaigns {
		if c.AccountID == accountID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) ListRunning(ctx context.Context) ([]Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Campaign
	for _, c := range r.campaigns {
		if c.Status == StatusRunning {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) Update(ctx context.Context, c Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.campaigns[c.ID]
	if !ok || cur.AccountID != c.AccountID {
		return ErrNotFound
	}
	c.Status = cur.Status
	c.TotalLeads = cur.TotalLeads
	c.LeadsContacted = cur.LeadsContacted
	c.LeadsPending = cur.LeadsPending
	c.CreatedAt = cur.CreatedAt
	r.campaigns[c.ID] = c
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, accountID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.AccountID != accountID {
		return ErrNotFound
	}
	delete(r.campaigns, id)
	for k, a := range r.assignments {
		if a.CampaignID == id {
			delete(r.assignments, k)
		}
	}
	for k, l := range r.leads {
		if l.CampaignID == id {
			delete(r.leads, k)
		}
	}
	return nil
}

func (r *MemoryRepo) SetStatus(ctx context.Context, accountID, id string, from []Status, to Status, at time.Time) (Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.AccountID != accountID {
		return Campaign{}, ErrNotFound
	}
	allowed := false
	for _, f := range from {
		if c.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return Campaign{}, ErrInvalidState
	}
	c.Status = to
	c.UpdatedAt = at
	r.campaigns[id] = c
	return c, nil
}

func (r *MemoryRepo) SetCachedStats(ctx context.Context, accountID, id string, total, contacted, pending int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.AccountID != accountID {
		return ErrNotFound
	}
	c.TotalLeads = total
	c.LeadsContacted = contacted
	c.LeadsPending = pending
	r.campaigns[id] = c
	return nil
}

func (r *MemoryRepo) AssignAgent(ctx context.Context, a Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.assignments {
		if cur.CampaignID == a.CampaignID && cur.AgentID == a.AgentID {
			return ErrDuplicate
		}
	}
	r.assignments[a.ID] = a
	return nil
}

func (r *MemoryRepo) RemoveAgent(ctx context.Context, campaignID, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, a := range r.assignments {
		if a.CampaignID == campaignID && a.AgentID == agentID {
			delete(r.assignments, k)
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepo) ListAssignments(ctx context.Context, campaignID string) ([]Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Assignment
	for _, a := range r.assignments {
		if a.CampaignID == campaignID {
			out = append(out, a)
		}
	}
	// Lower priority value dials first.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepo) AddLead(ctx context.Context, l Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.leads {
		if cur.CampaignID == l.CampaignID && cur.ContactID == l.ContactID {
			return ErrDuplicate
		}
	}
	r.leads[l.ID] = l
	return nil
}

func (r *MemoryRepo) GetLead(ctx context.Context, campaignID, leadID string) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[leadID]
	if !ok || l.CampaignID != campaignID {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (r *MemoryRepo) GetLeadAnyCampaign(ctx context.Context, leadID string) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[leadID]
	if !ok {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (r *MemoryRepo) ListLeads(ctx context.Context, campaignID string, status LeadStatus, limit, offset int) ([]Lead, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []Lead
	for _, l := range r.leads {
		if l.CampaignID != campaignID {
			continue
		}
		if status != "" && l.Status != status {
			continue
		}
		all = append(all, l)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (r *MemoryRepo) UpdateLead(ctx context.Context, l Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.leads[l.ID]
	if !ok || cur.CampaignID != l.CampaignID {
		return ErrNotFound
	}
	l.CreatedAt = cur.CreatedAt
	r.leads[l.ID] = l
	return nil
}

func (r *MemoryRepo) HasLeadForContact(ctx context.Context, campaignID, contactID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.leads {
		if l.CampaignID == campaignID && l.ContactID == contactID {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepo) NextLead(ctx context.Context, campaignID string, maxRetries int, now time.Time) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var callback, retry, pending *Lead
	for id := range r.leads {
		l := r.leads[id]
		if l.CampaignID != campaignID {
			continue
		}
		switch {
		case l.Status == LeadScheduled && l.CallbackAt != nil && !l.CallbackAt.After(now):
			if callback == nil || l.CallbackAt.Before(*callback.CallbackAt) {
				callback = &l
			}
		case l.Retryable() && l.Attempts < maxRetries &&
			l.NextAttemptAt != nil && !l.NextAttemptAt.After(now):
			if retry == nil || l.NextAttemptAt.Before(*retry.NextAttemptAt) {
				retry = &l
			}
		case l.Status == LeadPending:
			if pending == nil || l.CreatedAt.Before(pending.CreatedAt) {
				pending = &l
			}
		}
	}
	switch {
	case callback != nil:
		return *callback, nil
	case retry != nil:
		return *retry, nil
	case pending != nil:
		return *pending, nil
	}
	return Lead{}, ErrNotFound
}

func (r *MemoryRepo) ClaimLeadForDial(ctx context.Context, campaignID, leadID string, maxRetries int, now time.Time) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[leadID]
	if !ok || l.CampaignID != campaignID {
		return Lead{}, ErrNotFound
	}
	dialable := l.Status == LeadPending ||
		(l.Status == LeadScheduled && l.CallbackAt != nil && !l.CallbackAt.After(now)) ||
		(l.Retryable() && l.Attempts < maxRetries)
	if !dialable {
		if l.Retryable() && l.Attempts >= maxRetries {
			return Lead{}, ErrRetryExhausted
		}
		return Lead{}, ErrLeadBusy
	}
	l.Status = LeadDialing
	l.Attempts++
	t := now
	l.LastAttemptAt = &t
	l.UpdatedAt = now
	r.leads[leadID] = l
	return l, nil
}

func (r *MemoryRepo) CountLeads(ctx context.Context, campaignID string) (LeadCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := LeadCounts{}
	for _, l := range r.leads {
		if l.CampaignID == campaignID {
			counts[l.Status]++
		}
	}
	return counts, nil
}
