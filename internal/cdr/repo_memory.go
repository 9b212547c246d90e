package cdr

import (
	"context"
	"sort"
	"sync"
)

type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]CallRecord
	events  map[string][]CallEvent // call_record_id -> ordered events
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		records: map[string]CallRecord{},
		events:  map[string][]CallEvent{},
	}
}

func (r *MemoryRepo) Create(ctx context.Context, rec CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = rec
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, accountID, id string) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.AccountID != accountID {
		return CallRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepo) Update(ctx context.Context, rec CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.records[rec.ID]
	if !ok || cur.AccountID != rec.AccountID {
		return ErrNotFound
	}
	rec.CreatedAt = cur.CreatedAt
	r.records[rec.ID] = rec
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, accountID string, f ListFilter) ([]CallRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []CallRecord
	for _, rec := range r.records {
		if rec.AccountID != accountID {
			continue
		}
		if f.CampaignID != "" && rec.CampaignID != f.CampaignID {
			continue
		}
		if f.AgentID != "" && rec.AgentID != f.AgentID {
			continue
		}
		if f.Result != "" && rec.Result != f.Result {
			continue
		}
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if f.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[f.Offset:]
	if f.Limit > 0 && f.Limit < len(all) {
		all = all[:f.Limit]
	}
	return all, total, nil
}

func (r *MemoryRepo) AppendEvent(ctx context.Context, e CallEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[e.CallRecordID] = append(r.events[e.CallRecordID], e)
	return nil
}

func (r *MemoryRepo) ListEvents(ctx context.Context, callRecordID string) ([]CallEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	evs := r.events[callRecordID]
	out := make([]CallEvent, len(evs))
	copy(out, evs)
	return out, nil
}

func (r *MemoryRepo) AvgBillsec(ctx context.Context, campaignID string) (float64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum, n := 0, 0
	for _, rec := range r.records {
		if rec.CampaignID == campaignID && rec.Billsec > 0 {
			sum += rec.Billsec
			n++
		}
	}
	if n == 0 {
		return 0, false, nil
	}
	return float64(sum) / float64(n), true, nil
}
