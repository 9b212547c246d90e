package agents

import (
	"context"
	"sort"
	"sync"
)

type MemoryRepo struct {
	mu     sync.Mutex
	agents map[string]Agent
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{agents: map[string]Agent{}}
}

func (r *MemoryRepo) Create(ctx context.Context, a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.agents {
		if cur.AccountID == a.AccountID && cur.Extension == a.Extension {
			return ErrDuplicate
		}
	}
	r.agents[a.ID] = a
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, accountID, id string) (Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok || a.AccountID != accountID {
		return Agent{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepo) List(ctx context.Context, accountID string) ([]Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Agent
	for _, a := range r.agents {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Extension < out[j].Extension })
	return out, nil
}

func (r *MemoryRepo) Update(ctx context.Context, a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.agents[a.ID]
	if !ok || cur.AccountID != a.AccountID {
		return ErrNotFound
	}
	// Live state is owned by the dial path, not the CRUD path.
	a.Extension = cur.Extension
	a.Status = cur.Status
	a.PauseReason = cur.PauseReason
	a.CurrentCallID = cur.CurrentCallID
	a.CreatedAt = cur.CreatedAt
	r.agents[a.ID] = a
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, accountID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok || a.AccountID != accountID {
		return ErrNotFound
	}
	delete(r.agents, id)
	return nil
}

func (r *MemoryRepo) ReserveForDial(ctx context.Context, accountID, id, callID string, from []Status) (Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok || a.AccountID != accountID {
		return Agent{}, ErrNotFound
	}
	if !a.Active || !statusIn(a.Status, from) {
		return Agent{}, ErrNotAvailable
	}
	a.Status = StatusRinging
	a.CurrentCallID = callID
	a.PauseReason = ""
	r.agents[id] = a
	return a, nil
}

func (r *MemoryRepo) ReleaseFromCall(ctx context.Context, accountID, id, callID string, to Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok || a.AccountID != accountID || a.CurrentCallID != callID {
		return nil
	}
	a.Status = to
	a.CurrentCallID = ""
	r.agents[id] = a
	return nil
}

func (r *MemoryRepo) SetStatus(ctx context.Context, accountID, id string, status Status, pauseReason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok || a.AccountID != accountID {
		return ErrNotFound
	}
	a.Status = status
	a.PauseReason = pauseReason
	if !status.OnPhone() {
		a.CurrentCallID = ""
	}
	r.agents[id] = a
	return nil
}

func (r *MemoryRepo) CountByStatus(ctx context.Context, accountID string, ids []string, status Status) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	n := 0
	for _, a := range r.agents {
		if a.AccountID == accountID && a.Active && a.Status == status && idSet[a.ID] {
			n++
		}
	}
	return n, nil
}

func statusIn(s Status, set []Status) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
