package pbx

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory catalog for tests and mock mode.
type MemoryRepo struct {
	mu        sync.Mutex
	providers map[string]Provider
	trunks    map[string]Trunk
	nodes     map[string]Node
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		providers: map[string]Provider{},
		trunks:    map[string]Trunk{},
		nodes:     map[string]Node{},
	}
}

func (r *MemoryRepo) CreateProvider(ctx context.Context, p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID] = p
	return nil
}

func (r *MemoryRepo) GetProvider(ctx context.Context, accountID, id string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[id]
	if !ok || p.AccountID != accountID {
		return Provider{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) ListProviders(ctx context.Context, accountID string) ([]Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Provider
	for _, p := range r.providers {
		if p.AccountID == accountID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) UpdateProvider(ctx context.Context, p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.providers[p.ID]
	if !ok || cur.AccountID != p.AccountID {
		return ErrNotFound
	}
	p.CreatedAt = cur.CreatedAt
	r.providers[p.ID] = p
	return nil
}

func (r *MemoryRepo) DeleteProvider(ctx context.Context, accountID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[id]
	if !ok || p.AccountID != accountID {
		return ErrNotFound
	}
	delete(r.providers, id)
	return nil
}

func (r *MemoryRepo) CreateTrunk(ctx context.Context, t Trunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trunks[t.ID] = t
	return nil
}

func (r *MemoryRepo) GetTrunk(ctx context.Context, accountID, id string) (Trunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trunks[id]
	if !ok || t.AccountID != accountID {
		return Trunk{}, ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepo) ListTrunks(ctx context.Context, accountID string) ([]Trunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Trunk
	for _, t := range r.trunks {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) UpdateTrunk(ctx context.Context, t Trunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.trunks[t.ID]
	if !ok || cur.AccountID != t.AccountID {
		return ErrNotFound
	}
	t.CreatedAt = cur.CreatedAt
	r.trunks[t.ID] = t
	return nil
}

func (r *MemoryRepo) DeleteTrunk(ctx context.Context, accountID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trunks[id]
	if !ok || t.AccountID != accountID {
		return ErrNotFound
	}
	delete(r.trunks, id)
	return nil
}

func (r *MemoryRepo) CreateNode(ctx context.Context, n Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[n.ID] = n
	return nil
}

func (r *MemoryRepo) GetNode(ctx context.Context, accountID, id string) (Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok || n.AccountID != accountID {
		return Node{}, ErrNotFound
	}
	return n, nil
}

func (r *MemoryRepo) ListNodes(ctx context.Context, accountID string) ([]Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Node
	for _, n := range r.nodes {
		if n.AccountID == accountID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) UpdateNode(ctx context.Context, n Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.nodes[n.ID]
	if !ok || cur.AccountID != n.AccountID {
		return ErrNotFound
	}
	n.CreatedAt = cur.CreatedAt
	n.HealthStatus = cur.HealthStatus
	n.LastHealthCheck = cur.LastHealthCheck
	r.nodes[n.ID] = n
	return nil
}

func (r *MemoryRepo) DeleteNode(ctx context.Context, accountID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok || n.AccountID != accountID {
		return ErrNotFound
	}
	delete(r.nodes, id)
	return nil
}

func (r *MemoryRepo) FirstActiveNode(ctx context.Context, accountID string) (Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *Node
	for id := range r.nodes {
		n := r.nodes[id]
		if n.AccountID != accountID || !n.Active {
			continue
		}
		if best == nil || n.CreatedAt.Before(best.CreatedAt) {
			best = &n
		}
	}
	if best == nil {
		return Node{}, ErrNotFound
	}
	return *best, nil
}

func (r *MemoryRepo) SetNodeHealth(ctx context.Context, accountID, id string, status HealthStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok || n.AccountID != accountID {
		return ErrNotFound
	}
	n.HealthStatus = status
	t := at
	n.LastHealthCheck = &t
	r.nodes[id] = n
	return nil
}
