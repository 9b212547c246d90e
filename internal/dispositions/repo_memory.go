package dispositions

import (
	"context"
	"sort"
	"sync"
)

type MemoryRepo struct {
	mu    sync.Mutex
	items map[string]Disposition
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: map[string]Disposition{}}
}

func (r *MemoryRepo) Create(ctx context.Context, d Disposition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.items {
		if cur.AccountID == d.AccountID && cur.Code == d.Code {
			return ErrDuplicate
		}
	}
	r.items[d.ID] = d
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, accountID, id string) (Disposition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok || d.AccountID != accountID {
		return Disposition{}, ErrNotFound
	}
	return d, nil
}

func (r *MemoryRepo) GetByCode(ctx context.Context, accountID, code string) (Disposition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.items {
		if d.AccountID == accountID && d.Code == code {
			return d, nil
		}
	}
	return Disposition{}, ErrNotFound
}

func (r *MemoryRepo) List(ctx context.Context, accountID string, activeOnly bool) ([]Disposition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Disposition
	for _, d := range r.items {
		if d.AccountID != accountID {
			continue
		}
		if activeOnly && !d.Active {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *MemoryRepo) Update(ctx context.Context, d Disposition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[d.ID]
	if !ok || cur.AccountID != d.AccountID {
		return ErrNotFound
	}
	d.Code = cur.Code
	d.CreatedAt = cur.CreatedAt
	r.items[d.ID] = d
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, accountID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok || d.AccountID != accountID {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}
