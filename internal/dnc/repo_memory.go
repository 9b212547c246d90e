package dnc

import (
	"context"
	"sort"
	"sync"
)

type MemoryRepo struct {
	mu      sync.Mutex
	entries map[string]Entry // accountID + "\x00" + phone
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{entries: map[string]Entry{}}
}

func key(accountID, phone string) string { return accountID + "\x00" + phone }

func (r *MemoryRepo) Add(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(e.AccountID, e.Phone)
	if _, ok := r.entries[k]; ok {
		return ErrDuplicate
	}
	r.entries[k] = e
	return nil
}

func (r *MemoryRepo) Remove(ctx context.Context, accountID, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(accountID, phone)
	if _, ok := r.entries[k]; !ok {
		return ErrNotFound
	}
	delete(r.entries, k)
	return nil
}

func (r *MemoryRepo) Exists(ctx context.Context, accountID, phone string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key(accountID, phone)]
	return ok, nil
}

func (r *MemoryRepo) List(ctx context.Context, accountID string, limit, offset int) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []Entry
	for _, e := range r.entries {
		if e.AccountID == accountID {
			all = append(all, e)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
