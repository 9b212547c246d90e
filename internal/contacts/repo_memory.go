package contacts

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory contact store for tests and mock mode.
type MemoryRepo struct {
	mu       sync.Mutex
	contacts map[string]Contact // id -> contact
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{contacts: map[string]Contact{}}
}

// Put stores a contact. Test seeding helper.
func (r *MemoryRepo) Put(c Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts[c.ID] = c
}

func (r *MemoryRepo) Get(ctx context.Context, accountID, id string) (Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[id]
	if !ok || c.AccountID != accountID {
		return Contact{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) ListByList(ctx context.Context, accountID, listID string) ([]Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Contact
	for _, c := range r.contacts {
		if c.AccountID == accountID && c.ListID == listID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
