package dnc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const cacheTTL = 5 * time.Minute

// Service answers DNC lookups with an optional Redis read-through
// cache in front of the repository. A nil client disables caching.
type Service struct {
	repo  Repository
	cache *redis.Client
	clock func() time.Time
}

func NewService(repo Repository, cache *redis.Client) *Service {
	return &Service{repo: repo, cache: cache, clock: time.Now}
}

// IsBlocked reports whether the number is on the account's DNC list.
// Cache misses fall through to the repository; cache errors are
// treated as misses so Redis outages never block dialing decisions.
func (s *Service) IsBlocked(ctx context.Context, accountID, phone string) (bool, error) {
	phone = normalize(phone)
	if phone == "" {
		return false, fmt.Errorf("%w: phone is required", ErrValidation)
	}
	if s.cache != nil {
		if v, err := s.cache.Get(ctx, cacheKey(accountID, phone)).Result(); err == nil {
			return v == "1", nil
		}
	}
	blocked, err := s.repo.Exists(ctx, accountID, phone)
	if err != nil {
		return false, err
	}
	if s.cache != nil {
		v := "0"
		if blocked {
			v = "1"
		}
		s.cache.Set(ctx, cacheKey(accountID, phone), v, cacheTTL)
	}
	return blocked, nil
}

func (s *Service) Add(ctx context.Context, accountID, phone, reason string) (Entry, error) {
	phone = normalize(phone)
	if phone == "" {
		return Entry{}, fmt.Errorf("%w: phone is required", ErrValidation)
	}
	e := Entry{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Phone:     phone,
		Reason:    reason,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.repo.Add(ctx, e); err != nil {
		return Entry{}, err
	}
	s.invalidate(ctx, accountID, phone)
	return e, nil
}

func (s *Service) Remove(ctx context.Context, accountID, phone string) error {
	phone = normalize(phone)
	if err := s.repo.Remove(ctx, accountID, phone); err != nil {
		return err
	}
	s.invalidate(ctx, accountID, phone)
	return nil
}

func (s *Service) List(ctx context.Context, accountID string, limit, offset int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, accountID, limit, offset)
}

func (s *Service) invalidate(ctx context.Context, accountID, phone string) {
	if s.cache != nil {
		s.cache.Del(ctx, cacheKey(accountID, phone))
	}
}

func cacheKey(accountID, phone string) string {
	return fmt.Sprintf("dnc:%s:%s", accountID, phone)
}

func normalize(phone string) string {
	return strings.TrimSpace(phone)
}
