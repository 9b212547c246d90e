package dispositions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

type Input struct {
	Code             string `json:"code"`
	Name             string `json:"name"`
	CountsAsContact  bool   `json:"counts_as_contact"`
	IsFinal          *bool  `json:"is_final"`
	RequiresCallback bool   `json:"requires_callback"`
	Active           *bool  `json:"active"`
}

func (s *Service) Create(ctx context.Context, accountID string, in Input) (Disposition, error) {
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if code == "" || strings.TrimSpace(in.Name) == "" {
		return Disposition{}, fmt.Errorf("%w: code and name are required", ErrValidation)
	}
	d := Disposition{
		ID:               uuid.NewString(),
		AccountID:        accountID,
		Code:             code,
		Name:             strings.TrimSpace(in.Name),
		CountsAsContact:  in.CountsAsContact,
		IsFinal:          boolOr(in.IsFinal, true),
		RequiresCallback: in.RequiresCallback,
		Active:           boolOr(in.Active, true),
		CreatedAt:        s.clock().UTC(),
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return Disposition{}, err
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, accountID, id string) (Disposition, error) {
	return s.repo.Get(ctx, accountID, id)
}

// Resolve looks up an active code the way agents reference it.
func (s *Service) Resolve(ctx context.Context, accountID, code string) (Disposition, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Disposition{}, fmt.Errorf("%w: code is required", ErrValidation)
	}
	d, err := s.repo.GetByCode(ctx, accountID, code)
	if err != nil {
		return Disposition{}, err
	}
	if !d.Active {
		return Disposition{}, fmt.Errorf("%w: code %s is inactive", ErrValidation, code)
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, accountID string, activeOnly bool) ([]Disposition, error) {
	return s.repo.List(ctx, accountID, activeOnly)
}

func (s *Service) Update(ctx context.Context, accountID, id string, in Input) (Disposition, error) {
	d, err := s.repo.Get(ctx, accountID, id)
	if err != nil {
		return Disposition{}, err
	}
	if strings.TrimSpace(in.Name) != "" {
		d.Name = strings.TrimSpace(in.Name)
	}
	d.CountsAsContact = in.CountsAsContact
	d.IsFinal = boolOr(in.IsFinal, d.IsFinal)
	d.RequiresCallback = in.RequiresCallback
	d.Active = boolOr(in.Active, d.Active)
	if err := s.repo.Update(ctx, d); err != nil {
		return Disposition{}, err
	}
	return d, nil
}

func (s *Service) Delete(ctx context.Context, accountID, id string) error {
	return s.repo.Delete(ctx, accountID, id)
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
