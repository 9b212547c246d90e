package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service manages the agent roster and mediates the availability
// state machine for the dialer.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

type Input struct {
	UserID             string   `json:"user_id"`
	PbxNodeID          string   `json:"pbx_node_id"`
	Name               string   `json:"name"`
	Extension          string   `json:"extension"`
	SIPPassword        string   `json:"sip_password"`
	Skills             []string `json:"skills"`
	MaxConcurrentCalls int      `json:"max_concurrent_calls"`
	WrapUpSeconds      int      `json:"wrap_up_seconds"`
	Active             *bool    `json:"active"`
}

func (s *Service) Create(ctx context.Context, accountID string, in Input) (Agent, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Extension) == "" {
		return Agent{}, fmt.Errorf("%w: name and extension are required", ErrValidation)
	}
	if in.SIPPassword == "" {
		return Agent{}, fmt.Errorf("%w: sip_password is required", ErrValidation)
	}
	a := Agent{
		ID:                 uuid.NewString(),
		AccountID:          accountID,
		UserID:             in.UserID,
		PbxNodeID:          in.PbxNodeID,
		Name:               strings.TrimSpace(in.Name),
		Extension:          strings.TrimSpace(in.Extension),
		SIPPassword:        in.SIPPassword,
		Status:             StatusOffline,
		Skills:             in.Skills,
		MaxConcurrentCalls: intOr(in.MaxConcurrentCalls, 1),
		WrapUpSeconds:      intOr(in.WrapUpSeconds, 30),
		Active:             boolOr(in.Active, true),
		CreatedAt:          s.clock().UTC(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return Agent{}, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, accountID, id string) (Agent, error) {
	return s.repo.Get(ctx, accountID, id)
}

func (s *Service) List(ctx context.Context, accountID string) ([]Agent, error) {
	return s.repo.List(ctx, accountID)
}

func (s *Service) Update(ctx context.Context, accountID, id string, in Input) (Agent, error) {
	a, err := s.repo.Get(ctx, accountID, id)
	if err != nil {
		return Agent{}, err
	}
	if strings.TrimSpace(in.Name) != "" {
		a.Name = strings.TrimSpace(in.Name)
	}
	if in.SIPPassword != "" {
		a.SIPPassword = in.SIPPassword
	}
	a.UserID = in.UserID
	a.PbxNodeID = in.PbxNodeID
	if in.Skills != nil {
		a.Skills = in.Skills
	}
	if in.MaxConcurrentCalls > 0 {
		a.MaxConcurrentCalls = in.MaxConcurrentCalls
	}
	if in.WrapUpSeconds > 0 {
		a.WrapUpSeconds = in.WrapUpSeconds
	}
	a.Active = boolOr(in.Active, a.Active)
	if err := s.repo.Update(ctx, a); err != nil {
		return Agent{}, err
	}
	return s.repo.Get(ctx, accountID, id)
}

func (s *Service) Delete(ctx context.Context, accountID, id string) error {
	a, err := s.repo.Get(ctx, accountID, id)
	if err != nil {
		return err
	}
	if a.Status.OnPhone() {
		return fmt.Errorf("%w: agent is on a call", ErrInvalidStatus)
	}
	return s.repo.Delete(ctx, accountID, id)
}

// SetStatus applies a manual status change, typically from the agent
// UI. The pause reason is only retained while paused.
func (s *Service) SetStatus(ctx context.Context, accountID, id string, status Status, pauseReason string) (Agent, error) {
	if !status.Valid() {
		return Agent{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if status != StatusPaused {
		pauseReason = ""
	}
	if err := s.repo.SetStatus(ctx, accountID, id, status, pauseReason); err != nil {
		return Agent{}, err
	}
	return s.repo.Get(ctx, accountID, id)
}

// Reserve pins the agent to a call, moving it to ringing. Manual
// dials may take an agent out of wrap-up; automatic ones only take
// available agents.
func (s *Service) Reserve(ctx context.Context, accountID, id, callID string, allowWrapUp bool) (Agent, error) {
	from := []Status{StatusAvailable}
	if allowWrapUp {
		from = append(from, StatusWrapUp)
	}
	return s.repo.ReserveForDial(ctx, accountID, id, callID, from)
}

// MarkAnswered moves a ringing agent to on_call once the PBX bridges
// the leg.
func (s *Service) MarkAnswered(ctx context.Context, accountID, id, callID string) error {
	a, err := s.repo.Get(ctx, accountID, id)
	if err != nil {
		return err
	}
	if a.CurrentCallID != callID || a.Status != StatusRinging {
		return fmt.Errorf("%w: agent is not ringing for call %s", ErrInvalidStatus, callID)
	}
	return s.repo.SetStatus(ctx, accountID, id, StatusOnCall, "")
}

// Release ends the agent's participation in a call, landing in
// wrap-up so the agent gets after-call work time before the dialer
// picks them again.
func (s *Service) Release(ctx context.Context, accountID, id, callID string) error {
	return s.repo.ReleaseFromCall(ctx, accountID, id, callID, StatusWrapUp)
}

// ReleaseFailed puts the agent straight back to available after an
// origination that never left the PBX.
func (s *Service) ReleaseFailed(ctx context.Context, accountID, id, callID string) error {
	return s.repo.ReleaseFromCall(ctx, accountID, id, callID, StatusAvailable)
}

// CountAvailable reports how many of the given agents are ready for a
// new call. The dialer sizes its dial batch from this.
func (s *Service) CountAvailable(ctx context.Context, accountID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.repo.CountByStatus(ctx, accountID, ids, StatusAvailable)
}

func intOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
