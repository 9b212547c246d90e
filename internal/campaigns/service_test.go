package campaigns

import (
	"context"
	"errors"
	"testing"
	"time"

	"callcenter-platform/internal/contacts"
)

type fakeDnc struct {
	blocked map[string]bool
}

func (f *fakeDnc) IsBlocked(ctx context.Context, accountID, phone string) (bool, error) {
	return f.blocked[phone], nil
}

func fixedClock() time.Time { return time.Unix(1700000000, 0).UTC() }

func newTestService(blocked ...string) (*Service, *contacts.MemoryRepo) {
	dnc := &fakeDnc{blocked: map[string]bool{}}
	for _, p := range blocked {
		dnc.blocked[p] = true
	}
	contactRepo := contacts.NewMemoryRepo()
	s := NewService(NewMemoryRepo(), dnc, contactRepo)
	s.clock = fixedClock
	return s, contactRepo
}

func seedContact(repo *contacts.MemoryRepo, id, phone string) {
	repo.Put(contacts.Contact{
		ID:        id,
		AccountID: "acc-1",
		ListID:    "list-1",
		Fields:    map[string]string{"phone": phone},
		CreatedAt: fixedClock(),
	})
}

func TestCreateDefaults(t *testing.T) {
	s, _ := newTestService()
	c, err := s.Create(context.Background(), "acc-1", Input{Name: "Q4 outreach"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Status != StatusDraft || c.DialMode != DialManual {
		t.Fatalf("defaults: %+v", c)
	}
	if c.MaxConcurrentCalls != 5 || c.MaxRetries != 3 || c.RetryDelayMinutes != 60 {
		t.Fatalf("limit defaults: %+v", c)
	}
	if c.PredictiveRatio != 1.2 || c.RingTimeout != 30 {
		t.Fatalf("dial defaults: %+v", c)
	}
}

func TestCreateValidatesSchedule(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	if _, err := s.Create(ctx, "acc-1", Input{Name: "x", StartTime: "09:00"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("half-open window should fail, got %v", err)
	}
	if _, err := s.Create(ctx, "acc-1", Input{Name: "x", StartTime: "9am", EndTime: "5pm"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad time format should fail, got %v", err)
	}
	if _, err := s.Create(ctx, "acc-1", Input{Name: "x", Weekdays: []int{0}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("weekday 0 should fail, got %v", err)
	}
	if _, err := s.Create(ctx, "acc-1", Input{Name: "x", PredictiveRatio: 0.5}); !errors.Is(err, ErrValidation) {
		t.Fatalf("sub-unit predictive ratio should fail, got %v", err)
	}
	if _, err := s.Create(ctx, "acc-1", Input{Name: "x", PredictiveRatio: -2}); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative predictive ratio should fail, got %v", err)
	}
}

func startableCampaign(t *testing.T, s *Service, repo *contacts.MemoryRepo, mode DialMode) Campaign {
	t.Helper()
	ctx := context.Background()
	c, err := s.Create(ctx, "acc-1", Input{Name: "camp", DialMode: mode})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	seedContact(repo, "ct-1", "15551234")
	if _, err := s.Enroll(ctx, "acc-1", c.ID, "ct-1", "15551234"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	return c
}

func TestStartPreconditions(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestService()

	// Missing leads or agents is a request problem, not a state one:
	// the caller can fix it without touching the campaign status.
	c, err := s.Create(ctx, "acc-1", Input{Name: "empty"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = s.Start(ctx, "acc-1", c.ID)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("start without leads should fail validation, got %v", err)
	}
	if errors.Is(err, ErrInvalidState) {
		t.Fatalf("start without leads must not be a state error, got %v", err)
	}

	// progressive mode needs an agent
	c2 := startableCampaign(t, s, repo, DialProgressive)
	if _, err := s.Start(ctx, "acc-1", c2.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("start without agents should fail validation, got %v", err)
	}
	if _, err := s.AssignAgent(ctx, "acc-1", c2.ID, "agent-1", 0); err != nil {
		t.Fatalf("AssignAgent: %v", err)
	}
	got, err := s.Start(ctx, "acc-1", c2.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got.Status != StatusRunning {
		t.Fatalf("status = %s", got.Status)
	}
	if got.TotalLeads != 1 || got.LeadsPending != 1 {
		t.Fatalf("cached stats not recomputed: %+v", got)
	}
}

func TestAssignmentsOrderedByPriority(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService()
	c, err := s.Create(ctx, "acc-1", Input{Name: "camp"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for agent, prio := range map[string]int{"agent-a": 3, "agent-b": 1, "agent-c": 2} {
		if _, err := s.AssignAgent(ctx, "acc-1", c.ID, agent, prio); err != nil {
			t.Fatalf("AssignAgent %s: %v", agent, err)
		}
	}
	got, err := s.ListAssignments(ctx, "acc-1", c.ID)
	if err != nil {
		t.Fatalf("ListAssignments: %v", err)
	}
	// lower priority value dials first
	want := []string{"agent-b", "agent-c", "agent-a"}
	for i, a := range got {
		if a.AgentID != want[i] {
			t.Fatalf("order: got %v at %d, want %v", a.AgentID, i, want)
		}
	}
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestService()
	c := startableCampaign(t, s, repo, DialManual)

	// manual campaigns start without agents
	if _, err := s.Start(ctx, "acc-1", c.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := s.Start(ctx, "acc-1", c.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double start should fail, got %v", err)
	}

	if _, err := s.Pause(ctx, "acc-1", c.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if _, err := s.Pause(ctx, "acc-1", c.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("pause of paused should fail, got %v", err)
	}

	// paused campaigns can stop, stopped ones can restart
	if _, err := s.Stop(ctx, "acc-1", c.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	got, err := s.Start(ctx, "acc-1", c.ID)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if got.Status != StatusRunning {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestUpdateAndDeleteGatedWhileRunning(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestService()
	c := startableCampaign(t, s, repo, DialManual)
	if _, err := s.Start(ctx, "acc-1", c.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := s.Update(ctx, "acc-1", c.ID, Input{Name: "renamed"}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("update of running campaign should fail, got %v", err)
	}
	if err := s.Delete(ctx, "acc-1", c.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("delete of running campaign should fail, got %v", err)
	}

	if _, err := s.Pause(ctx, "acc-1", c.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if _, err := s.Update(ctx, "acc-1", c.ID, Input{Name: "renamed"}); err != nil {
		t.Fatalf("update of paused campaign: %v", err)
	}
}

func TestEnrollMarksDncUpFront(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestService("15559999")
	c, err := s.Create(ctx, "acc-1", Input{Name: "camp"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	seedContact(repo, "ct-1", "15559999")

	l, err := s.Enroll(ctx, "acc-1", c.ID, "ct-1", "15559999")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if l.Status != LeadDnc {
		t.Fatalf("status = %s, want dnc", l.Status)
	}

	// duplicate contact enrollment is rejected
	if _, err := s.Enroll(ctx, "acc-1", c.ID, "ct-1", "15559999"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestEnrollList(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestService("15550002")
	c, err := s.Create(ctx, "acc-1", Input{Name: "camp"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	seedContact(repo, "ct-1", "15550001")
	seedContact(repo, "ct-2", "15550002") // on DNC
	repo.Put(contacts.Contact{ // no phone field
		ID: "ct-3", AccountID: "acc-1", ListID: "list-1",
		Fields: map[string]string{"email": "a@b.c"}, CreatedAt: fixedClock(),
	})
	// already enrolled
	seedContact(repo, "ct-4", "15550004")
	if _, err := s.Enroll(ctx, "acc-1", c.ID, "ct-4", "15550004"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	sum, err := s.EnrollList(ctx, "acc-1", c.ID, "list-1", "phone")
	if err != nil {
		t.Fatalf("EnrollList: %v", err)
	}
	if sum.Added != 1 || sum.Dnc != 1 || sum.Skipped != 2 || sum.TotalProcessed != 4 {
		t.Fatalf("summary = %+v", sum)
	}

	got, _ := s.Get(ctx, "acc-1", c.ID)
	if got.TotalLeads != 3 {
		t.Fatalf("total_leads = %d, want 3", got.TotalLeads)
	}
}

func TestEnrollListRequiresContacts(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService()
	c, err := s.Create(ctx, "acc-1", Input{Name: "camp"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.EnrollList(ctx, "acc-1", c.ID, "empty-list", "phone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
