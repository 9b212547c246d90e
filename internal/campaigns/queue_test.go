package campaigns

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedLead(t *testing.T, repo *MemoryRepo, l Lead) Lead {
	t.Helper()
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = l.CreatedAt
	}
	if err := repo.AddLead(context.Background(), l); err != nil {
		t.Fatalf("AddLead: %v", err)
	}
	return l
}

func TestNextLeadPriorityOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	earlier := now.Add(-time.Hour)
	due := now.Add(-time.Minute)

	seedLead(t, repo, Lead{
		ID: "l-pending", CampaignID: "c1", ContactID: "ct-1", Phone: "1",
		Status: LeadPending, CreatedAt: earlier,
	})
	seedLead(t, repo, Lead{
		ID: "l-retry", CampaignID: "c1", ContactID: "ct-2", Phone: "2",
		Status: LeadNoAnswer, Attempts: 1, NextAttemptAt: &due, CreatedAt: earlier,
	})
	seedLead(t, repo, Lead{
		ID: "l-callback", CampaignID: "c1", ContactID: "ct-3", Phone: "3",
		Status: LeadScheduled, CallbackAt: &due, CreatedAt: earlier,
	})

	// callbacks win over retries, retries over pending
	l, err := repo.NextLead(ctx, "c1", 3, now)
	if err != nil {
		t.Fatalf("NextLead: %v", err)
	}
	if l.ID != "l-callback" {
		t.Fatalf("first pick = %s, want l-callback", l.ID)
	}

	if _, err := repo.ClaimLeadForDial(ctx, "c1", "l-callback", 3, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	l, err = repo.NextLead(ctx, "c1", 3, now)
	if err != nil {
		t.Fatalf("NextLead: %v", err)
	}
	if l.ID != "l-retry" {
		t.Fatalf("second pick = %s, want l-retry", l.ID)
	}

	if _, err := repo.ClaimLeadForDial(ctx, "c1", "l-retry", 3, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	l, err = repo.NextLead(ctx, "c1", 3, now)
	if err != nil {
		t.Fatalf("NextLead: %v", err)
	}
	if l.ID != "l-pending" {
		t.Fatalf("third pick = %s, want l-pending", l.ID)
	}
}

func TestNextLeadSkipsExhaustedAndFutureRetries(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	due := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	seedLead(t, repo, Lead{
		ID: "l-exhausted", CampaignID: "c1", ContactID: "ct-1", Phone: "1",
		Status: LeadFailed, Attempts: 3, NextAttemptAt: &due, CreatedAt: now,
	})
	seedLead(t, repo, Lead{
		ID: "l-future", CampaignID: "c1", ContactID: "ct-2", Phone: "2",
		Status: LeadBusy, Attempts: 1, NextAttemptAt: &future, CreatedAt: now,
	})
	// retry without a scheduled next attempt never surfaces
	seedLead(t, repo, Lead{
		ID: "l-unscheduled", CampaignID: "c1", ContactID: "ct-3", Phone: "3",
		Status: LeadNoAnswer, Attempts: 1, CreatedAt: now,
	})

	if _, err := repo.NextLead(ctx, "c1", 3, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no dialable lead, got %v", err)
	}
}

func TestClaimLeadForDial(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()

	seedLead(t, repo, Lead{
		ID: "l-1", CampaignID: "c1", ContactID: "ct-1", Phone: "1",
		Status: LeadPending, CreatedAt: now,
	})

	l, err := repo.ClaimLeadForDial(ctx, "c1", "l-1", 3, now)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if l.Status != LeadDialing || l.Attempts != 1 {
		t.Fatalf("after claim: %+v", l)
	}
	if l.LastAttemptAt == nil || !l.LastAttemptAt.Equal(now) {
		t.Fatalf("last_attempt_at = %v", l.LastAttemptAt)
	}

	// the loser of a claim race sees the lead as busy
	if _, err := repo.ClaimLeadForDial(ctx, "c1", "l-1", 3, now); !errors.Is(err, ErrLeadBusy) {
		t.Fatalf("double claim should fail with ErrLeadBusy, got %v", err)
	}
}

func TestClaimExhaustedLead(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	due := now.Add(-time.Minute)

	seedLead(t, repo, Lead{
		ID: "l-1", CampaignID: "c1", ContactID: "ct-1", Phone: "1",
		Status: LeadFailed, Attempts: 3, NextAttemptAt: &due, CreatedAt: now,
	})
	if _, err := repo.ClaimLeadForDial(ctx, "c1", "l-1", 3, now); !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
}

func TestInScheduleWindow(t *testing.T) {
	c := Campaign{
		StartTime: "09:00",
		EndTime:   "18:00",
		Timezone:  "UTC",
		Weekdays:  []int{1, 2, 3, 4, 5},
	}

	// Wednesday 2023-11-15 12:00 UTC
	wedNoon := time.Date(2023, 11, 15, 12, 0, 0, 0, time.UTC)
	if !c.InSchedule(wedNoon) {
		t.Fatalf("weekday noon should be in schedule")
	}
	// Wednesday 20:00 is outside the window
	if c.InSchedule(time.Date(2023, 11, 15, 20, 0, 0, 0, time.UTC)) {
		t.Fatalf("evening should be out of schedule")
	}
	// Sunday is not a listed weekday
	if c.InSchedule(time.Date(2023, 11, 19, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("sunday should be out of schedule")
	}
	// no window means always dialable
	if !(Campaign{}).InSchedule(wedNoon) {
		t.Fatalf("unscheduled campaign should always dial")
	}
}

func TestInScheduleHonorsTimezone(t *testing.T) {
	c := Campaign{
		StartTime: "09:00",
		EndTime:   "18:00",
		Timezone:  "America/Argentina/Buenos_Aires", // UTC-3
	}
	// 20:00 UTC is 17:00 in Buenos Aires, still inside the window
	if !c.InSchedule(time.Date(2023, 11, 15, 20, 0, 0, 0, time.UTC)) {
		t.Fatalf("20:00 UTC should be in schedule for UTC-3")
	}
	// 22:00 UTC is 19:00 local, outside
	if c.InSchedule(time.Date(2023, 11, 15, 22, 0, 0, 0, time.UTC)) {
		t.Fatalf("22:00 UTC should be out of schedule for UTC-3")
	}
}
