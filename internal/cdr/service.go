package cdr

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service owns the call ledger. Records are created before the PBX is
// asked to dial, so a failed origination still leaves a trace, and
// finalized once; late events are rejected rather than rewriting
// history.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

type OpenRequest struct {
	AccountID      string
	CampaignID     string
	CampaignLeadID string
	AgentID        string
	TrunkID        string
	CallerID       string
	Destination    string
	Extension      string
}

// Open creates a pending record with an originate event.
func (s *Service) Open(ctx context.Context, in OpenRequest) (CallRecord, error) {
	if in.AccountID == "" || in.Destination == "" {
		return CallRecord{}, fmt.Errorf("%w: account and destination are required", ErrValidation)
	}
	now := s.clock().UTC()
	rec := CallRecord{
		ID:             uuid.NewString(),
		AccountID:      in.AccountID,
		CampaignID:     in.CampaignID,
		CampaignLeadID: in.CampaignLeadID,
		AgentID:        in.AgentID,
		TrunkID:        in.TrunkID,
		CallerID:       in.CallerID,
		Destination:    in.Destination,
		Extension:      in.Extension,
		StartedAt:      &now,
		Result:         ResultPending,
		Direction:      DirectionOutbound,
		CreatedAt:      now,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return CallRecord{}, err
	}
	return rec, nil
}

// SetUniqueID stamps the PBX call identifier after a successful
// originate.
func (s *Service) SetUniqueID(ctx context.Context, accountID, id, uniqueID string) error {
	rec, err := s.repo.Get(ctx, accountID, id)
	if err != nil {
		return err
	}
	if rec.Ended() {
		return ErrImmutable
	}
	rec.UniqueID = uniqueID
	return s.repo.Update(ctx, rec)
}

// MarkAnswered records the answer time and the ringing wait.
func (s *Service) MarkAnswered(ctx context.Context, accountID, id string) error {
	rec, err := s.repo.Get(ctx, accountID, id)
	if err != nil {
		return err
	}
	if rec.Ended() {
		return ErrImmutable
	}
	now := s.clock().UTC()
	rec.AnsweredAt = &now
	rec.Result = ResultAnswered
	if rec.StartedAt != nil {
		rec.WaitTime = int(now.Sub(*rec.StartedAt).Seconds())
	}
	if err := s.repo.Update(ctx, rec); err != nil {
		return err
	}
	return s.AppendEvent(ctx, id, "answered", nil)
}

// Close finalizes the record with its outcome and computes durations.
// A record closes exactly once.
func (s *Service) Close(ctx context.Context, accountID, id string, result Result, hangupCause int, causeText string) (CallRecord, error) {
	if !result.Valid() || result == ResultPending {
		return CallRecord{}, fmt.Errorf("%w: invalid result %q", ErrValidation, result)
	}
	rec, err := s.repo.Get(ctx, accountID, id)
	if err != nil {
		return CallRecord{}, err
	}
	if rec.Ended() {
		return CallRecord{}, ErrImmutable
	}
	now := s.clock().UTC()
	rec.EndedAt = &now
	rec.Result = result
	rec.HangupCause = hangupCause
	rec.HangupCauseText = causeText
	if rec.StartedAt != nil {
		rec.Duration = int(now.Sub(*rec.StartedAt).Seconds())
	}
	if rec.AnsweredAt != nil {
		rec.Billsec = int(now.Sub(*rec.AnsweredAt).Seconds())
	}
	if err := s.repo.Update(ctx, rec); err != nil {
		return CallRecord{}, err
	}
	detail, _ := json.Marshal(map[string]any{
		"result": result, "hangup_cause": hangupCause, "cause_text": causeText,
	})
	if err := s.appendEvent(ctx, id, "hangup", detail); err != nil {
		return CallRecord{}, err
	}
	return s.repo.Get(ctx, accountID, id)
}

// SetDisposition stamps the agent's outcome code. Allowed after the
// call ended; it is the one post-close mutation.
func (s *Service) SetDisposition(ctx context.Context, accountID, id, dispositionID, code, note string) error {
	rec, err := s.repo.Get(ctx, accountID, id)
	if err != nil {
		return err
	}
	rec.DispositionID = dispositionID
	rec.DispositionNote = note
	if err := s.repo.Update(ctx, rec); err != nil {
		return err
	}
	detail, _ := json.Marshal(map[string]string{"disposition_code": code, "note": note})
	return s.appendEvent(ctx, id, "disposition", detail)
}

// AppendEvent adds a timeline entry. detail may be nil.
func (s *Service) AppendEvent(ctx context.Context, callRecordID, event string, detail map[string]any) error {
	var raw json.RawMessage
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return err
		}
		raw = b
	}
	return s.appendEvent(ctx, callRecordID, event, raw)
}

func (s *Service) appendEvent(ctx context.Context, callRecordID, event string, detail json.RawMessage) error {
	return s.repo.AppendEvent(ctx, CallEvent{
		ID:           uuid.NewString(),
		CallRecordID: callRecordID,
		Event:        event,
		Detail:       detail,
		Timestamp:    s.clock().UTC(),
	})
}

func (s *Service) Get(ctx context.Context, accountID, id string) (CallRecord, error) {
	return s.repo.Get(ctx, accountID, id)
}

func (s *Service) List(ctx context.Context, accountID string, f ListFilter) ([]CallRecord, int, error) {
	if f.Result != "" && !f.Result.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown result %q", ErrValidation, f.Result)
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, accountID, f)
}

// Timeline returns the call's events in order.
func (s *Service) Timeline(ctx context.Context, accountID, id string) ([]CallEvent, error) {
	if _, err := s.repo.Get(ctx, accountID, id); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, id)
}

// AvgBillableSeconds feeds campaign AHT.
func (s *Service) AvgBillableSeconds(ctx context.Context, campaignID string) (float64, bool, error) {
	return s.repo.AvgBillsec(ctx, campaignID)
}
