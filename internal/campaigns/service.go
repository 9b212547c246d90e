package campaigns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"callcenter-platform/internal/contacts"
)

// DncChecker is the minimal DNC surface the campaign service needs.
type DncChecker interface {
	IsBlocked(ctx context.Context, accountID, phone string) (bool, error)
}

// ContactSource resolves contacts for enrollment.
type ContactSource interface {
	Get(ctx context.Context, accountID, id string) (contacts.Contact, error)
	ListByList(ctx context.Context, accountID, listID string) ([]contacts.Contact, error)
}

// Service owns campaign CRUD, the lifecycle state machine and lead
// enrollment. Edits to a running campaign are rejected; pause first.
type Service struct {
	repo     Repository
	dnc      DncChecker
	contacts ContactSource
	clock    func() time.Time
}

func NewService(repo Repository, dnc DncChecker, contactSrc ContactSource) *Service {
	return &Service{repo: repo, dnc: dnc, contacts: contactSrc, clock: time.Now}
}

// Repo exposes the repository for collaborating services.
func (s *Service) Repo() Repository { return s.repo }

type Input struct {
	TrunkID            string   `json:"trunk_id"`
	PbxNodeID          string   `json:"pbx_node_id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	DialMode           DialMode `json:"dial_mode"`
	CallerID           string   `json:"caller_id"`
	StartTime          string   `json:"start_time"`
	EndTime            string   `json:"end_time"`
	Timezone           string   `json:"timezone"`
	Weekdays           []int    `json:"weekdays"`
	MaxConcurrentCalls int      `json:"max_concurrent_calls"`
	MaxRetries         int      `json:"max_retries"`
	RetryDelayMinutes  int      `json:"retry_delay_minutes"`
	RingTimeout        int      `json:"ring_timeout"`
	AbandonTimeout     int      `json:"abandon_timeout"`
	PredictiveRatio    float64  `json:"predictive_ratio"`
}

func (s *Service) Create(ctx context.Context, accountID string, in Input) (Campaign, error) {
	if err := validateInput(in); err != nil {
		return Campaign{}, err
	}
	now := s.clock().UTC()
	c := Campaign{
		ID:                 uuid.NewString(),
		AccountID:          accountID,
		TrunkID:            in.TrunkID,
		PbxNodeID:          in.PbxNodeID,
		Name:               strings.TrimSpace(in.Name),
		Description:        in.Description,
		DialMode:           dialModeOr(in.DialMode, DialManual),
		CallerID:           in.CallerID,
		Status:             StatusDraft,
		StartTime:          in.StartTime,
		EndTime:            in.EndTime,
		Timezone:           defaultStr(in.Timezone, "UTC"),
		Weekdays:           in.Weekdays,
		MaxConcurrentCalls: intOr(in.MaxConcurrentCalls, 5),
		MaxRetries:         intOr(in.MaxRetries, 3),
		RetryDelayMinutes:  intOr(in.RetryDelayMinutes, 60),
		RingTimeout:        intOr(in.RingTimeout, 30),
		AbandonTimeout:     intOr(in.AbandonTimeout, 5),
		PredictiveRatio:    floatOr(in.PredictiveRatio, 1.2),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return Campaign{}, err
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, accountID, id string) (Campaign, error) {
	return s.repo.Get(ctx, accountID, id)
}

func (s *Service) List(ctx context.Context, accountID string) ([]Campaign, error) {
	return s.repo.List(ctx, accountID)
}

func (s *Service) Update(ctx context.Context, accountID, id string, in Input) (Campaign, error) {
	c, err := s.repo.Get(ctx, accountID, id)
	if err != nil {
		return Campaign{}, err
	}
	if c.Status == StatusRunning {
		return Campaign{}, fmt.Errorf("%w: pause the campaign before editing", ErrInvalidState)
	}
	if strings.TrimSpace(in.Name) != "" {
		c.Name = strings.TrimSpace(in.Name)
	}
	c.TrunkID = in.TrunkID
	c.PbxNodeID = in.PbxNodeID
	c.Description = in.Description
	if in.DialMode != "" {
		if !in.DialMode.Valid() {
			return Campaign{}, fmt.Errorf("%w: unknown dial mode %q", ErrValidation, in.DialMode)
		}
		c.DialMode = in.DialMode
	}
	c.CallerID = in.CallerID
	c.StartTime = in.StartTime
	c.EndTime = in.EndTime
	if in.Timezone != "" {
		c.Timezone = in.Timezone
	}
	if in.Weekdays != nil {
		c.Weekdays = in.Weekdays
	}
	if in.MaxConcurrentCalls > 0 {
		c.MaxConcurrentCalls = in.MaxConcurrentCalls
	}
	if in.MaxRetries > 0 {
		c.MaxRetries = in.MaxRetries
	}
	if in.RetryDelayMinutes > 0 {
		c.RetryDelayMinutes = in.RetryDelayMinutes
	}
	if in.RingTimeout > 0 {
		c.RingTimeout = in.RingTimeout
	}
	if in.AbandonTimeout > 0 {
		c.AbandonTimeout = in.AbandonTimeout
	}
	if in.PredictiveRatio > 0 {
		c.PredictiveRatio = in.PredictiveRatio
	}
	c.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, c); err != nil {
		return Campaign{}, err
	}
	return s.repo.Get(ctx, accountID, id)
}

func (s *Service) Delete(ctx context.Context, accountID, id string) error {
	c, err := s.repo.Get(ctx, accountID, id)
	if err != nil {
		return err
	}
	if c.Status == StatusRunning {
		return fmt.Errorf("%w: stop the campaign before deleting", ErrInvalidState)
	}
	return s.repo.Delete(ctx, accountID, id)
}

// Start moves the campaign to running. Automatic modes need at least
// one assigned agent; every mode needs at least one lead.
func (s *Service) Start(ctx context.Context, accountID, id string) (Campaign, error) {
	c, err := s.repo.Get(ctx, accountID, id)
	if err != nil {
		return Campaign{}, err
	}
	if c.DialMode != DialManual {
		assignments, err := s.repo.ListAssignments(ctx, id)
		if err != nil {
			return Campaign{}, err
		}
		if len(assignments) == 0 {
			return Campaign{}, fmt.Errorf("%w: assign at least one agent before starting", ErrValidation)
		}
	}
	counts, err := s.repo.CountLeads(ctx, id)
	if err != nil {
		return Campaign{}, err
	}
	if counts.Total() == 0 {
		return Campaign{}, fmt.Errorf("%w: add at least one lead before starting", ErrValidation)
	}
	c, err = s.repo.SetStatus(ctx, accountID, id,
		[]Status{StatusDraft, StatusPaused, StatusStopped}, StatusRunning, s.clock().UTC())
	if err != nil {
		return Campaign{}, err
	}
	if err := s.RecomputeStats(ctx, accountID, id); err != nil {
		return Campaign{}, err
	}
	return s.repo.Get(ctx, accountID, id)
}

// Pause suspends dialing; in-flight calls finish on their own.
func (s *Service) Pause(ctx context.Context, accountID, id string) (Campaign, error) {
	return s.repo.SetStatus(ctx, accountID, id, []Status{StatusRunning}, StatusPaused, s.clock().UTC())
}

// Stop ends the campaign. A stopped campaign can be started again.
func (s *Service) Stop(ctx context.Context, accountID, id string) (Campaign, error) {
	return s.repo.SetStatus(ctx, accountID, id,
		[]Status{StatusRunning, StatusPaused}, StatusStopped, s.clock().UTC())
}

func (s *Service) AssignAgent(ctx context.Context, accountID, campaignID, agentID string, priority int) (Assignment, error) {
	if _, err := s.repo.Get(ctx, accountID, campaignID); err != nil {
		return Assignment{}, err
	}
	a := Assignment{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		AgentID:    agentID,
		Priority:   priority,
		CreatedAt:  s.clock().UTC(),
	}
	if err := s.repo.AssignAgent(ctx, a); err != nil {
		return Assignment{}, err
	}
	return a, nil
}

func (s *Service) RemoveAgent(ctx context.Context, accountID, campaignID, agentID string) error {
	if _, err := s.repo.Get(ctx, accountID, campaignID); err != nil {
		return err
	}
	return s.repo.RemoveAgent(ctx, campaignID, agentID)
}

func (s *Service) ListAssignments(ctx context.Context, accountID, campaignID string) ([]Assignment, error) {
	if _, err := s.repo.Get(ctx, accountID, campaignID); err != nil {
		return nil, err
	}
	return s.repo.ListAssignments(ctx, campaignID)
}

// AgentIDs returns the ids of agents assigned to the campaign in
// priority order.
func (s *Service) AgentIDs(ctx context.Context, campaignID string) ([]string, error) {
	assignments, err := s.repo.ListAssignments(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(assignments))
	for i, a := range assignments {
		ids[i] = a.AgentID
	}
	return ids, nil
}

// Enroll adds one contact to the campaign. A number already on the
// account's DNC list is enrolled directly in the dnc state so it is
// visible but never dialed.
func (s *Service) Enroll(ctx context.Context, accountID, campaignID, contactID, phone string) (Lead, error) {
	c, err := s.repo.Get(ctx, accountID, campaignID)
	if err != nil {
		return Lead{}, err
	}
	if _, err := s.contacts.Get(ctx, accountID, contactID); err != nil {
		return Lead{}, fmt.Errorf("%w: contact not found in this account", ErrValidation)
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return Lead{}, fmt.Errorf("%w: phone is required", ErrValidation)
	}
	status := LeadPending
	blocked, err := s.dnc.IsBlocked(ctx, accountID, phone)
	if err != nil {
		return Lead{}, err
	}
	if blocked {
		status = LeadDnc
	}
	now := s.clock().UTC()
	l := Lead{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		ContactID:  contactID,
		Phone:      phone,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.AddLead(ctx, l); err != nil {
		return Lead{}, err
	}
	if err := s.RecomputeStats(ctx, accountID, c.ID); err != nil {
		return Lead{}, err
	}
	return l, nil
}

// EnrollList bulk-enrolls every contact of a contact list, extracting
// the phone from the named contact field. Contacts already enrolled
// or without a usable number are skipped.
func (s *Service) EnrollList(ctx context.Context, accountID, campaignID, listID, phoneField string) (EnrollmentSummary, error) {
	c, err := s.repo.Get(ctx, accountID, campaignID)
	if err != nil {
		return EnrollmentSummary{}, err
	}
	if phoneField == "" {
		return EnrollmentSummary{}, fmt.Errorf("%w: phone_field is required", ErrValidation)
	}
	list, err := s.contacts.ListByList(ctx, accountID, listID)
	if err != nil {
		return EnrollmentSummary{}, err
	}
	if len(list) == 0 {
		return EnrollmentSummary{}, fmt.Errorf("%w: no contacts found in list", ErrNotFound)
	}

	var sum EnrollmentSummary
	sum.TotalProcessed = len(list)
	now := s.clock().UTC()
	for _, contact := range list {
		enrolled, err := s.repo.HasLeadForContact(ctx, campaignID, contact.ID)
		if err != nil {
			return sum, err
		}
		if enrolled {
			sum.Skipped++
			continue
		}
		phone := contact.Phone(phoneField)
		if phone == "" {
			sum.Skipped++
			continue
		}
		status := LeadPending
		blocked, err := s.dnc.IsBlocked(ctx, accountID, phone)
		if err != nil {
			return sum, err
		}
		if blocked {
			status = LeadDnc
		}
		l := Lead{
			ID:         uuid.NewString(),
			CampaignID: campaignID,
			ContactID:  contact.ID,
			Phone:      phone,
			Status:     status,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.repo.AddLead(ctx, l); err != nil {
			return sum, err
		}
		if blocked {
			sum.Dnc++
		} else {
			sum.Added++
		}
	}
	if err := s.RecomputeStats(ctx, accountID, c.ID); err != nil {
		return sum, err
	}
	return sum, nil
}

func (s *Service) ListLeads(ctx context.Context, accountID, campaignID string, status LeadStatus, limit, offset int) ([]Lead, int, error) {
	if _, err := s.repo.Get(ctx, accountID, campaignID); err != nil {
		return nil, 0, err
	}
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown lead status %q", ErrValidation, status)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListLeads(ctx, campaignID, status, limit, offset)
}

// RecomputeStats refreshes the denormalized lead counters on the
// campaign row. Contacted counts include completed leads.
func (s *Service) RecomputeStats(ctx context.Context, accountID, campaignID string) error {
	counts, err := s.repo.CountLeads(ctx, campaignID)
	if err != nil {
		return err
	}
	contacted := counts[LeadContacted] + counts[LeadCompleted]
	return s.repo.SetCachedStats(ctx, accountID, campaignID, counts.Total(), contacted, counts[LeadPending])
}

func validateInput(in Input) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if in.DialMode != "" && !in.DialMode.Valid() {
		return fmt.Errorf("%w: unknown dial mode %q", ErrValidation, in.DialMode)
	}
	if (in.StartTime == "") != (in.EndTime == "") {
		return fmt.Errorf("%w: start_time and end_time must be set together", ErrValidation)
	}
	for _, t := range []string{in.StartTime, in.EndTime} {
		if t == "" {
			continue
		}
		if _, err := time.Parse("15:04", t); err != nil {
			return fmt.Errorf("%w: schedule times must be in HH:MM form", ErrValidation)
		}
	}
	for _, d := range in.Weekdays {
		if d < 1 || d > 7 {
			return fmt.Errorf("%w: weekdays must be 1 (Monday) through 7 (Sunday)", ErrValidation)
		}
	}
	if in.Timezone != "" {
		if _, err := time.LoadLocation(in.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrValidation, in.Timezone)
		}
	}
	// Zero means "use the default"; anything else below 1 would make
	// predictive mode dial fewer calls than agents on duty.
	if in.PredictiveRatio != 0 && in.PredictiveRatio < 1 {
		return fmt.Errorf("%w: predictive_ratio must be at least 1", ErrValidation)
	}
	return nil
}

func dialModeOr(m, def DialMode) DialMode {
	if m == "" {
		return def
	}
	return m
}

func intOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func floatOr(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func defaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
