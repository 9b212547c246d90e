// Package campaigns owns the outbound campaign lifecycle and the per
// campaign lead queue the dialer consumes. A campaign moves through
// draft, running, paused and stopped; each enrolled lead carries its
// own dial state and retry bookkeeping.
package campaigns

import "time"

type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusRunning, StatusPaused, StatusCompleted, StatusStopped:
		return true
	}
	return false
}

type DialMode string

const (
	DialManual      DialMode = "manual"
	DialProgressive DialMode = "progressive"
	DialPredictive  DialMode = "predictive"
)

func (m DialMode) Valid() bool {
	return m == DialManual || m == DialProgressive || m == DialPredictive
}

type LeadStatus string

const (
	LeadPending   LeadStatus = "pending"
	LeadDialing   LeadStatus = "dialing"
	LeadContacted LeadStatus = "contacted"
	LeadNoAnswer  LeadStatus = "no_answer"
	LeadBusy      LeadStatus = "busy"
	LeadFailed    LeadStatus = "failed"
	LeadDnc       LeadStatus = "dnc"
	LeadScheduled LeadStatus = "scheduled"
	LeadCompleted LeadStatus = "completed"
	LeadAbandoned LeadStatus = "abandoned"
)

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadPending, LeadDialing, LeadContacted, LeadNoAnswer, LeadBusy,
		LeadFailed, LeadDnc, LeadScheduled, LeadCompleted, LeadAbandoned:
		return true
	}
	return false
}

type Campaign struct {
	ID          string `json:"id"`
	AccountID   string `json:"account_id"`
	TrunkID     string `json:"trunk_id,omitempty"`
	PbxNodeID   string `json:"pbx_node_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	DialMode DialMode `json:"dial_mode"`
	// CallerID overrides the trunk's default caller id.
	CallerID string `json:"caller_id,omitempty"`
	Status   Status `json:"status"`

	// Daily calling window, both in "15:04" form. Empty means no
	// schedule restriction.
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	Timezone  string `json:"timezone"`
	// Weekdays uses ISO numbering, 1=Monday through 7=Sunday.
	Weekdays []int `json:"weekdays,omitempty"`

	MaxConcurrentCalls int `json:"max_concurrent_calls"`
	MaxRetries         int `json:"max_retries"`
	RetryDelayMinutes  int `json:"retry_delay_minutes"`
	RingTimeout        int `json:"ring_timeout"`
	AbandonTimeout     int `json:"abandon_timeout"`

	// PredictiveRatio is calls dialed per available agent in
	// predictive mode.
	PredictiveRatio float64 `json:"predictive_ratio"`

	// Cached lead counters, recomputed on enrollment, disposition and
	// start.
	TotalLeads     int `json:"total_leads"`
	LeadsContacted int `json:"leads_contacted"`
	LeadsPending   int `json:"leads_pending"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RetryDelay returns the minimum wait between attempts on one lead.
func (c Campaign) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMinutes) * time.Minute
}

// Assignment links an agent to a campaign.
type Assignment struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	AgentID    string    `json:"agent_id"`
	Priority   int       `json:"priority"`
	CreatedAt  time.Time `json:"created_at"`
}

// Lead is a contact enrolled in a campaign with its dial state.
type Lead struct {
	ID         string     `json:"id"`
	CampaignID string     `json:"campaign_id"`
	ContactID  string     `json:"contact_id"`
	Phone      string     `json:"phone"`
	Status     LeadStatus `json:"status"`
	Attempts   int        `json:"attempts"`
	// LastAttemptAt and NextAttemptAt drive retry pacing.
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`

	DispositionID   string `json:"disposition_id,omitempty"`
	DispositionNote string `json:"disposition_note,omitempty"`

	// CallbackAt is set when the lead asked to be called at a time.
	CallbackAt      *time.Time `json:"callback_at,omitempty"`
	AssignedAgentID string     `json:"assigned_agent_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Retryable reports whether the lead status allows another attempt.
func (l Lead) Retryable() bool {
	switch l.Status {
	case LeadNoAnswer, LeadBusy, LeadFailed:
		return true
	}
	return false
}

// EnrollmentSummary reports the outcome of a bulk enrollment.
type EnrollmentSummary struct {
	Added          int `json:"added"`
	Skipped        int `json:"skipped"`
	Dnc            int `json:"dnc"`
	TotalProcessed int `json:"total_processed"`
}
