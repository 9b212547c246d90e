// Package cdr is the call detail ledger. Every origination creates a
// record up front; events append to an ordered timeline and the
// record is finalized exactly once when the call ends.
package cdr

import (
	"encoding/json"
	"time"
)

type Result string

const (
	ResultPending    Result = "pending"
	ResultAnswered   Result = "answered"
	ResultNoAnswer   Result = "no_answer"
	ResultBusy       Result = "busy"
	ResultFailed     Result = "failed"
	ResultCongestion Result = "congestion"
	ResultAbandoned  Result = "abandoned"
	ResultRejected   Result = "rejected"
	ResultTimeout    Result = "timeout"
)

func (r Result) Valid() bool {
	switch r {
	case ResultPending, ResultAnswered, ResultNoAnswer, ResultBusy,
		ResultFailed, ResultCongestion, ResultAbandoned, ResultRejected, ResultTimeout:
		return true
	}
	return false
}

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

type CallRecord struct {
	ID             string `json:"id"`
	AccountID      string `json:"account_id"`
	CampaignID     string `json:"campaign_id,omitempty"`
	CampaignLeadID string `json:"campaign_lead_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
	TrunkID        string `json:"trunk_id,omitempty"`

	// UniqueID is the PBX-side call identifier, set once the
	// origination is accepted.
	UniqueID string `json:"uniqueid,omitempty"`
	LinkedID string `json:"linkedid,omitempty"`
	CallerID string `json:"caller_id,omitempty"`
	// Destination is the dialed number as enrolled, before trunk
	// rewriting.
	Destination string `json:"destination"`
	Extension   string `json:"extension,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	// Duration is total call seconds, Billsec the seconds after
	// answer, WaitTime the ringing seconds before answer.
	Duration int `json:"duration"`
	Billsec  int `json:"billsec"`
	WaitTime int `json:"wait_time"`

	Result          Result `json:"result"`
	HangupCause     int    `json:"hangup_cause,omitempty"`
	HangupCauseText string `json:"hangup_cause_text,omitempty"`

	DispositionID   string `json:"disposition_id,omitempty"`
	DispositionNote string `json:"disposition_note,omitempty"`

	RecordingPath string `json:"recording_path,omitempty"`
	RecordingURL  string `json:"recording_url,omitempty"`

	Direction Direction `json:"direction"`
	CreatedAt time.Time `json:"created_at"`
}

// Ended reports whether the record has been finalized. Finalized
// records only accept disposition stamps.
func (r CallRecord) Ended() bool { return r.EndedAt != nil }

// CallEvent is one entry in a call's timeline.
type CallEvent struct {
	ID           string `json:"id"`
	CallRecordID string `json:"call_record_id"`
	// Event names the step: originate, ringing, answered, bridged,
	// hangup, failed, recording_ready, disposition.
	Event     string          `json:"event"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ListFilter narrows CDR listings.
type ListFilter struct {
	CampaignID string
	AgentID    string
	Result     Result
	Limit      int
	Offset     int
}
