// Package agents tracks call-center agents, their SIP endpoints and
// their live availability state. The state machine is what the dialer
// leans on: an agent is only handed a call while available (or in
// wrap-up for manual dials), and holds a current call id exactly while
// ringing or on a call.
package agents

import "time"

type Status string

const (
	StatusOffline   Status = "offline"
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
	StatusRinging   Status = "ringing"
	StatusOnCall    Status = "on_call"
	StatusWrapUp    Status = "wrap_up"
	StatusPaused    Status = "paused"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOffline, StatusAvailable, StatusBusy, StatusRinging,
		StatusOnCall, StatusWrapUp, StatusPaused:
		return true
	}
	return false
}

// OnPhone reports whether the status implies an active call leg.
func (s Status) OnPhone() bool {
	return s == StatusRinging || s == StatusOnCall
}

type Agent struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	UserID    string `json:"user_id,omitempty"`
	// PbxNodeID binds the agent's extension to one Asterisk node.
	PbxNodeID   string `json:"pbx_node_id,omitempty"`
	Name        string `json:"name"`
	Extension   string `json:"extension"`
	SIPPassword string `json:"-"`
	Status      Status `json:"status"`
	PauseReason string `json:"pause_reason,omitempty"`
	// CurrentCallID is set while Status is ringing or on_call.
	CurrentCallID      string    `json:"current_call_id,omitempty"`
	Skills             []string  `json:"skills,omitempty"`
	MaxConcurrentCalls int       `json:"max_concurrent_calls"`
	WrapUpSeconds      int       `json:"wrap_up_seconds"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
}
