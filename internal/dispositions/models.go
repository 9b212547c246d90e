// Package dispositions holds the per-account catalog of call outcome
// codes agents pick after each call. The flags on a code drive what
// the dialer does with the lead next.
package dispositions

import "time"

type Disposition struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	// Code is the short handle agents select, e.g. SALE, NOT_INTERESTED, CALLBACK.
	Code string `json:"code"`
	Name string `json:"name"`
	// CountsAsContact marks the outcome as a successful contact for stats.
	CountsAsContact bool `json:"counts_as_contact"`
	// IsFinal means the lead needs no more attempts.
	IsFinal bool `json:"is_final"`
	// RequiresCallback means the agent must schedule a callback time.
	RequiresCallback bool      `json:"requires_callback"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}
