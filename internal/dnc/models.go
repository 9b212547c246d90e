// Package dnc maintains per-account do-not-call lists and answers the
// single question the dialer asks before every origination: is this
// number blocked.
package dnc

import "time"

type Entry struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Phone     string    `json:"phone"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
