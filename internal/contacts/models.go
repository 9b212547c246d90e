package contacts

import (
	"strings"
	"time"
)

// Contact is a stored CRM record. The CRM side of the system owns the
// full custom-field machinery; the dialer only reads the field values
// it needs (the phone number to dial) during campaign enrollment.
type Contact struct {
	ID        string `json:"id" db:"id"`
	AccountID string `json:"account_id" db:"account_id"`

	// ListID groups contacts by the import list/batch they came from.
	ListID string `json:"list_id,omitempty" db:"list_id"`

	// Fields maps field code to stored value.
	Fields map[string]string `json:"fields" db:"fields"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Phone extracts the value of the given phone field, trimmed.
// Returns "" when the field is absent or blank.
func (c Contact) Phone(fieldCode string) string {
	if c.Fields == nil {
		return ""
	}
	return strings.TrimSpace(c.Fields[fieldCode])
}
