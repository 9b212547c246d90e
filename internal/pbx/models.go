package pbx

import (
	"fmt"
	"time"
)

// HealthStatus reflects the last AMI reachability probe of a node.
type HealthStatus string

const (
	HealthUnknown HealthStatus = "unknown"
	HealthOK      HealthStatus = "ok"
	HealthError   HealthStatus = "error"
)

// Provider is an upstream carrier grouping one or more trunks.
type Provider struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Name      string    `json:"name"`
	Country   string    `json:"country,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Trunk holds the outbound SIP credentials and dial rewriting rules
// for one carrier endpoint.
type Trunk struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"account_id"`
	ProviderID    string    `json:"provider_id"`
	Name          string    `json:"name"`
	Host          string    `json:"host"`
	Port          int       `json:"port"`
	Username      string    `json:"username,omitempty"`
	Password      string    `json:"-"`
	Transport     string    `json:"transport"`
	Codecs        string    `json:"codecs"`
	CallerID      string    `json:"caller_id,omitempty"`
	MaxConcurrent int       `json:"max_concurrent"`
	CPS           int       `json:"cps"`
	Prefix        string    `json:"prefix,omitempty"`
	StripDigits   int       `json:"strip_digits"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// RewriteNumber applies the trunk's strip-then-prefix rule to a
// destination number.
func (t Trunk) RewriteNumber(number string) string {
	if t.StripDigits > 0 && len(number) > t.StripDigits {
		number = number[t.StripDigits:]
	}
	return t.Prefix + number
}

// Node is one Asterisk instance reachable over AMI.
type Node struct {
	ID              string       `json:"id"`
	AccountID       string       `json:"account_id"`
	Name            string       `json:"name"`
	Host            string       `json:"host"`
	AMIPort         int          `json:"ami_port"`
	AMIUser         string       `json:"ami_user"`
	AMIPassword     string       `json:"-"`
	Active          bool         `json:"active"`
	HealthStatus    HealthStatus `json:"health_status"`
	LastHealthCheck *time.Time   `json:"last_health_check,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Addr returns the host:port AMI endpoint of the node.
func (n Node) Addr() string {
	return fmt.Sprintf("%s:%d", n.Host, n.AMIPort)
}
