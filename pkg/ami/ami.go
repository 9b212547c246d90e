// Package ami is a minimal Asterisk Manager Interface (AMI) client.
//
// It covers only the actions the dialer core needs: Login, Originate,
// Hangup and CoreStatus. The Client interface is the injectable seam
// between the origination gateway and the wire protocol; MockClient is
// the deterministic in-memory implementation used in tests and in
// environments without a reachable PBX.
package ami

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// NodeConfig are the connection parameters of one PBX node.
type NodeConfig struct {
	Host     string
	Port     int
	Username string
	Secret   string
}

func (n NodeConfig) Addr() string {
	return fmt.Sprintf("%s:%d", n.Host, n.Port)
}

// Response is a single AMI response block.
type Response struct {
	// Success is true when the Response header equals "Success".
	Success bool

	ActionID string
	UniqueID string
	Message  string

	// Fields holds the raw response headers.
	Fields map[string]string

	// Mock marks responses produced by MockClient rather than a live PBX.
	Mock bool
}

// OriginateRequest describes one Originate action.
// Either Application+Data or Context/Exten/Priority must be set.
type OriginateRequest struct {
	Channel     string
	Context     string
	Exten       string
	Priority    int
	Application string
	Data        string
	CallerID    string
	Timeout     time.Duration
	Variables   map[string]string
}

func (r OriginateRequest) validate() error {
	if r.Channel == "" {
		return fmt.Errorf("ami: originate channel is required")
	}
	if r.Application == "" && r.Exten == "" {
		return fmt.Errorf("ami: originate needs application or context/exten")
	}
	return nil
}

// action converts the request into AMI action headers.
func (r OriginateRequest) action() map[string]string {
	a := map[string]string{
		"Action":  "Originate",
		"Channel": r.Channel,
		"Async":   "true",
	}
	if r.Application != "" {
		a["Application"] = r.Application
		a["Data"] = r.Data
	} else {
		a["Context"] = r.Context
		a["Exten"] = r.Exten
		prio := r.Priority
		if prio <= 0 {
			prio = 1
		}
		a["Priority"] = fmt.Sprintf("%d", prio)
	}
	if r.CallerID != "" {
		a["CallerID"] = r.CallerID
	}
	if r.Timeout > 0 {
		a["Timeout"] = fmt.Sprintf("%d", r.Timeout.Milliseconds())
	}
	if len(r.Variables) > 0 {
		keys := make([]string, 0, len(r.Variables))
		for k := range r.Variables {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+r.Variables[k])
		}
		a["Variable"] = strings.Join(pairs, ",")
	}
	return a
}

// Client is the protocol seam the origination gateway depends on.
// Implementations must not panic across this boundary; protocol-level
// rejections come back as Response{Success: false}.
type Client interface {
	Originate(ctx context.Context, req OriginateRequest) (Response, error)
	Hangup(ctx context.Context, channel string) (Response, error)
	CoreStatus(ctx context.Context) (Response, error)
	Close() error
}

// DialFunc opens a Client for one PBX node. The gateway holds a DialFunc
// rather than a Client so each origination can reach the node the
// agent/campaign is pinned to.
type DialFunc func(ctx context.Context, node NodeConfig) (Client, error)
