package ami

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// netClient speaks the AMI wire protocol over a TCP connection.
//
// AMI framing: the server greets with a single banner line, then both
// sides exchange blocks of "Key: Value" CRLF lines terminated by an
// empty line. Responses are correlated by ActionID.
type netClient struct {
	conn net.Conn
	r    *bufio.Reader

	// mu serializes action/response exchanges; AMI allows pipelining but
	// the dialer sends one action per call and correlation stays trivial.
	mu sync.Mutex
}

// Dial connects to a PBX node and authenticates.
func Dial(ctx context.Context, node NodeConfig) (Client, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", node.Addr())
	if err != nil {
		return nil, fmt.Errorf("ami: connect %s: %w", node.Addr(), err)
	}

	c := &netClient{conn: conn, r: bufio.NewReader(conn)}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	// Banner, e.g. "Asterisk Call Manager/5.0".
	if _, err := c.r.ReadString('\n'); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ami: read banner: %w", err)
	}

	resp, err := c.roundTrip(ctx, map[string]string{
		"Action":   "Login",
		"Username": node.Username,
		"Secret":   node.Secret,
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if !resp.Success {
		_ = conn.Close()
		return nil, fmt.Errorf("ami: login rejected: %s", resp.Message)
	}

	_ = conn.SetDeadline(time.Time{})
	return c, nil
}

func (c *netClient) Originate(ctx context.Context, req OriginateRequest) (Response, error) {
	if err := req.validate(); err != nil {
		return Response{}, err
	}
	return c.roundTrip(ctx, req.action())
}

func (c *netClient) Hangup(ctx context.Context, channel string) (Response, error) {
	if channel == "" {
		return Response{}, fmt.Errorf("ami: hangup channel is required")
	}
	return c.roundTrip(ctx, map[string]string{
		"Action":  "Hangup",
		"Channel": channel,
	})
}

func (c *netClient) CoreStatus(ctx context.Context) (Response, error) {
	return c.roundTrip(ctx, map[string]string{"Action": "CoreStatus"})
}

func (c *netClient) Close() error {
	return c.conn.Close()
}

func (c *netClient) roundTrip(ctx context.Context, action map[string]string) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	actionID := uuid.NewString()
	action["ActionID"] = actionID

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}

	var b strings.Builder
	// Action header goes first; Asterisk requires it to lead the block.
	b.WriteString("Action: " + action["Action"] + "\r\n")
	for k, v := range action {
		if k == "Action" {
			continue
		}
		b.WriteString(k + ": " + v + "\r\n")
	}
	b.WriteString("\r\n")

	if _, err := c.conn.Write([]byte(b.String())); err != nil {
		return Response{}, fmt.Errorf("ami: write action: %w", err)
	}

	// Read blocks until the one carrying our ActionID arrives. Unsolicited
	// event blocks can be interleaved; they are skipped.
	for {
		fields, err := c.readBlock()
		if err != nil {
			return Response{}, err
		}
		if len(fields) == 0 {
			continue
		}
		if id, ok := fields["ActionID"]; ok && id != actionID {
			continue
		}
		if _, isEvent := fields["Event"]; isEvent {
			continue
		}
		return parseResponse(fields), nil
	}
}

func (c *netClient) readBlock() (map[string]string, error) {
	fields := map[string]string{}
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("ami: read response: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return fields, nil
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
}

func parseResponse(fields map[string]string) Response {
	return Response{
		Success:  fields["Response"] == "Success",
		ActionID: fields["ActionID"],
		UniqueID: fields["Uniqueid"],
		Message:  fields["Message"],
		Fields:   fields,
	}
}
