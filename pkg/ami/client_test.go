package ami

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

// fakeAMIServer accepts one connection and answers every action block
// with the given response headers (plus the caller's ActionID).
func fakeAMIServer(t *testing.T, respond map[string]string) net.Addr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("Asterisk Call Manager/5.0\r\n"))
		r := bufio.NewReader(conn)
		for {
			fields := map[string]string{}
			for {
				line, err := r.ReadString('\n')
				if err != nil {
					return
				}
				line = strings.TrimRight(line, "\r\n")
				if line == "" {
					break
				}
				if k, v, ok := strings.Cut(line, ":"); ok {
					fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
				}
			}
			var b strings.Builder
			if fields["Action"] == "Login" {
				b.WriteString("Response: Success\r\n")
				b.WriteString("Message: Authentication accepted\r\n")
			} else {
				for k, v := range respond {
					b.WriteString(k + ": " + v + "\r\n")
				}
			}
			if id := fields["ActionID"]; id != "" {
				b.WriteString("ActionID: " + id + "\r\n")
			}
			b.WriteString("\r\n")
			_, _ = conn.Write([]byte(b.String()))
		}
	}()
	return ln.Addr()
}

func nodeFor(addr net.Addr) NodeConfig {
	tcp := addr.(*net.TCPAddr)
	return NodeConfig{Host: tcp.IP.String(), Port: tcp.Port, Username: "dialer", Secret: "s3cret"}
}

func TestDialAndOriginate(t *testing.T) {
	addr := fakeAMIServer(t, map[string]string{
		"Response": "Success",
		"Uniqueid": "1700000000.42",
		"Message":  "Originate successfully queued",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, nodeFor(addr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	resp, err := c.Originate(ctx, OriginateRequest{
		Channel:     "PJSIP/1001",
		Application: "Dial",
		Data:        "PJSIP/5491111@carrier,30,tT",
		CallerID:    "5491111",
		Timeout:     30 * time.Second,
		Variables:   map[string]string{"CALL_RECORD_ID": "cr-1"},
	})
	if err != nil {
		t.Fatalf("originate: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.UniqueID != "1700000000.42" {
		t.Fatalf("unexpected uniqueid %q", resp.UniqueID)
	}
}

func TestOriginateProtocolError(t *testing.T) {
	addr := fakeAMIServer(t, map[string]string{
		"Response": "Error",
		"Message":  "Extension does not exist",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, nodeFor(addr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	resp, err := c.Originate(ctx, OriginateRequest{Channel: "PJSIP/1001", Context: "from-internal", Exten: "5491111"})
	if err != nil {
		t.Fatalf("originate: %v", err)
	}
	if resp.Success {
		t.Fatalf("expected protocol error response")
	}
	if resp.Message != "Extension does not exist" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestOriginateValidates(t *testing.T) {
	mc := &MockClient{}
	if _, err := mc.Originate(context.Background(), OriginateRequest{}); err == nil {
		t.Fatalf("expected validation error for empty request")
	}
}

func TestMockClientDistinguishesItself(t *testing.T) {
	mc := &MockClient{}
	resp, err := mc.Originate(context.Background(), OriginateRequest{Channel: "PJSIP/1001", Application: "Dial", Data: "x"})
	if err != nil {
		t.Fatalf("originate: %v", err)
	}
	if !resp.Mock || !resp.Success {
		t.Fatalf("expected mock success, got %+v", resp)
	}
	if !strings.HasPrefix(resp.UniqueID, "mock-") {
		t.Fatalf("expected mock- uniqueid, got %q", resp.UniqueID)
	}
	if got := len(mc.Originates()); got != 1 {
		t.Fatalf("expected 1 captured originate, got %d", got)
	}
}
