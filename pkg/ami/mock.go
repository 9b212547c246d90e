package ami

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MockClient is a deterministic in-memory AMI implementation.
// Every originate succeeds with a generated "mock-" unique id; responses
// carry Mock=true so callers can tell degraded mode apart from a live
// PBX in logs and metrics.
type MockClient struct {
	mu         sync.Mutex
	originates []OriginateRequest
	hangups    []string

	// FailNext forces the next originate to return a protocol error.
	FailNext bool
	// FailMessage is the protocol error text used when FailNext is set.
	FailMessage string
}

func NewMockClient() *MockClient { return &MockClient{} }

// MockDial is a DialFunc returning a shared MockClient per call.
func MockDial(mc *MockClient) DialFunc {
	return func(ctx context.Context, node NodeConfig) (Client, error) {
		return mc, nil
	}
}

func (m *MockClient) Originate(ctx context.Context, req OriginateRequest) (Response, error) {
	if err := req.validate(); err != nil {
		return Response{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNext {
		m.FailNext = false
		msg := m.FailMessage
		if msg == "" {
			msg = "Originate failed"
		}
		return Response{Success: false, Message: msg, Mock: true}, nil
	}

	m.originates = append(m.originates, req)
	return Response{
		Success:  true,
		UniqueID: "mock-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Message:  "Originate successfully queued (mock)",
		Mock:     true,
	}, nil
}

func (m *MockClient) Hangup(ctx context.Context, channel string) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hangups = append(m.hangups, channel)
	return Response{Success: true, Message: "Hungup (mock)", Mock: true}, nil
}

func (m *MockClient) CoreStatus(ctx context.Context) (Response, error) {
	return Response{
		Success: true,
		Fields:  map[string]string{"CoreCurrentCalls": "0"},
		Mock:    true,
	}, nil
}

func (m *MockClient) Close() error { return nil }

// Originates returns a copy of the captured originate requests.
func (m *MockClient) Originates() []OriginateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OriginateRequest, len(m.originates))
	copy(out, m.originates)
	return out
}

// Hangups returns a copy of the captured hangup channels.
func (m *MockClient) Hangups() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.hangups))
	copy(out, m.hangups)
	return out
}
