package mqtt

import (
	"fmt"
	"sync"
	"time"

	coremqtt "github.com/kilianp07/kioskpower/core/mqtt"
)

// Publisher mirrors the core mqtt.Publisher interface.
type Publisher = coremqtt.Publisher

// MockPublisher records plans in memory. Terminals listed in FailIDs fail to
// publish; terminals listed in NoAck never acknowledge.
type MockPublisher struct {
	Plans   map[string]coremqtt.Plan
	FailIDs map[string]bool
	NoAck   map[string]bool
	acks    map[string]bool
	mu      sync.Mutex
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Plans:   make(map[string]coremqtt.Plan),
		FailIDs: make(map[string]bool),
		NoAck:   make(map[string]bool),
		acks:    make(map[string]bool),
	}
}

// SendPlan records the plan or returns an error if configured to fail.
func (m *MockPublisher) SendPlan(uniqueID string, plan coremqtt.Plan) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[uniqueID] {
		return "", fmt.Errorf("publish failed")
	}
	if plan.CommandID == "" {
		plan.CommandID = fmt.Sprintf("cmd-%s-%s", uniqueID, plan.Date)
	}
	m.Plans[uniqueID] = plan
	m.acks[plan.CommandID] = !m.NoAck[uniqueID]
	return plan.CommandID, nil
}

// WaitForAck answers immediately from the recorded result.
func (m *MockPublisher) WaitForAck(commandID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	ok, exists := m.acks[commandID]
	m.mu.Unlock()
	if !exists {
		return false, coremqtt.ErrUnknownCommand
	}
	if !ok {
		return false, coremqtt.ErrAckTimeout
	}
	return true, nil
}

// Sent returns the plan recorded for a terminal.
func (m *MockPublisher) Sent(uniqueID string) (coremqtt.Plan, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Plans[uniqueID]
	return p, ok
}
