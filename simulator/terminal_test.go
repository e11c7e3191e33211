package main

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/kilianp07/kioskpower/core/mqtt"
	"github.com/kilianp07/kioskpower/core/powerplan"
)

type doneToken struct{ done chan struct{} }

func newDoneToken() doneToken {
	ch := make(chan struct{})
	close(ch)
	return doneToken{done: ch}
}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{}        { return t.done }
func (doneToken) Error() error                   { return nil }

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload.([]byte))
	return newDoneToken()
}

func TestHandlePlanKeepsLast(t *testing.T) {
	term := NewSimulatedTerminal("term-01", "tcp://x", "schedule", "schedule/ack", AutoAck{})
	if term.Topic() != "schedule/term-01" {
		t.Fatalf("unexpected topic %s", term.Topic())
	}
	payload, _ := json.Marshal(coremqtt.Plan{
		CommandID: "c1",
		ClientID:  "client",
		Date:      "2025-09-01",
		Actions: []powerplan.Step{
			{At: "22:30", Action: powerplan.ActionKillKiosk},
			{At: "08:50", Action: powerplan.ActionPowerOn},
		},
	})
	plan, err := term.handle(payload)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if plan.Actions[0].Action != powerplan.ActionPowerOn {
		t.Fatalf("actions not ordered: %#v", plan.Actions)
	}
	last, n := term.Last()
	if n != 1 || last.CommandID != "c1" {
		t.Fatalf("unexpected last plan %#v (%d)", last, n)
	}

	if _, err := term.handle([]byte(`{"date":"2025-09-01"}`)); err == nil {
		t.Fatalf("expected error for plan without command id")
	}
	if _, err := term.handle([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestAckStrategies(t *testing.T) {
	pub := &fakePublisher{}
	AutoAck{}.Ack(context.Background(), pub, "schedule/ack", "c1")
	RandomAck{DropRate: 0}.Ack(context.Background(), pub, "schedule/ack", "c2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	AutoAck{Delay: time.Hour}.Ack(ctx, pub, "schedule/ack", "c3")

	if len(pub.payloads) != 2 {
		t.Fatalf("expected 2 acks, got %d", len(pub.payloads))
	}
	var m struct {
		CommandID string `json:"command_id"`
	}
	if err := json.Unmarshal(pub.payloads[1], &m); err != nil || m.CommandID != "c2" {
		t.Fatalf("unexpected ack %s", pub.payloads[1])
	}
	if pub.topics[0] != "schedule/ack" {
		t.Fatalf("unexpected topic %s", pub.topics[0])
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Broker: "tcp://localhost:1883", Terminals: " a, ,b "}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ids := cfg.ids(); len(ids) != 2 || ids[1] != "b" {
		t.Fatalf("unexpected ids %v", ids)
	}
	if err := (Config{Broker: "x"}).Validate(); err == nil {
		t.Fatalf("expected error without terminals")
	}
}
