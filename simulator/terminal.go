package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/kilianp07/kioskpower/core/mqtt"
	"github.com/kilianp07/kioskpower/core/powerplan"
)

// SimulatedTerminal subscribes to its plan topic, keeps the last plan and
// acknowledges every plan it receives.
type SimulatedTerminal struct {
	UniqueID    string
	Broker      string
	TopicPrefix string
	AckTopic    string
	Strategy    AckStrategy

	mu    sync.Mutex
	last  coremqtt.Plan
	plans int
	ackCh chan string
}

// NewSimulatedTerminal creates a terminal.
func NewSimulatedTerminal(uniqueID, broker, prefix, ackTopic string, strat AckStrategy) *SimulatedTerminal {
	return &SimulatedTerminal{
		UniqueID:    uniqueID,
		Broker:      broker,
		TopicPrefix: prefix,
		AckTopic:    ackTopic,
		Strategy:    strat,
		ackCh:       make(chan string, 16),
	}
}

// Topic is the plan topic of the terminal.
func (t *SimulatedTerminal) Topic() string { return fmt.Sprintf("%s/%s", t.TopicPrefix, t.UniqueID) }

// Run connects to the broker and listens for plans until ctx is done.
func (t *SimulatedTerminal) Run(ctx context.Context) error {
	cli, err := newMQTTClient(t.Broker, "sim-"+t.UniqueID)
	if err != nil {
		return err
	}
	go t.worker(ctx, cli)
	if token := cli.Subscribe(t.Topic(), 1, t.onPlan); token.Wait() && token.Error() != nil {
		cli.Disconnect(250)
		return token.Error()
	}
	log.Printf("%s: listening on %s", t.UniqueID, t.Topic())
	<-ctx.Done()
	cli.Disconnect(250)
	return nil
}

func (t *SimulatedTerminal) onPlan(_ paho.Client, msg paho.Message) {
	plan, err := t.handle(msg.Payload())
	if err != nil {
		log.Printf("%s: %v", t.UniqueID, err)
		return
	}
	select {
	case t.ackCh <- plan.CommandID:
	default:
		log.Printf("%s: ack queue full, dropping plan %s", t.UniqueID, plan.CommandID)
	}
}

// handle decodes a plan and records it as the current one.
func (t *SimulatedTerminal) handle(payload []byte) (coremqtt.Plan, error) {
	var plan coremqtt.Plan
	if err := json.Unmarshal(payload, &plan); err != nil {
		return plan, fmt.Errorf("decode plan: %w", err)
	}
	if plan.CommandID == "" {
		return plan, fmt.Errorf("plan without command_id")
	}
	sort.SliceStable(plan.Actions, func(i, j int) bool { return plan.Actions[i].At < plan.Actions[j].At })
	t.mu.Lock()
	t.last = plan
	t.plans++
	t.mu.Unlock()
	log.Printf("%s: plan for %s with %d actions%s", t.UniqueID, plan.Date, len(plan.Actions), describe(plan.Actions))
	return plan, nil
}

func describe(steps []powerplan.Step) string {
	if len(steps) == 0 {
		return " (off)"
	}
	return fmt.Sprintf(" (%s %s .. %s %s)", steps[0].At, steps[0].Action, steps[len(steps)-1].At, steps[len(steps)-1].Action)
}

// Last returns the most recent plan and the number received.
func (t *SimulatedTerminal) Last() (coremqtt.Plan, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.plans
}

func (t *SimulatedTerminal) worker(ctx context.Context, cli publisher) {
	for {
		select {
		case cmdID := <-t.ackCh:
			t.Strategy.Ack(ctx, cli, t.AckTopic, cmdID)
		case <-ctx.Done():
			return
		}
	}
}
