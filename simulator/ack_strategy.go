package main

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

// publisher is the subset of paho.Client used to acknowledge plans.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// AckStrategy defines how a terminal acknowledges plans.
type AckStrategy interface {
	Ack(ctx context.Context, cli publisher, ackTopic, commandID string)
}

// AutoAck sends an ACK after an optional fixed delay.
type AutoAck struct {
	Delay time.Duration
}

// Ack implements AckStrategy.
func (a AutoAck) Ack(ctx context.Context, cli publisher, ackTopic, commandID string) {
	if !wait(ctx, a.Delay) {
		return
	}
	publishAck(cli, ackTopic, commandID)
}

// RandomAck drops acknowledgments with the configured probability and
// waits for the specified delay before sending.
type RandomAck struct {
	Delay    time.Duration
	DropRate float64
}

// Ack implements AckStrategy.
func (r RandomAck) Ack(ctx context.Context, cli publisher, ackTopic, commandID string) {
	if r.DropRate > 0 && rng.Float64() < r.DropRate {
		log.Printf("dropping ack for %s", commandID)
		return
	}
	if !wait(ctx, r.Delay) {
		return
	}
	publishAck(cli, ackTopic, commandID)
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func publishAck(cli publisher, ackTopic, commandID string) {
	payload, err := json.Marshal(struct {
		CommandID string `json:"command_id"`
	}{CommandID: commandID})
	if err != nil {
		log.Printf("marshal ack: %v", err)
		return
	}
	token := cli.Publish(ackTopic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		log.Printf("ack publish timeout for %s", commandID)
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("publish ack error for %s: %v", commandID, err)
	}
}
