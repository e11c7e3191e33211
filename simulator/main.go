package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Config holds parameters for the simulator.
type Config struct {
	Broker      string
	Terminals   string
	TopicPrefix string
	AckTopic    string
	AckLatency  time.Duration
	DropRate    float64
	Verbose     bool
}

// Validate checks the flags.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	if len(c.ids()) == 0 {
		return fmt.Errorf("at least one terminal id is required")
	}
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("drop-rate must be within [0, 1]")
	}
	return nil
}

func (c Config) ids() []string {
	var out []string
	for _, id := range strings.Split(c.Terminals, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func main() {
	cfg := parseFlags()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if !cfg.Verbose {
		log.SetOutput(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	strat := RandomAck{Delay: cfg.AckLatency, DropRate: cfg.DropRate}
	var wg sync.WaitGroup
	for _, id := range cfg.ids() {
		term := NewSimulatedTerminal(id, cfg.Broker, cfg.TopicPrefix, cfg.AckTopic, strat)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := term.Run(ctx); err != nil {
				log.Printf("%s: %v", id, err)
			}
		}()
	}
	wg.Wait()
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flag.StringVar(&cfg.Terminals, "terminals", "term-01", "comma separated terminal unique ids")
	flag.StringVar(&cfg.TopicPrefix, "topic-prefix", "schedule", "plan topic prefix")
	flag.StringVar(&cfg.AckTopic, "ack-topic", "schedule/ack", "ack topic")
	flag.DurationVar(&cfg.AckLatency, "ack-latency", 0, "ack latency")
	flag.Float64Var(&cfg.DropRate, "drop-rate", 0, "ack drop rate")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "enable verbose logging")
	flag.Parse()
	return cfg
}
