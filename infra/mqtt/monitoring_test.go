package mqtt

import (
	"fmt"
	"testing"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/kioskpower/core/monitoring"
)

func TestSendPlanErrorCaptured(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), fmt.Errorf("net fail"), fmt.Errorf("net fail"), fmt.Errorf("net fail")}}
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	defer func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } }()
	mon := &monitoring.Recorder{}
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", AckTopic: "a", MaxRetries: 0, BackoffMS: 1}
	cli, err := NewPahoClient(cfg, mon)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	_, err = cli.SendPlan("pi-7", samplePlan())
	if err == nil {
		t.Fatalf("expected error")
	}
	errs, tags := mon.Captured()
	if len(errs) != 1 {
		t.Fatalf("error not captured")
	}
	if tags[0]["unique_id"] != "pi-7" || tags[0]["module"] != "mqtt" {
		t.Fatalf("tags not set: %v", tags[0])
	}
	if len(mc.published) != 4 {
		t.Fatalf("expected 4 attempts, got %d", len(mc.published))
	}
}
