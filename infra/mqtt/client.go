package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremqtt "github.com/kilianp07/kioskpower/core/mqtt"
	"github.com/kilianp07/kioskpower/core/monitoring"
	"github.com/kilianp07/kioskpower/infra/logger"
)

// DefaultTopicPrefix is the topic root under which each terminal listens on
// "<prefix>/<unique id>".
const DefaultTopicPrefix = "schedule"

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Enabled     bool            `koanf:"enabled"`
	Broker      string          `koanf:"broker"`
	ClientID    string          `koanf:"client_id"`
	Username    string          `koanf:"username"`
	Password    string          `koanf:"password"`
	TopicPrefix string          `koanf:"topic_prefix"`
	AckTopic    string          `koanf:"ack_topic"`
	AckTimeout  time.Duration   `koanf:"ack_timeout"`
	UseTLS      bool            `koanf:"use_tls"`
	ClientCert  string          `koanf:"client_cert"`
	ClientKey   string          `koanf:"client_key"`
	CABundle    string          `koanf:"ca_bundle"`
	AuthMethod  string          `koanf:"auth_method"`
	QoS         map[string]byte `koanf:"qos"`
	LWTTopic    string          `koanf:"lwt_topic"`
	LWTPayload  string          `koanf:"lwt_payload"`
	LWTQoS      byte            `koanf:"lwt_qos"`
	LWTRetain   bool            `koanf:"lwt_retain"`
	MaxRetries  int             `koanf:"max_retries"`
	BackoffMS   int             `koanf:"backoff_ms"`
	TLSConfig   *tls.Config     `koanf:"-"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Broker == "" {
		c.Broker = "tcp://localhost:1883"
	}
	if c.ClientID == "" {
		c.ClientID = "kioskpower"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	if c.AckTopic == "" {
		c.AckTopic = c.TopicPrefix + "/ack"
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = 5 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS == 0 {
		c.BackoffMS = 100
	}
}

// Validate checks the configuration when publishing is enabled.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	switch c.AuthMethod {
	case "", "username_password", "mtls", "both":
	default:
		return fmt.Errorf("mqtt.auth_method %q is not supported", c.AuthMethod)
	}
	if c.UseTLS && (c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "") && c.TLSConfig == nil {
		return fmt.Errorf("mqtt.use_tls requires client_cert, client_key and ca_bundle")
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient implements the core Publisher interface using Eclipse Paho.
type PahoClient struct {
	cli        pahoClient
	ackTopic   string
	prefix     string
	qos        map[string]byte
	monitor    monitoring.Monitor
	log        logger.Logger
	maxRetries int
	backoff    time.Duration

	mu       sync.Mutex
	ackChans map[string]chan struct{}
}

var _ coremqtt.Publisher = (*PahoClient)(nil)

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker and subscribes to the ACK topic.
// Publish failures are reported to mon when it is not nil.
func NewPahoClient(cfg Config, mon monitoring.Monitor) (*PahoClient, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	pc := &PahoClient{
		ackTopic:   cfg.AckTopic,
		prefix:     cfg.TopicPrefix,
		qos:        cfg.QoS,
		monitor:    monitoring.OrNop(mon),
		log:        log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		ackChans:   make(map[string]chan struct{}),
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("connected to %s", cfg.Broker)
		qos := byte(0)
		if q, ok := pc.qos["ack"]; ok {
			qos = q
		}
		if token := c.Subscribe(pc.ackTopic, qos, pc.onAck); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe %s: %v", pc.ackTopic, token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to %s", cfg.Broker)
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

func (p *PahoClient) onAck(_ paho.Client, msg paho.Message) {
	var m struct {
		CommandID string `json:"command_id"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.log.Errorf("failed to decode ack: %v", err)
		return
	}
	p.mu.Lock()
	ch, ok := p.ackChans[m.CommandID]
	if ok {
		select {
		case ch <- struct{}{}:
		default:
		}
		p.log.Infof("received ack %s", m.CommandID)
	}
	p.mu.Unlock()
}

// SendPlan publishes the plan on "<prefix>/<uniqueID>" and returns the
// command identifier used for acknowledgment tracking. The ACK channel is
// registered before publishing so that a fast terminal cannot be missed.
func (p *PahoClient) SendPlan(uniqueID string, plan coremqtt.Plan) (string, error) {
	if plan.CommandID == "" {
		plan.CommandID = uuid.NewString()
	}
	cmdID := plan.CommandID
	payload, err := json.Marshal(plan)
	if err != nil {
		return "", err
	}

	topic := fmt.Sprintf("%s/%s", p.prefix, uniqueID)
	qos := byte(0)
	if q, ok := p.qos["command"]; ok {
		qos = q
	}
	p.mu.Lock()
	p.ackChans[cmdID] = make(chan struct{}, 1)
	p.mu.Unlock()

	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.log.Infof("sent plan %s for %s to %s", cmdID, plan.Date, topic)
			break
		}
		p.log.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	if publishErr != nil {
		p.mu.Lock()
		delete(p.ackChans, cmdID)
		p.mu.Unlock()
		p.monitor.CaptureException(publishErr, map[string]string{
			"module":    "mqtt",
			"client_id": plan.ClientID,
			"unique_id": uniqueID,
		})
		return "", publishErr
	}
	return cmdID, nil
}

// WaitForAck blocks until an ACK for the given command ID is received or timeout.
func (p *PahoClient) WaitForAck(commandID string, timeout time.Duration) (bool, error) {
	p.mu.Lock()
	ch := p.ackChans[commandID]
	p.mu.Unlock()
	if ch == nil {
		return false, coremqtt.ErrUnknownCommand
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		p.mu.Lock()
		delete(p.ackChans, commandID)
		p.mu.Unlock()
		return true, nil
	case <-timer.C:
		p.mu.Lock()
		delete(p.ackChans, commandID)
		p.mu.Unlock()
		return false, fmt.Errorf("%w", coremqtt.ErrAckTimeout)
	}
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
