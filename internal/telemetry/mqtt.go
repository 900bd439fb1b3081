package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/tilehook-project/tilehook/internal/config"
	"github.com/tilehook-project/tilehook/internal/events"
	"github.com/tilehook-project/tilehook/internal/util"
)

// Topic suffixes under the configured prefix.
const (
	TopicStats  = "stats"
	TopicEvents = "events"
	TopicAdmin  = "admin"
)

// forwardedEvents are republished to <prefix>/events/<type>.
var forwardedEvents = []events.EventType{
	events.EventPacketDropped,
	events.EventCodecError,
	events.EventUnknownKind,
	events.EventCaptureClosed,
	events.EventCaptureCleaned,
	events.EventStatsFlushed,
}

// MQTTPublisher publishes bus events and periodic stats to an MQTT broker.
type MQTTPublisher struct {
	cfg      config.MQTTConfig
	eventBus *events.EventBus
	stats    *Stats
	interval time.Duration
	client   mqtt.Client

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTPublisher creates a publisher. It does not connect until Start.
func NewMQTTPublisher(cfg config.MQTTConfig, eventBus *events.EventBus, stats *Stats, interval time.Duration) (*MQTTPublisher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("MQTT broker URL is empty")
	}

	sysInfo := util.GetSystemInfo()
	p := &MQTTPublisher{
		cfg:      cfg,
		eventBus: eventBus,
		stats:    stats,
		interval: interval,
		metadata: map[string]interface{}{
			"hostname":  sysInfo.Hostname,
			"os":        sysInfo.OS,
			"cpu_cores": sysInfo.CPUCores,
			"memory_mb": sysInfo.TotalMemory,
		},
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.brokerAddr())

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("tilehook-%s", sysInfo.Hostname))
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)

	if cfg.UseTLS {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	p.client = mqtt.NewClient(opts)
	return p, nil
}

func (p *MQTTPublisher) brokerAddr() string {
	scheme := "tcp"
	if p.cfg.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, p.cfg.BrokerURL, p.cfg.Port)
}

func buildTLSConfig(cfg config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	// mTLS client certificate
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

// Topic joins the configured prefix and parts with slashes.
func (p *MQTTPublisher) Topic(parts ...string) string {
	topic := p.cfg.TopicPrefix
	for _, part := range parts {
		if topic == "" {
			topic = part
		} else {
			topic += "/" + part
		}
	}
	return topic
}

// Start connects to the broker, forwards bus events and publishes stats
// until ctx is cancelled.
func (p *MQTTPublisher) Start(ctx context.Context) error {
	log.Info().
		Str("broker", p.brokerAddr()).
		Msg("connecting to MQTT broker")

	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	p.eventBus.SubscribeMany(forwardedEvents, "mqtt.forward", p.onEvent)
	defer func() {
		for _, t := range forwardedEvents {
			p.eventBus.Unsubscribe(t, "mqtt.forward")
		}
	}()

	interval := p.interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.publish(p.Topic(TopicAdmin), map[string]interface{}{"event": "shutdown"})
			p.client.Disconnect(5000)
			log.Info().Msg("MQTT disconnected")
			return nil
		case <-ticker.C:
			p.PublishStats()
		}
	}
}

func (p *MQTTPublisher) onEvent(ctx context.Context, event events.Event) error {
	p.publish(p.Topic(TopicEvents, string(event.Type)), event.Payload)
	return nil
}

// PublishStats sends the current cumulative totals and per-kind counters.
func (p *MQTTPublisher) PublishStats() {
	if p.stats == nil {
		return
	}
	p.publish(p.Topic(TopicStats), map[string]interface{}{
		"totals": p.stats.Totals(),
		"kinds":  p.stats.Snapshot(),
	})
}

// publish sends a JSON message with QoS 1. Messages are dropped while
// disconnected.
func (p *MQTTPublisher) publish(topic string, payload interface{}) {
	if !p.client.IsConnected() {
		return
	}

	data, err := json.Marshal(p.buildMessage(payload))
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := p.client.Publish(topic, 1, false, data)
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

func (p *MQTTPublisher) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(p.metadata)+2)
	for k, v := range p.metadata {
		msg[k] = v
	}
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}
