// Package mqtt republishes readings and hourly summaries to an external
// broker so other home-automation consumers can subscribe without touching
// the HTTP API. Publishing is optional: with no broker configured every call
// is a no-op.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"airmon-server/internal/config"
)

type Publisher struct {
	client mqtt.Client
	cfg    config.Config
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPublisher builds a publisher for the configured broker. Returns nil when
// no broker is configured; a nil *Publisher is safe to use everywhere.
func NewPublisher(cfg config.Config, logger *slog.Logger) *Publisher {
	if cfg.MQTTBroker == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Publisher{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect establishes the broker connection, honoring ctx for the initial
// attempt. Nil receiver is a no-op.
func (p *Publisher) Connect(ctx context.Context) error {
	if p == nil {
		return nil
	}
	select {
	case <-p.stopCh:
		return fmt.Errorf("publisher stopped")
	default:
	}
	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			p.client.Disconnect(0)
			return ctx.Err()
		case <-p.stopCh:
			p.client.Disconnect(0)
			return fmt.Errorf("publisher stopped")
		default:
		}
	}
}

// Publish sends v as JSON under the configured topic prefix. Best effort: a
// failure is logged and swallowed so the pipeline never stalls on the broker.
func (p *Publisher) Publish(subtopic string, v any) {
	if p == nil || !p.IsConnected() {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("marshal mqtt payload", "subtopic", subtopic, "error", err)
		return
	}
	topic := p.cfg.MQTTTopicPrefix + "/" + subtopic
	token := p.client.Publish(topic, 0, false, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			p.logger.Warn("mqtt publish failed", "topic", topic, "error", token.Error())
		}
	}()
}

// IsConnected reports broker connectivity. Nil receiver: false.
func (p *Publisher) IsConnected() bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect closes the broker connection. Idempotent; nil receiver no-op.
func (p *Publisher) Disconnect() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	if p.client != nil {
		p.client.Disconnect(250)
	}
	p.setConnected(false)
	p.logger.Info("mqtt publisher disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
