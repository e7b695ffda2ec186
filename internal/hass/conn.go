package hass

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// MessageHandler receives an incoming message.
type MessageHandler func(topic string, payload []byte)

// Conn is the MQTT surface the publisher needs.
type Conn interface {
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(topic string, handler MessageHandler) error
	Disconnect()
}

const qos = 1

var errTimeout = errors.New("mqtt operation timed out")

// pahoConn adapts a paho client. Subscriptions are replayed and the
// availability topic set online on every (re)connect.
type pahoConn struct {
	client  paho.Client
	timeout time.Duration
	logger  *slog.Logger

	mu   sync.Mutex
	subs map[string]MessageHandler
}

// Dial connects to the broker in cfg. The connection registers a retained
// last will marking the bridge offline.
func Dial(cfg Config, logger *slog.Logger) (Conn, error) {
	cfg = cfg.withDefaults()
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &pahoConn{
		timeout: cfg.Timeout,
		logger:  logger,
		subs:    make(map[string]MessageHandler),
	}

	availability := cfg.AvailabilityTopic()
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(cfg.Timeout).
		SetAutoReconnect(true).
		SetWill(availability, PayloadOffline, qos, true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
		}).
		SetOnConnectHandler(func(client paho.Client) {
			logger.Info("mqtt connected", "broker", cfg.Broker)
			client.Publish(availability, qos, true, PayloadOnline)
			c.resubscribe(client)
		})

	c.client = paho.NewClient(opts)
	if err := c.wait(c.client.Connect()); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Broker, err)
	}
	return c, nil
}

func (c *pahoConn) Publish(topic string, retained bool, payload []byte) error {
	return c.wait(c.client.Publish(topic, qos, retained, payload))
}

func (c *pahoConn) Subscribe(topic string, handler MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()
	return c.wait(c.client.Subscribe(topic, qos, c.dispatch(handler)))
}

func (c *pahoConn) Disconnect() {
	c.client.Disconnect(250)
}

func (c *pahoConn) resubscribe(client paho.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, h := range c.subs {
		// fire and forget; runs on paho's connect goroutine
		client.Subscribe(topic, qos, c.dispatch(h))
	}
}

func (c *pahoConn) dispatch(h MessageHandler) paho.MessageHandler {
	return func(_ paho.Client, m paho.Message) {
		h(m.Topic(), m.Payload())
	}
}

func (c *pahoConn) wait(tok paho.Token) error {
	if !tok.WaitTimeout(c.timeout) {
		return errTimeout
	}
	return tok.Error()
}
