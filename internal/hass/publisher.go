// Package hass exposes the bridge's entities to Home Assistant over MQTT
// discovery.
//
// Every sensor and button gets a retained discovery config. Sensor states
// are published as JSON on each poll cycle and button command topics are
// routed back to a press callback. Pool, disk and volume entities are grouped
// under sub-devices linked to the NAS via via_device.
package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jpalmerr/nasbridge/internal/catalog"
	"github.com/jpalmerr/nasbridge/internal/collector"
)

// Availability payloads.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

const (
	defaultDiscoveryPrefix = "homeassistant"
	defaultTopicPrefix     = "nasbridge"
	defaultTimeout         = 10 * time.Second
	pressTimeout           = 30 * time.Second

	// valueTemplate reads the formatted value from a state payload.
	valueTemplate = "{{ value_json.value }}"
	// scaledTemplate appends the unit for values whose unit changes with magnitude.
	scaledTemplate = "{{ value_json.value }} {{ value_json.unit }}"
)

// Config configures the MQTT connection and topic layout.
type Config struct {
	Broker string
	// ClientID defaults to TopicPrefix.
	ClientID string
	Username string
	Password string

	// DiscoveryPrefix is Home Assistant's discovery root.
	DiscoveryPrefix string
	// TopicPrefix roots state, command and availability topics. Bridges
	// sharing a broker need distinct prefixes.
	TopicPrefix string
	// Timeout bounds connect, publish and subscribe.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = defaultDiscoveryPrefix
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = defaultTopicPrefix
	}
	if c.ClientID == "" {
		c.ClientID = c.TopicPrefix
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

// AvailabilityTopic carries "online"/"offline".
func (c Config) AvailabilityTopic() string {
	return c.withDefaults().TopicPrefix + "/availability"
}

// StateTopic carries the JSON state of key.
func (c Config) StateTopic(key string) string {
	return fmt.Sprintf("%s/%s/state", c.withDefaults().TopicPrefix, key)
}

// CommandTopic receives presses for button key.
func (c Config) CommandTopic(key string) string {
	return fmt.Sprintf("%s/%s/press", c.withDefaults().TopicPrefix, key)
}

// ConfigTopic is the discovery topic for key under component, scoped to
// the NAS node id (see [catalog.Identity.NodeID]).
func (c Config) ConfigTopic(node, component, key string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", c.withDefaults().DiscoveryPrefix, component, node, key)
}

// Presser handles a button command.
type Presser func(ctx context.Context, key string) error

// Publisher announces entities and publishes their states.
type Publisher struct {
	conn   Conn
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	buttons map[string]bool
	// announced holds the config topics of the last Announce.
	announced map[string]bool
}

// NewPublisher creates a [Publisher] on conn.
func NewPublisher(conn Conn, cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:      conn,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		buttons:   make(map[string]bool),
		announced: make(map[string]bool),
	}
}

type deviceBlock struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
	SerialNumber string   `json:"serial_number,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

type discovery struct {
	Name              string      `json:"name"`
	UniqueID          string      `json:"unique_id"`
	ObjectID          string      `json:"object_id"`
	Icon              string      `json:"icon,omitempty"`
	StateTopic        string      `json:"state_topic,omitempty"`
	ValueTemplate     string      `json:"value_template,omitempty"`
	UnitOfMeasurement string      `json:"unit_of_measurement,omitempty"`
	CommandTopic      string      `json:"command_topic,omitempty"`
	AvailabilityTopic string      `json:"availability_topic"`
	EntityCategory    string      `json:"entity_category,omitempty"`
	Device            deviceBlock `json:"device"`
}

type statePayload struct {
	Value any    `json:"value"`
	Raw   any    `json:"raw,omitempty"`
	Unit  string `json:"unit,omitempty"`
}

// Announce publishes discovery configs for every entity in set and marks
// the bridge online. It is safe to call again after the catalog is rebuilt:
// configs announced before but missing from set are cleared with an empty
// retained payload, which removes them from Home Assistant.
func (p *Publisher) Announce(set catalog.Set) error {
	node := set.Identity.NodeID()
	topics := make(map[string]bool, len(set.Sensors)+len(set.Buttons))

	var errs []error
	for _, d := range set.Sensors {
		topic := p.cfg.ConfigTopic(node, "sensor", d.Key)
		topics[topic] = true
		errs = append(errs, p.announce(topic, d, set.Identity))
	}
	for _, d := range set.Buttons {
		topic := p.cfg.ConfigTopic(node, "button", d.Key)
		topics[topic] = true
		errs = append(errs, p.announce(topic, d, set.Identity))
	}

	p.mu.Lock()
	var stale []string
	for topic := range p.announced {
		if !topics[topic] {
			stale = append(stale, topic)
		}
	}
	p.announced = topics
	p.buttons = make(map[string]bool, len(set.Buttons))
	for _, b := range set.Buttons {
		p.buttons[b.Key] = true
	}
	p.mu.Unlock()

	for _, topic := range stale {
		if err := p.conn.Publish(topic, true, nil); err != nil {
			errs = append(errs, fmt.Errorf("clearing %s: %w", topic, err))
		}
	}
	errs = append(errs, p.conn.Publish(p.cfg.AvailabilityTopic(), true, []byte(PayloadOnline)))

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("announcing entities: %w", err)
	}
	p.logger.Info("home assistant discovery published",
		"sensors", len(set.Sensors),
		"buttons", len(set.Buttons),
		"cleared", len(stale),
	)
	return nil
}

func (p *Publisher) announce(topic string, d catalog.Descriptor, id catalog.Identity) error {
	uid := id.NodeID() + "_" + d.Key
	msg := discovery{
		Name:              d.Name,
		UniqueID:          uid,
		ObjectID:          uid,
		Icon:              d.Icon,
		AvailabilityTopic: p.cfg.AvailabilityTopic(),
		EntityCategory:    entityCategory(d),
		Device:            deviceFor(d.Key, id),
	}

	if d.Kind == catalog.Button {
		msg.CommandTopic = p.cfg.CommandTopic(d.Key)
	} else {
		msg.StateTopic = p.cfg.StateTopic(d.Key)
		msg.ValueTemplate = valueTemplate
		if rescaled(d.Unit) {
			msg.ValueTemplate = scaledTemplate
		} else {
			msg.UnitOfMeasurement = d.Unit
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", d.Key, err)
	}
	if err := p.conn.Publish(topic, true, payload); err != nil {
		return fmt.Errorf("%s: %w", d.Key, err)
	}
	return nil
}

// PublishStates publishes one state message per reading. Failures are
// joined; a failed key does not stop the rest.
func (p *Publisher) PublishStates(result collector.Result) error {
	var errs []error
	for key, r := range result {
		payload, err := json.Marshal(statePayload{Value: r.Value, Raw: r.Raw, Unit: r.Unit})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		if err := p.conn.Publish(p.cfg.StateTopic(key), false, payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// HandleCommands routes button commands to press. Unknown keys are ignored.
// Each press runs on its own goroutine with a timeout so the MQTT client is
// never blocked by the NAS.
func (p *Publisher) HandleCommands(ctx context.Context, press Presser) error {
	topic := p.cfg.CommandTopic("+")
	return p.conn.Subscribe(topic, func(topic string, _ []byte) {
		key := p.commandKey(topic)
		if key == "" {
			p.logger.Warn("ignoring command for unknown button", "topic", topic)
			return
		}
		go func() {
			pctx, cancel := context.WithTimeout(ctx, pressTimeout)
			defer cancel()
			if err := press(pctx, key); err != nil {
				p.logger.Warn("button command failed", "key", key, "error", err)
			}
		}()
	})
}

func (p *Publisher) commandKey(topic string) string {
	prefix := p.cfg.TopicPrefix + "/"
	if !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, "/press") {
		return ""
	}
	key := strings.TrimSuffix(strings.TrimPrefix(topic, prefix), "/press")

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.buttons[key] {
		return ""
	}
	return key
}

// Close marks the bridge offline and disconnects.
func (p *Publisher) Close() {
	if err := p.conn.Publish(p.cfg.AvailabilityTopic(), true, []byte(PayloadOffline)); err != nil {
		p.logger.Warn("failed to publish offline", "error", err)
	}
	p.conn.Disconnect()
}

func deviceFor(key string, id catalog.Identity) deviceBlock {
	dev := catalog.DeviceFor(key, id)
	b := deviceBlock{
		Identifiers:  []string{dev.ID},
		Name:         dev.Name,
		Manufacturer: dev.Manufacturer,
		Model:        dev.Model,
		SWVersion:    dev.Version,
		ViaDevice:    dev.ViaDevice,
	}
	if dev.ID == id.NodeID() {
		b.SerialNumber = id.Serial
	}
	return b
}

// entityCategory hides static descriptive sensors from the default
// dashboard. Buttons are configuration actions.
func entityCategory(d catalog.Descriptor) string {
	switch {
	case d.Kind == catalog.Button:
		return "config"
	case d.Category == catalog.CategoryDevice, d.Category == catalog.CategoryHardware:
		return "diagnostic"
	default:
		return ""
	}
}

// rescaled reports units the formatter rewrites with magnitude.
func rescaled(unit string) bool {
	return unit == catalog.UnitBytes
}
