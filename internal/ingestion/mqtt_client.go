package ingestion

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"medication-adherence-monitor/internal/logger"
	pkgmqtt "medication-adherence-monitor/pkg/mqtt"
)

// MQTTIngestionConfig describes the topics and MQTT connection parameters.
type MQTTIngestionConfig struct {
	ClientConfig   *pkgmqtt.Config
	HeartbeatTopic string
	DoseTopic      string
	QoS            byte
}

// Subscriber is the slice of the MQTT client ingestion needs.
type Subscriber interface {
	Connect() error
	Subscribe(topic string, qos byte, handler pkgmqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
	Disconnect()
}

// MQTTIngestionClient wires MQTT messages into the ingestion processor.
type MQTTIngestionClient struct {
	cfg       *MQTTIngestionConfig
	client    Subscriber
	processor *Processor

	mu            sync.Mutex
	started       bool
	subscriptions []string
}

// NewMQTTIngestionClient builds a new MQTT client for ingestion.
func NewMQTTIngestionClient(cfg *MQTTIngestionConfig, processor *Processor) (*MQTTIngestionClient, error) {
	if cfg == nil || cfg.ClientConfig == nil {
		return nil, errors.New("mqtt ingestion config is not configured")
	}
	return newMQTTIngestionClient(cfg, pkgmqtt.NewClient(cfg.ClientConfig), processor)
}

func newMQTTIngestionClient(cfg *MQTTIngestionConfig, client Subscriber, processor *Processor) (*MQTTIngestionClient, error) {
	if processor == nil {
		return nil, errors.New("processor is required")
	}
	return &MQTTIngestionClient{
		cfg:       cfg,
		client:    client,
		processor: processor,
	}, nil
}

// Start establishes the MQTT connection and subscribes to the topics.
func (c *MQTTIngestionClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}

	type subscription struct {
		topic   string
		handler pkgmqtt.MessageHandler
	}

	subs := []subscription{}
	if c.cfg.HeartbeatTopic != "" {
		subs = append(subs, subscription{
			topic:   c.cfg.HeartbeatTopic,
			handler: c.handleHeartbeatMessage,
		})
	}
	if c.cfg.DoseTopic != "" {
		subs = append(subs, subscription{
			topic:   c.cfg.DoseTopic,
			handler: c.handleDoseMessage,
		})
	}

	if len(subs) == 0 {
		return errors.New("no MQTT topics configured for ingestion")
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	for _, sub := range subs {
		if err := c.client.Subscribe(sub.topic, c.cfg.QoS, sub.handler); err != nil {
			c.client.Disconnect()
			c.subscriptions = nil
			return fmt.Errorf("subscribe failed for topic %s: %w", sub.topic, err)
		}
		c.subscriptions = append(c.subscriptions, sub.topic)
	}

	c.started = true
	return nil
}

// Stop unsubscribes and disconnects from the broker.
func (c *MQTTIngestionClient) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}

	if len(c.subscriptions) > 0 {
		if err := c.client.Unsubscribe(c.subscriptions...); err != nil {
			logger.Warn("Failed to unsubscribe from MQTT topics", zap.Error(err))
		}
	}

	c.client.Disconnect()
	c.started = false
	c.subscriptions = nil
}

// handleHeartbeatMessage decodes a heartbeat and hands it to the processor.
func (c *MQTTIngestionClient) handleHeartbeatMessage(topic string, payload []byte) {
	msg, err := ParseHeartbeat(topic, payload)
	if err != nil {
		c.processor.fail(KindHeartbeat)
		c.reject(KindHeartbeat, topic, err)
		return
	}
	if err := c.processor.ProcessHeartbeat(msg); err != nil {
		c.reject(KindHeartbeat, topic, err)
	}
}

// handleDoseMessage decodes a dose event and hands it to the processor.
func (c *MQTTIngestionClient) handleDoseMessage(topic string, payload []byte) {
	msg, err := ParseDoseEvent(topic, payload)
	if err != nil {
		c.processor.fail(KindDose)
		c.reject(KindDose, topic, err)
		return
	}
	if err := c.processor.ProcessDoseEvent(msg); err != nil {
		c.reject(KindDose, topic, err)
	}
}

func (c *MQTTIngestionClient) reject(kind, topic string, err error) {
	logger.Warn("Invalid MQTT payload",
		zap.String("kind", kind),
		zap.String("topic", topic),
		zap.Error(err),
		zap.String("event", "mqtt_payload_rejected"),
	)
}
