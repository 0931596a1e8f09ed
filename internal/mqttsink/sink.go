// Package mqttsink mirrors sync control states and exported calibration
// profiles to an MQTT broker.
package mqttsink

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/soar/ControllerSync/internal/calibration"
	"github.com/soar/ControllerSync/internal/config"
	"github.com/soar/ControllerSync/internal/synccontrol"
)

const (
	connectTimeout = 5 * time.Second
	disconnectWait = 250 // milliseconds
)

// Client is the part of mqtt.Client the sink uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type Sink struct {
	logger   *zap.Logger
	client   Client
	prefix   string
	qos      byte
	retained bool
}

// Connect dials the configured broker.
func Connect(logger *zap.Logger, cfg config.MQTTConfig) (*Sink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("MQTT connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT connect error: %w", err)
	}
	return New(logger, client, cfg.TopicPrefix, cfg.QoS, cfg.Retained), nil
}

func New(logger *zap.Logger, client Client, prefix string, qos byte, retained bool) *Sink {
	s := &Sink{
		logger:   logger.Named("mqtt"),
		client:   client,
		prefix:   strings.TrimSuffix(prefix, "/"),
		qos:      qos,
		retained: retained,
	}
	s.logger.Info("MQTT sink ready", zap.String("prefix", s.prefix))
	return s
}

// topicSegment strips the MQTT wildcard and separator characters from a name.
func topicSegment(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}

// ControlTopic is the topic a sync control's state is published on.
func (s *Sink) ControlTopic(identifier string) string {
	return s.prefix + "/controls/" + topicSegment(identifier)
}

// ProfileTopic is the topic a device's calibration profile is published on.
func (s *Sink) ProfileTopic(deviceID string) string {
	return s.prefix + "/calibration/" + topicSegment(deviceID)
}

// PublishControls publishes each state as JSON. Publishing does not wait for
// the broker.
func (s *Sink) PublishControls(states []synccontrol.State) {
	for _, st := range states {
		s.publish(s.ControlTopic(st.Identifier), s.retained, st)
	}
}

// PublishProfile publishes an exported calibration profile, always retained.
func (s *Sink) PublishProfile(p calibration.Profile) {
	s.publish(s.ProfileTopic(p.DeviceID), true, p)
}

func (s *Sink) publish(topic string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("json marshal error", zap.String("topic", topic), zap.Error(err))
		return
	}
	s.client.Publish(topic, s.qos, retained, payload)
}

func (s *Sink) Close() {
	s.client.Disconnect(disconnectWait)
}
