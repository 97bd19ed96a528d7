package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/assistente/internal/config"
)

// ErrNotConnected is returned by [MQTTPublisher.Publish] before Start.
var ErrNotConnected = errors.New("mqtt publisher not started")

// MQTTPublisher publishes notifications to an MQTT broker, one topic per
// user under the configured base topic. Connection management and
// reconnects are handled by autopaho.
type MQTTPublisher struct {
	cfg    config.MQTTConfig
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// NewMQTTPublisher creates a publisher but does not connect. Call
// [MQTTPublisher.Start] first.
func NewMQTTPublisher(cfg config.MQTTConfig, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTPublisher{cfg: cfg, logger: logger.With("component", "mqtt")}
}

// Start connects to the broker and waits up to 30 seconds for the first
// connection. autopaho keeps retrying in the background after that.
func (p *MQTTPublisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}
	if brokerURL.Scheme == "" || brokerURL.Host == "" {
		return fmt.Errorf("mqtt broker URL %q needs a scheme and host", p.cfg.Broker)
	}

	availTopic := p.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.cfg.ClientID,
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Stop publishes "offline" and disconnects.
func (p *MQTTPublisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

// Publish implements [Publisher]. Notifications use QoS 1 and are not
// retained, so a subscriber that connects later does not replay them.
func (p *MQTTPublisher) Publish(ctx context.Context, n Notification) error {
	if p.cm == nil {
		return ErrNotConnected
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	topic := p.userTopic(n.UserID)
	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	p.logger.Debug("mqtt notification published", "topic", topic, "reminder_id", n.ReminderID)
	return nil
}

func (p *MQTTPublisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}

// --- Topic helpers ---

func (p *MQTTPublisher) baseTopic() string {
	return strings.TrimRight(p.cfg.Topic, "/")
}

func (p *MQTTPublisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

// userTopic strips MQTT wildcard and level characters from the user ID
// so one user cannot publish into another's subtree.
func (p *MQTTPublisher) userTopic(userID string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#':
			return '_'
		}
		return r
	}, userID)
	return p.baseTopic() + "/" + clean
}
