// Package mqtt implements an MQTT protocol receiver that delivers device
// payloads to an event source.
package mqtt

import (
	"context"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/thingflow/thingflow/common/logging"
	"github.com/thingflow/thingflow/sources/internal/source"
)

// MetadataTopic is the source-metadata key carrying the MQTT topic a
// payload arrived on. Metadata extractors may use it to derive the device
// token.
const MetadataTopic = "mqtt.topic"

// Config holds the broker connection settings for one receiver.
type Config struct {
	BrokerURL string
	ClientID  string
	Topic     string
	QoS       byte
	Username  string
	Password  string

	// ConnectTimeout bounds the initial connect attempt.
	ConnectTimeout time.Duration
}

// Receiver subscribes to one MQTT topic filter and forwards every message
// to the event source handler. Reconnects and resubscription are handled by
// the client; payloads received while disconnected are lost for QoS 0.
type Receiver struct {
	cfg    Config
	client paho.Client
	log    *logging.Logger
}

// New creates an MQTT receiver. The connection is not opened until Start.
func New(cfg Config, log *logging.Logger) *Receiver {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	return &Receiver{cfg: cfg, log: log}
}

// Describe implements source.Receiver.
func (r *Receiver) Describe() string {
	return fmt.Sprintf("mqtt[%s %s]", r.cfg.BrokerURL, r.cfg.Topic)
}

// Start connects to the broker and subscribes. The subscription is
// re-established on every reconnect.
func (r *Receiver) Start(ctx context.Context, handler source.EncodedEventHandler) error {
	onMessage := func(_ paho.Client, msg paho.Message) {
		metadata := map[string]string{MetadataTopic: msg.Topic()}
		if err := handler.OnEncodedEventReceived(ctx, msg.Payload(), metadata); err != nil {
			r.log.ErrorContext(ctx, "payload processing failed",
				logging.Topic(msg.Topic()), logging.Err(err))
		}
	}

	opts := paho.NewClientOptions().
		AddBroker(r.cfg.BrokerURL).
		SetClientID(r.cfg.ClientID).
		SetOrderMatters(false).
		SetCleanSession(false).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true)

	if r.cfg.Username != "" {
		opts.SetUsername(r.cfg.Username)
		opts.SetPassword(r.cfg.Password)
	}

	opts.OnConnect = func(c paho.Client) {
		if token := c.Subscribe(r.cfg.Topic, r.cfg.QoS, onMessage); token.Wait() && token.Error() != nil {
			r.log.ErrorContext(ctx, "mqtt subscribe failed",
				logging.Topic(r.cfg.Topic), logging.Err(token.Error()))
			return
		}
		r.log.InfoContext(ctx, "mqtt subscribed", logging.Topic(r.cfg.Topic))
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		r.log.WarnContext(ctx, "mqtt connection lost", logging.Err(err))
	}

	r.client = paho.NewClient(opts)
	token := r.client.Connect()
	if !token.WaitTimeout(r.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt connect to %s timed out", r.cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", r.cfg.BrokerURL, err)
	}
	return nil
}

// Stop unsubscribes and disconnects, allowing in-flight handlers to finish.
func (r *Receiver) Stop() error {
	if r.client == nil {
		return nil
	}
	if token := r.client.Unsubscribe(r.cfg.Topic); token.Wait() && token.Error() != nil {
		r.log.Warn("mqtt unsubscribe failed", logging.Err(token.Error()))
	}
	r.client.Disconnect(250)
	r.client = nil
	return nil
}
