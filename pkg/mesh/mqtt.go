package mesh

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// MQTTTransport is a Transport over an MQTT broker. All gossip rides QoS 0
// publishes on a shared topic, which gives exactly the weak delivery the mesh
// assumes. The broker echoes our own publishes back to us; the dispatcher's
// merges are idempotent, so that is harmless.
type MQTTTransport struct {
	client    mqtt.Client
	brokerURL string

	mu   sync.Mutex
	subs map[string]Handler
}

// NewMQTT connects to the broker and returns the transport. The connection is
// retried in the background; if the broker is unreachable at startup the
// transport still comes up and publishes fail with ErrTransportUnavailable
// until the connection is established.
func NewMQTT(brokerURL, clientID string) (*MQTTTransport, error) {
	t := &MQTTTransport{
		brokerURL: brokerURL,
		subs:      make(map[string]Handler),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetOrderMatters(false)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		slog.Info("mesh broker connected", "broker", brokerURL)
		t.resubscribe(c)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mesh broker connection lost", "broker", brokerURL, "error", err)
	})

	t.client = mqtt.NewClient(opts)
	token := t.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		slog.Warn("mesh broker not reachable yet, retrying in background", "broker", brokerURL)
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to broker %s: %w", brokerURL, err)
	}
	return t, nil
}

// resubscribe re-establishes recorded subscriptions after (re)connect.
func (t *MQTTTransport) resubscribe(c mqtt.Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for topic, h := range t.subs {
		handler := h
		tok := c.Subscribe(topic, 0, func(_ mqtt.Client, m mqtt.Message) {
			handler(m.Topic(), m.Payload())
		})
		go func(topic string) {
			tok.Wait()
			if err := tok.Error(); err != nil {
				slog.Error("mesh subscribe failed", "topic", topic, "error", err)
			}
		}(topic)
	}
}

func (t *MQTTTransport) Subscribe(topic string, h Handler) error {
	t.mu.Lock()
	t.subs[topic] = h
	t.mu.Unlock()

	if t.client.IsConnectionOpen() {
		tok := t.client.Subscribe(topic, 0, func(_ mqtt.Client, m mqtt.Message) {
			h(m.Topic(), m.Payload())
		})
		tok.Wait()
		return tok.Error()
	}
	// Not connected yet; the OnConnect handler picks the subscription up.
	return nil
}

func (t *MQTTTransport) Publish(topic string, payload []byte) error {
	if !t.client.IsConnectionOpen() {
		return ErrTransportUnavailable
	}
	tok := t.client.Publish(topic, 0, false, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return ErrTransportUnavailable
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return nil
}

// Peers is unknowable through a broker; fan-out is the broker's business.
func (t *MQTTTransport) Peers() []string {
	return nil
}

// Dial is broker-mediated and therefore unsupported.
func (t *MQTTTransport) Dial(address string) error {
	return ErrDialUnsupported
}

func (t *MQTTTransport) LocalAddresses() []string {
	return []string{t.brokerURL}
}

func (t *MQTTTransport) Close() {
	t.client.Disconnect(250)
}
