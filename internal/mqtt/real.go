package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	publishTimeout       = 5 * time.Second
	connectRetryInterval = 5 * time.Second
	disconnectQuiesceMs  = 1000
)

// client is the subset of paho.Client the publisher uses.
type client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	IsConnectionOpen() bool
	Disconnect(quiesce uint)
}

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	BufferSize int // messages kept while disconnected
	Logger     *slog.Logger
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed once it comes back.
type RealPublisher struct {
	client  client
	log     *slog.Logger
	now     func() time.Time
	timeout time.Duration

	mu            sync.Mutex
	buf           *ringBuffer
	connectedOnce bool
}

// NewRealPublisher creates a publisher for the given broker. It does not wait
// for the connection: paho keeps retrying in the background and anything
// published meanwhile is buffered.
func NewRealPublisher(opts Options) *RealPublisher {
	p := newPublisher(opts)

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval).
		SetWill(TopicSystem, string(WillPayload()), 1, true).
		SetOnConnectHandler(func(paho.Client) {
			// Handlers run on paho's router; waiting on tokens there can deadlock.
			go p.onConnect()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn("mqtt connection lost", "error", err)
		})

	p.client = paho.NewClient(co)
	p.client.Connect()
	return p
}

func newPublisher(opts Options) *RealPublisher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RealPublisher{
		log:     logger,
		now:     time.Now,
		timeout: publishTimeout,
		buf:     newRingBuffer(opts.BufferSize),
	}
}

// Publish sends a triage result to the MQTT broker.
func (p *RealPublisher) Publish(event ResultEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 1 (at-least-once), not retained
	if err := p.send(bufferedMsg{topic: Topic, payload: payload, qos: 1}); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	msg := bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained}
	if err := p.send(msg); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(disconnectQuiesceMs)
	return nil
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		dropped := p.buf.push(msg)
		p.mu.Unlock()
		if dropped {
			p.log.Warn("mqtt buffer full, dropped oldest message", "capacity", p.buf.capacity)
		}
		return nil
	}
	p.mu.Unlock()

	return p.write(msg)
}

func (p *RealPublisher) write(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("timeout after %v", p.timeout)
	}
	return token.Error()
}

// onConnect replays buffered messages and, on every connection after the
// first, announces the reconnection.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	msgs := p.buf.drainAll()
	reconnect := p.connectedOnce
	p.connectedOnce = true
	p.mu.Unlock()

	failed := 0
	for _, msg := range msgs {
		if err := p.write(msg); err != nil {
			failed++
			p.log.Warn("mqtt replay failed", "topic", msg.topic, "error", err)
		}
	}
	p.log.Info("mqtt connected", "replayed", len(msgs)-failed, "failed", failed)

	if reconnect {
		event := SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"}
		if err := p.PublishSystem(event); err != nil {
			p.log.Warn("failed to publish reconnect event", "error", err)
		}
	}
}
