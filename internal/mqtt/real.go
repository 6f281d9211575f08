package mqtt

import (
	"fmt"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/respiration-monitor/internal/logic"
)

// DefaultBufferSize is the number of messages held while the broker is down.
const DefaultBufferSize = 500

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the broker is unreachable are held and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	box    *outbox
}

// NewRealPublisher creates a publisher for the given broker. The connection
// is retried in the background, so an unreachable broker is not an error.
func NewRealPublisher(broker, clientID string, bufferSize int) *RealPublisher {
	p := &RealPublisher{}

	will, _ := FormatSessionPayload(SessionEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSession, will, 1, true).
		SetOnConnectHandler(func(paho.Client) {
			log.Printf("mqtt: connected to %s", broker)
			p.box.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	p.box = newOutbox(bufferSize, p.send, p.client.IsConnectionOpen)
	p.client.Connect()
	return p
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// PublishReading sends a Reading to the peer's reading topic.
func (p *RealPublisher) PublishReading(peer string, r logic.Reading, at time.Time) error {
	payload, err := FormatReadingPayload(peer, r, at)
	if err != nil {
		return fmt.Errorf("format reading payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.box.publish(bufferedMsg{topic: ReadingTopic(peer), payload: payload})
}

// PublishSession sends a session event.
func (p *RealPublisher) PublishSession(event SessionEvent) error {
	payload, err := FormatSessionPayload(event)
	if err != nil {
		return fmt.Errorf("format session payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.box.publish(bufferedMsg{topic: TopicSession, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if n := p.box.pending(); n > 0 {
		log.Printf("mqtt: discarding %d unsent messages", n)
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
