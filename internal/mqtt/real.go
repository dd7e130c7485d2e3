package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/dehydrator/internal/logic"
)

const (
	// DefaultBufferSize is how many messages are held while the broker is
	// unreachable. The oldest are dropped first.
	DefaultBufferSize = 256

	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// client is the subset of paho.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	IsConnectionOpen() bool
	Disconnect(quiesce uint)
}

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	// BufferSize defaults to DefaultBufferSize.
	BufferSize int
	// OnConnectionChange, if set, is called from paho's goroutines whenever
	// the connection comes up or goes down.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. Publish and
// PublishSystem only queue the message; a background goroutine delivers it,
// so callers on the main loop never wait on the network.
type RealPublisher struct {
	client client

	mu  sync.Mutex // guards buf
	buf *ringBuffer

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// NewRealPublisher creates a publisher for the given broker. If the broker is
// not reachable within the connect timeout the publisher is still returned:
// paho keeps retrying and queued messages are sent once it connects.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("no broker configured")
	}
	if opts.ClientID == "" {
		opts.ClientID = "dehydrator"
	}

	var p *RealPublisher
	connected := false
	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, WillPayload(), 1, true).
		SetOnConnectHandler(func(paho.Client) {
			log.Printf("mqtt: connected to %s", opts.Broker)
			if connected {
				p.enqueue(bufferedMsg{topic: TopicSystem, qos: 1, retained: true, payload: reconnectedPayload()})
			}
			connected = true
			if opts.OnConnectionChange != nil {
				opts.OnConnectionChange(true)
			}
			p.kick()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
			if opts.OnConnectionChange != nil {
				opts.OnConnectionChange(false)
			}
		})

	c := paho.NewClient(po)
	p = newPublisher(c, opts.BufferSize)

	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Printf("mqtt: broker %s not reachable yet, buffering until connected", opts.Broker)
	} else if err := token.Error(); err != nil {
		p.Close()
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func newPublisher(c client, size int) *RealPublisher {
	if size <= 0 {
		size = DefaultBufferSize
	}
	p := &RealPublisher{
		client: c,
		buf:    newRingBuffer(size),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish queues a session event.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	p.enqueue(bufferedMsg{topic: Topic, payload: payload})
	return nil
}

// PublishSystem queues a system lifecycle event.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) - we want lifecycle events to arrive
	p.enqueue(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Pending returns the number of queued messages.
func (p *RealPublisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Dropped returns how many messages were lost to a full queue.
func (p *RealPublisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.dropped
}

// Close makes a last delivery attempt for queued messages and disconnects.
func (p *RealPublisher) Close() error {
	p.once.Do(func() {
		close(p.quit)
		<-p.done
		p.client.Disconnect(1000) // 1 second quiesce
	})
	return nil
}

func (p *RealPublisher) enqueue(msg bufferedMsg) {
	p.mu.Lock()
	p.buf.push(msg)
	p.mu.Unlock()
	p.kick()
}

func (p *RealPublisher) kick() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *RealPublisher) run() {
	defer close(p.done)
	for {
		select {
		case <-p.quit:
			p.flush()
			return
		case <-p.wake:
			p.flush()
		}
	}
}

// flush sends everything queued. On the first failure the unsent messages go
// back to the front of the queue.
func (p *RealPublisher) flush() {
	if !p.client.IsConnectionOpen() {
		return
	}
	p.mu.Lock()
	msgs := p.buf.drainAll()
	p.mu.Unlock()

	for i, m := range msgs {
		token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
		var err error
		if !token.WaitTimeout(publishTimeout) {
			err = fmt.Errorf("publish timeout")
		} else {
			err = token.Error()
		}
		if err != nil {
			log.Printf("mqtt: publish to %s failed, requeueing %d: %v", m.topic, len(msgs)-i, err)
			p.requeue(msgs[i:])
			return
		}
	}
}

func (p *RealPublisher) requeue(msgs []bufferedMsg) {
	p.mu.Lock()
	p.buf.pushFront(msgs)
	p.mu.Unlock()
}

func reconnectedPayload() []byte {
	data, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
	return data
}
