// Package bus is an in-process pub/sub bus: named channels carrying
// opaque byte payloads, fanned out to per-subscriber buffered channels.
// In production deployments the transport between sheriff and deputies
// is an external message bus; this package provides the same contract
// for a single process and for tests.
package bus

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Channel names used by the reconciliation engine.
const (
	ChannelInfo   = "PMD_INFO"
	ChannelOrders = "PMD_ORDERS"
)

const subscriberBufSize = 64

// Message is one published payload, tagged with the channel it arrived
// on and an opaque ID for tracing.
type Message struct {
	ID      string
	Channel string
	Payload []byte
}

// Bus is the observable pub/sub bus. Every Subscribe call gets its own
// independent buffered channel; Publish fans out non-blockingly.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Message
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string][]chan Message)}
}

// Subscribe returns a receive-only channel delivering messages
// published on the named channel.
func (b *Bus) Subscribe(channel string) <-chan Message {
	ch := make(chan Message, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[channel] = append(b.subscribers[channel], ch)
	b.mu.Unlock()
	return ch
}

// NewMessageID generates an opaque, globally-unique message ID for a
// Message's ID field.
func NewMessageID() string {
	return uuid.NewString()
}

// Publish fans msg out to every subscriber of msg.Channel. Non-blocking:
// if a subscriber's channel is full, the message is dropped with a
// warning.
func (b *Bus) Publish(msg Message) {
	b.mu.RLock()
	subs := b.subscribers[msg.Channel]
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
			log.Printf("[BUS] WARNING: subscriber channel full for channel=%s — message dropped", msg.Channel)
		}
	}
}
