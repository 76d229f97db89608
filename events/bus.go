// Package events is the process-wide publish point for link and message
// events. Events are fire-and-forget: nothing is retained after delivery.
package events

import (
	"sync"
	"time"

	"github.com/Mteixeira88/cow-shake/frame"
	"github.com/Mteixeira88/cow-shake/transport"
)

// Type classifies an event
type Type string

const (
	NewDevice         Type = "newdevice"
	ReceivedRequest   Type = "receivedrequest"
	ConnectionSuccess Type = "connectionsuccess"
	ConnectionFailure Type = "connectionfailure"
)

// Event is the envelope delivered to subscribers. Device is set for the
// discovery and connection events, Payload for ReceivedRequest.
type Event struct {
	Type      Type                  `json:"type"`
	Timestamp time.Time             `json:"timestamp"`
	Device    *transport.PeerDevice `json:"device,omitempty"`
	Payload   *frame.Payload        `json:"payload,omitempty"`
}

// DefaultBufferSize is the per-subscriber channel capacity
const DefaultBufferSize = 64

type subscriber struct {
	ch   chan Event
	once sync.Once
}

// Bus fans events out to every subscriber. A subscriber whose buffer is
// full misses the event instead of stalling the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	buffer int
}

// Default is the process-wide bus used when a session is not given its own
var Default = NewBus()

// NewBus constructs a ready Bus
func NewBus() *Bus {
	return NewBusWithBuffer(DefaultBufferSize)
}

// NewBusWithBuffer constructs a Bus whose subscribers buffer n events
func NewBusWithBuffer(n int) *Bus {
	if n <= 0 {
		n = DefaultBufferSize
	}
	return &Bus{subs: make(map[*subscriber]struct{}), buffer: n}
}

// Subscribe registers a new subscriber. The returned function removes it
// and closes the channel; calling it more than once is harmless.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, b.buffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		s.once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, unsub
}

// Publish delivers e to all current subscribers
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
		}
	}
}

// PublishNewDevice announces a newly discovered peer
func (b *Bus) PublishNewDevice(d transport.PeerDevice) {
	b.Publish(Event{Type: NewDevice, Device: &d})
}

// PublishReceivedRequest announces a fully reassembled inbound message
func (b *Bus) PublishReceivedRequest(p frame.Payload) {
	b.Publish(Event{Type: ReceivedRequest, Payload: &p})
}

// PublishConnectionSuccess announces an established link
func (b *Bus) PublishConnectionSuccess(d transport.PeerDevice) {
	b.Publish(Event{Type: ConnectionSuccess, Device: &d})
}

// PublishConnectionFailure announces that connect retries were exhausted
func (b *Bus) PublishConnectionFailure(d transport.PeerDevice) {
	b.Publish(Event{Type: ConnectionFailure, Device: &d})
}

// Len returns the current subscriber count
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
