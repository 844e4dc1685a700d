package stream

import (
	"context"
	"sync"
	"time"
)

// Kind labels a catalog activity event.
type Kind string

const (
	KindOfferPosted  Kind = "offer_posted"
	KindOfferClaimed Kind = "offer_claimed"
)

// Event describes catalog activity for live frontends (SSE clients).
type Event struct {
	Kind           Kind      `json:"kind"`
	OfferID        string    `json:"offer_id"`
	OfferName      string    `json:"offer_name"`
	Quantity       int       `json:"quantity,omitempty"`
	PickupLocation string    `json:"pickup_location,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Stream fan-outs catalog events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will
// receive events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
