// Package event implements the bounded broadcast queue between the state
// machine and the websocket subscribers.
package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/Lelleck/wise/internal/api"
)

// DefaultCapacity is the ring size used by the process-wide bus.
const DefaultCapacity = 1000

// LagError is returned once when a subscriber has fallen behind by more
// than the bus capacity. Its read position has been advanced past the
// overwritten messages; the next Recv resumes with the oldest retained one.
type LagError struct {
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("event: subscriber lagged, %d messages skipped", e.Missed)
}

// Bus is a bounded broadcast queue. Senders never block: the ring
// overwrites and slow subscribers observe a LagError. With no subscribers
// a send is dropped outright.
type Bus struct {
	mu   sync.Mutex
	buf  []api.ServerWsMessage
	head uint64 // sequence number of the next write
	subs int
	wake chan struct{}
}

// New creates a bus with the given ring capacity.
func New(capacity int) *Bus {
	return &Bus{
		buf:  make([]api.ServerWsMessage, capacity),
		wake: make(chan struct{}),
	}
}

// Send enqueues one message. Per-sender order is preserved by the single
// append lock.
func (b *Bus) Send(msg api.ServerWsMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == 0 {
		return
	}
	b.buf[b.head%uint64(len(b.buf))] = msg
	b.head++
	close(b.wake)
	b.wake = make(chan struct{})
}

// SendRcon enqueues an rcon event.
func (b *Bus) SendRcon(event api.RconEvent) {
	b.Send(api.NewRconMessage(event))
}

// SendResponse enqueues a response to a client request.
func (b *Bus) SendResponse(id string, value api.ServerWsResponse) {
	b.Send(api.NewResponseMessage(id, value))
}

// Subscribe registers a new subscriber positioned at the current head, so
// it only observes messages sent afterwards.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs++
	return &Subscriber{bus: b, next: b.head}
}

// Subscriber is a single reader cursor on the bus. Not safe for
// concurrent use.
type Subscriber struct {
	bus    *Bus
	next   uint64
	closed bool
}

// Recv blocks until the next message is available or ctx is done. When the
// cursor has been overrun it returns a LagError exactly once and snaps to
// the oldest retained message.
func (s *Subscriber) Recv(ctx context.Context) (api.ServerWsMessage, error) {
	for {
		s.bus.mu.Lock()
		capacity := uint64(len(s.bus.buf))
		if s.bus.head > s.next+capacity {
			missed := s.bus.head - capacity - s.next
			s.next = s.bus.head - capacity
			s.bus.mu.Unlock()
			return api.ServerWsMessage{}, &LagError{Missed: missed}
		}
		if s.next < s.bus.head {
			msg := s.bus.buf[s.next%capacity]
			s.next++
			s.bus.mu.Unlock()
			return msg, nil
		}
		wake := s.bus.wake
		s.bus.mu.Unlock()

		select {
		case <-ctx.Done():
			return api.ServerWsMessage{}, ctx.Err()
		case <-wake:
		}
	}
}

// Close unregisters the subscriber. Further Recv calls are invalid.
func (s *Subscriber) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.bus.mu.Lock()
	s.bus.subs--
	s.bus.mu.Unlock()
}
