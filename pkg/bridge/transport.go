package bridge

import (
	"fmt"
	"sync"
)

// Transport is one endpoint of an asynchronous, FIFO message channel.
// Messages sent on one endpoint arrive, in send order, on the peer's
// Receive channel. The two directions are independent channels: nothing
// relates the ordering of sends to the ordering of receives.
type Transport interface {
	// Send queues an envelope for delivery to the peer. It must not block
	// waiting for the peer to read. Returns an error once the transport
	// is closed.
	Send(env *Envelope) error

	// Receive returns the channel of inbound envelopes. The channel is
	// closed when the transport closes.
	Receive() <-chan *Envelope

	// Close tears the endpoint down. Safe to call more than once.
	Close() error
}

// pipeBuffer is the per-direction queue depth of an in-process pipe. Deep
// enough that a sender never sees a full buffer under normal use.
const pipeBuffer = 64

// pipeEnd is one endpoint of an in-process transport pair.
type pipeEnd struct {
	out chan<- *Envelope
	in  <-chan *Envelope

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	peer   *pipeEnd
}

// NewPipe returns two connected in-process transports: envelopes sent on one
// arrive on the other. Used by tests and by same-process embeddings where
// guest code runs next to the host.
func NewPipe() (Transport, Transport) {
	ab := make(chan *Envelope, pipeBuffer)
	ba := make(chan *Envelope, pipeBuffer)

	a := &pipeEnd{out: ab, in: ba, done: make(chan struct{})}
	b := &pipeEnd{out: ba, in: ab, done: make(chan struct{})}
	a.peer = b
	b.peer = a
	return a, b
}

func (p *pipeEnd) Send(env *Envelope) error {
	// The mutex is held across the channel send so Close cannot close p.out
	// between the closed check and the send.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("transport closed")
	}

	select {
	case <-p.peer.done:
		return fmt.Errorf("peer closed")
	default:
	}

	select {
	case p.out <- env:
		return nil
	default:
		return fmt.Errorf("transport buffer full")
	}
}

func (p *pipeEnd) Receive() <-chan *Envelope {
	return p.in
}

func (p *pipeEnd) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)
	close(p.out)
	return nil
}
