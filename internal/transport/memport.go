package transport

import (
	"context"
	"sync"
)

// MemPort is an in-memory Port used by tests and by loopback wiring. Two
// MemPorts created via NewMemPortPair are connected back to back: sending on
// one is receiving on the other.
type MemPort struct {
	out chan any
	in  <-chan any

	mu       sync.Mutex
	closed   bool
	accepted bool
}

// NewMemPortPair returns two connected in-memory ports.
func NewMemPortPair(buffer int) (a, b *MemPort) {
	c1 := make(chan any, buffer)
	c2 := make(chan any, buffer)
	a = &MemPort{out: c1, in: c2}
	b = &MemPort{out: c2, in: c1}
	return a, b
}

func (p *MemPort) Accept(ctx context.Context) error {
	p.mu.Lock()
	p.accepted = true
	p.mu.Unlock()
	return nil
}

func (p *MemPort) Send(ctx context.Context, msg any) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosedOK
	}
	select {
	case p.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *MemPort) Receive(ctx context.Context) (any, error) {
	select {
	case msg, ok := <-p.in:
		if !ok {
			return nil, ErrClosedOK
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *MemPort) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.out)
	return nil
}
