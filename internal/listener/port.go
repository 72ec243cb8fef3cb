package listener

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"evbridge/internal/errors"
)

// PortState is the record shared by the controlling side and the
// network goroutine.  Each field has exactly one writer:
//
//   - requested, rebindSeq, forceSeq: the controlling side
//   - bound, appliedSeq: the network goroutine
//
// A rebind is pending while rebindSeq differs from the last sequence
// the network goroutine served.  Every request is eventually
// acknowledged by advancing appliedSeq, whether the bind succeeded or
// not, and waiters are woken through notify.
type PortState struct {
	requested atomic.Uint32
	rebindSeq atomic.Uint64
	forceSeq  atomic.Uint64

	bound      atomic.Uint32
	appliedSeq atomic.Uint64

	mu     sync.Mutex
	notify chan struct{}
	wake   chan struct{}
}

// NewPortState returns a state requesting port, with no bind pending.
func NewPortState(port uint16) *PortState {
	s := &PortState{
		notify: make(chan struct{}),
		wake:   make(chan struct{}, 1),
	}
	s.requested.Store(uint32(port))
	return s
}

// ── controlling side ─────────────────────────────────────────────────

// RequestPort asks the network goroutine to listen on port (0 = any
// free port) and returns the request's sequence number for
// [PortState.WaitApplied].  It never blocks.
func (s *PortState) RequestPort(port uint16) uint64 {
	s.requested.Store(uint32(port))
	seq := s.rebindSeq.Add(1)
	s.poke()
	return seq
}

// Restart asks for the socket to be rebuilt on the last requested
// port, even if it is already bound there.
func (s *PortState) Restart() uint64 {
	seq := s.rebindSeq.Add(1)
	s.forceSeq.Store(seq)
	s.poke()
	return seq
}

func (s *PortState) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// WaitApplied blocks until the network goroutine has acknowledged
// request seq or ctx is done.  It returns the bound port, or
// errors.ErrNotBound if the bind failed and errors.ErrSyncTimeout if
// ctx expired first.
func (s *PortState) WaitApplied(ctx context.Context, seq uint64) (uint16, error) {
	for {
		s.mu.Lock()
		ch := s.notify
		s.mu.Unlock()

		if s.appliedSeq.Load() >= seq {
			port := s.Bound()
			if port == 0 {
				return 0, fmt.Errorf("port %s: %w", errors.PortLabel(s.Requested()), errors.ErrNotBound)
			}
			return port, nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return s.Bound(), fmt.Errorf("%w: %v", errors.ErrSyncTimeout, ctx.Err())
		}
	}
}

// ── readers ──────────────────────────────────────────────────────────

// Requested returns the last requested port.
func (s *PortState) Requested() uint16 { return uint16(s.requested.Load()) }

// Bound returns the port currently bound, 0 when not connected.
func (s *PortState) Bound() uint16 { return uint16(s.bound.Load()) }

// Pending reports whether a request newer than served is outstanding.
func (s *PortState) Pending(served uint64) bool {
	return s.rebindSeq.Load() != served
}

// ── network goroutine ────────────────────────────────────────────────

// latest returns the newest request and whether it forces a rebuild.
func (s *PortState) latest() (seq uint64, port uint16, force bool) {
	seq = s.rebindSeq.Load()
	port = s.Requested()
	force = s.forceSeq.Load() > s.appliedSeq.Load()
	return seq, port, force
}

func (s *PortState) setBound(port uint16) {
	s.bound.Store(uint32(port))
}

// ack publishes that every request up to seq has been handled.
func (s *PortState) ack(seq uint64) {
	if seq > s.appliedSeq.Load() {
		s.appliedSeq.Store(seq)
	}
	s.mu.Lock()
	close(s.notify)
	s.notify = make(chan struct{})
	s.mu.Unlock()
}
