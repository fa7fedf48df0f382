package game

import "sync"

// slotPool is the counting resource bounding how many players a game seats.
// It is a semaphore with non-blocking acquire/release plus an irreversible
// close: once closed, no seat can be taken or returned again.
type slotPool struct {
	mu     sync.Mutex
	free   int
	closed bool
}

// tryAcquire takes one seat. It never blocks.
func (p *slotPool) tryAcquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.free == 0 {
		return false
	}

	p.free--
	return true
}

// release returns a seat to the pool. A seat returned after close is dropped:
// a running game never shrinks or regrows its capacity.
func (p *slotPool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.free++
}

// closeIfEmpty closes the pool iff every seat is taken. It returns true at
// most once over the pool's lifetime, so the caller that wins the transition
// owns starting the game. A release landing before the close keeps the pool
// open and the game accepting players.
func (p *slotPool) closeIfEmpty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.free > 0 {
		return false
	}

	p.closed = true
	return true
}

// remaining reports how many seats are still open.
func (p *slotPool) remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.free
}
