package proxy

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrPoolEmpty means no proxy is available right now. Callers should
	// pause and try again rather than spin.
	ErrPoolEmpty = errors.New("proxy pool empty")

	// ErrPoolDrained means every proxy has been retired and none can
	// ever become available again.
	ErrPoolDrained = errors.New("proxy pool drained")

	ErrUnknownProxy  = errors.New("proxy does not belong to pool")
	ErrNotCheckedOut = errors.New("proxy is not checked out")
	ErrNotCooling    = errors.New("proxy is not cooling down")
	ErrDuplicate     = errors.New("proxy already in pool")
)

// DefaultUsageLimit is the number of uses allowed before a cooldown.
const DefaultUsageLimit = 30

type state int

const (
	stateAvailable state = iota
	stateCheckedOut
	stateCooling
	stateRetired
)

func (s state) String() string {
	switch s {
	case stateAvailable:
		return "available"
	case stateCheckedOut:
		return "checked-out"
	case stateCooling:
		return "cooling"
	case stateRetired:
		return "retired"
	}
	return "unknown"
}

// Stats is a point-in-time view of the pool. Available + CheckedOut +
// Cooling + Retired always equals Size.
type Stats struct {
	Size       int
	Available  int
	CheckedOut int
	Cooling    int
	Retired    int
}

// Pool hands out proxies in FIFO order. A proxy is held by at most one
// caller between Acquire and Release/Retire.
type Pool struct {
	mu     sync.Mutex
	queue  []*Proxy
	states map[*Proxy]state
	usage  *usageCounter
	stats  Stats
}

// NewPool creates a pool holding the given proxies in order.
// A usageLimit below 1 falls back to DefaultUsageLimit.
func NewPool(proxies []*Proxy, usageLimit int) (*Pool, error) {
	if usageLimit < 1 {
		usageLimit = DefaultUsageLimit
	}
	p := &Pool{
		queue:  make([]*Proxy, 0, len(proxies)),
		states: make(map[*Proxy]state, len(proxies)),
		usage:  newUsageCounter(usageLimit),
	}
	for _, px := range proxies {
		if err := p.Add(px); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Add appends a new proxy to the back of the queue.
func (p *Pool) Add(px *Proxy) error {
	if px == nil {
		return fmt.Errorf("add proxy: nil proxy")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.states[px]; exists {
		return fmt.Errorf("add proxy %s: %w", px, ErrDuplicate)
	}
	p.states[px] = stateAvailable
	p.queue = append(p.queue, px)
	p.stats.Size++
	p.stats.Available++
	return nil
}

// Acquire removes and returns the proxy at the front of the queue.
func (p *Pool) Acquire() (*Proxy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		if p.stats.Size > 0 && p.stats.Retired == p.stats.Size {
			return nil, ErrPoolDrained
		}
		return nil, ErrPoolEmpty
	}

	return p.takeAt(0), nil
}

// AcquireExcept is Acquire that passes over proxies in skip while some
// live proxy outside skip exists. If every such proxy is busy right now it
// reports ErrPoolEmpty. Once skip covers every live proxy it behaves like
// Acquire. Skipped proxies keep their queue position.
func (p *Pool) AcquireExcept(skip map[*Proxy]bool) (*Proxy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		if p.stats.Size > 0 && p.stats.Retired == p.stats.Size {
			return nil, ErrPoolDrained
		}
		return nil, ErrPoolEmpty
	}

	skippedLive := 0
	for px := range skip {
		if st, ok := p.states[px]; ok && st != stateRetired {
			skippedLive++
		}
	}
	if skippedLive >= p.stats.Size-p.stats.Retired {
		return p.takeAt(0), nil
	}

	for i, px := range p.queue {
		if !skip[px] {
			return p.takeAt(i), nil
		}
	}
	return nil, ErrPoolEmpty
}

// takeAt removes the queued proxy at index i and checks it out. It must
// be called with p.mu held.
func (p *Pool) takeAt(i int) *Proxy {
	px := p.queue[i]
	copy(p.queue[i:], p.queue[i+1:])
	p.queue[len(p.queue)-1] = nil
	p.queue = p.queue[:len(p.queue)-1]
	p.move(px, stateAvailable, stateCheckedOut)
	return px
}

// Release puts a checked-out proxy at the back of the queue.
func (p *Pool) Release(px *Proxy) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.expect(px, stateCheckedOut, ErrNotCheckedOut); err != nil {
		return fmt.Errorf("release proxy %s: %w", px, err)
	}
	p.move(px, stateCheckedOut, stateAvailable)
	p.queue = append(p.queue, px)
	return nil
}

// Retire takes a checked-out proxy out of rotation for good.
func (p *Pool) Retire(px *Proxy) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.expect(px, stateCheckedOut, ErrNotCheckedOut); err != nil {
		return fmt.Errorf("retire proxy %s: %w", px, err)
	}
	p.move(px, stateCheckedOut, stateRetired)
	return nil
}

// RecordUse counts one fetch attempt on a checked-out proxy. The returned
// flag reports that the cap has been reached and the next use must be
// preceded by a cooldown.
func (p *Pool) RecordUse(px *Proxy) (int, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.expect(px, stateCheckedOut, ErrNotCheckedOut); err != nil {
		return 0, false, fmt.Errorf("record use of proxy %s: %w", px, err)
	}
	n, capped := p.usage.Increment(px)
	return n, capped, nil
}

// NeedsCooldown reports whether the proxy has reached its usage cap.
func (p *Pool) NeedsCooldown(px *Proxy) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usage.AtLimit(px)
}

// BeginCooldown moves a checked-out proxy into the cooling state. The
// caller keeps holding it and must call EndCooldown after its pause.
func (p *Pool) BeginCooldown(px *Proxy) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.expect(px, stateCheckedOut, ErrNotCheckedOut); err != nil {
		return fmt.Errorf("begin cooldown of proxy %s: %w", px, err)
	}
	p.move(px, stateCheckedOut, stateCooling)
	return nil
}

// EndCooldown resets the proxy's usage counter to zero and hands it back
// to the caller as checked out.
func (p *Pool) EndCooldown(px *Proxy) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.expect(px, stateCooling, ErrNotCooling); err != nil {
		return fmt.Errorf("end cooldown of proxy %s: %w", px, err)
	}
	p.usage.Reset(px)
	p.move(px, stateCooling, stateCheckedOut)
	return nil
}

// Usage returns the proxy's current usage count.
func (p *Pool) Usage(px *Proxy) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usage.Count(px)
}

// Stats returns the current state counts.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Limit returns the configured usage cap.
func (p *Pool) Limit() int {
	return p.usage.limit
}

func (p *Pool) expect(px *Proxy, want state, mismatch error) error {
	got, ok := p.states[px]
	if !ok {
		return ErrUnknownProxy
	}
	if got != want {
		return fmt.Errorf("%w (state %s)", mismatch, got)
	}
	return nil
}

// move must be called with p.mu held.
func (p *Pool) move(px *Proxy, from, to state) {
	p.states[px] = to
	p.adjust(from, -1)
	p.adjust(to, 1)
}

func (p *Pool) adjust(s state, delta int) {
	switch s {
	case stateAvailable:
		p.stats.Available += delta
	case stateCheckedOut:
		p.stats.CheckedOut += delta
	case stateCooling:
		p.stats.Cooling += delta
	case stateRetired:
		p.stats.Retired += delta
	}
}
