package proxy

// usageCounter counts fetch attempts per proxy against a cap.
// It is owned by Pool and only touched with the pool lock held.
type usageCounter struct {
	limit  int
	counts map[*Proxy]int
}

func newUsageCounter(limit int) *usageCounter {
	return &usageCounter{
		limit:  limit,
		counts: make(map[*Proxy]int),
	}
}

// AtLimit reports whether the proxy must cool down before its next use.
// Does NOT modify state.
func (u *usageCounter) AtLimit(p *Proxy) bool {
	return u.counts[p] >= u.limit
}

// Increment records one use and returns the new count and whether the
// cap has been reached.
func (u *usageCounter) Increment(p *Proxy) (int, bool) {
	u.counts[p]++
	n := u.counts[p]
	return n, n >= u.limit
}

// Reset sets the counter back to zero.
func (u *usageCounter) Reset(p *Proxy) {
	u.counts[p] = 0
}

// Count returns the current count for a proxy.
func (u *usageCounter) Count(p *Proxy) int {
	return u.counts[p]
}
