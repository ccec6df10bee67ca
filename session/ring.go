package session

// HistoryCapacity bounds both the log history and the latency history.
const HistoryCapacity = 50

// ring is a fixed-capacity FIFO. Pushing onto a full ring evicts the oldest
// element.
type ring[T any] struct {
	items []T
	limit int
}

func newRing[T any](limit int) *ring[T] {
	return &ring[T]{items: make([]T, 0, limit), limit: limit}
}

func (r *ring[T]) push(v T) {
	if len(r.items) == r.limit {
		copy(r.items, r.items[1:])
		r.items[len(r.items)-1] = v
		return
	}
	r.items = append(r.items, v)
}

// snapshot returns a copy in oldest-first order.
func (r *ring[T]) snapshot() []T {
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}
