package resilience

// ring is a fixed-capacity buffer that overwrites its oldest entry once
// full. Not safe for concurrent use; callers hold their own lock.
type ring[T any] struct {
	buf  []T
	next int
	full bool
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) append(v T) {
	r.buf[r.next] = v
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *ring[T]) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// items returns the buffered entries oldest-first.
func (r *ring[T]) items() []T {
	if !r.full {
		out := make([]T, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]T, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

// tail returns up to limit entries, newest-last.
func (r *ring[T]) tail(limit int) []T {
	all := r.items()
	if limit <= 0 || limit >= len(all) {
		return all
	}
	return all[len(all)-limit:]
}

// each visits the buffered entries in place so callers can mutate them.
func (r *ring[T]) each(fn func(*T)) {
	if !r.full {
		for i := 0; i < r.next; i++ {
			fn(&r.buf[i])
		}
		return
	}
	for i := range r.buf {
		fn(&r.buf[i])
	}
}

func (r *ring[T]) reset() {
	r.next = 0
	r.full = false
}
