package analyst

import "time"

// priceRing is a bounded append-only price sequence. When full, the oldest
// entry is evicted. Only the analyst writes to it.
type priceRing struct {
	buf    []float64
	head   int // next write slot
	count  int
	lastAt time.Time // timestamp of the newest sourced point, for dedupe
}

func newPriceRing(capacity int) *priceRing {
	return &priceRing{buf: make([]float64, capacity)}
}

func (r *priceRing) push(v float64) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// values returns the series oldest-to-newest as a fresh slice.
func (r *priceRing) values() []float64 {
	out := make([]float64, r.count)
	start := r.head - r.count
	for i := 0; i < r.count; i++ {
		idx := start + i
		if idx < 0 {
			idx += len(r.buf)
		}
		out[i] = r.buf[idx]
	}
	return out
}

func (r *priceRing) last() (float64, bool) {
	if r.count == 0 {
		return 0, false
	}
	idx := r.head - 1
	if idx < 0 {
		idx += len(r.buf)
	}
	return r.buf[idx], true
}
