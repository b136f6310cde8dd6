package scheduler

import "github.com/agenthands/amalgam/internal/core/model"

// ring is a fixed-capacity execution log; the oldest record is evicted
// on overflow. Callers synchronize.
type ring struct {
	buf  []model.ExecutionRecord
	next int
	size int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring{buf: make([]model.ExecutionRecord, capacity)}
}

func (r *ring) add(rec model.ExecutionRecord) {
	r.buf[r.next] = rec
	r.next = (r.next + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

func (r *ring) newestFirst() []model.ExecutionRecord {
	out := make([]model.ExecutionRecord, 0, r.size)
	for i := 0; i < r.size; i++ {
		idx := (r.next - 1 - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}
