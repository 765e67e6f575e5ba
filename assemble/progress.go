package assemble

import "sync"

// ProgressFunc receives cumulative downloaded bytes against the declared
// total of all fragments.
type ProgressFunc func(downloaded, total int64)

// tracker accounts progress across fragments. Completed fragments count at
// their declared size; the fragment in flight counts its transferred bytes,
// capped at its declared size. Reported values never decrease.
type tracker struct {
	mu       sync.Mutex
	total    int64
	finished int64
	inFlight map[int]int64
	last     int64
	fn       ProgressFunc
}

func newTracker(total int64, fn ProgressFunc) *tracker {
	return &tracker{total: total, inFlight: map[int]int64{}, fn: fn}
}

func (t *tracker) report(locked func()) {
	t.mu.Lock()
	locked()
	v := t.finished
	for _, n := range t.inFlight {
		v += n
	}
	v = min(v, t.total)
	if v < t.last {
		v = t.last
	}
	t.last = v
	fn := t.fn
	t.mu.Unlock()

	if fn != nil {
		fn(v, t.total)
	}
}

// transferred sets the bytes received so far for fragment idx.
func (t *tracker) transferred(idx int, n, declared int64) {
	t.report(func() { t.inFlight[idx] = min(n, declared) })
}

// finish marks fragment idx complete at its declared size.
func (t *tracker) finish(idx int, declared int64) {
	t.report(func() {
		delete(t.inFlight, idx)
		t.finished += declared
	})
}

// value returns the last reported value.
func (t *tracker) value() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// progressWriter forwards written byte counts to the tracker.
type progressWriter struct {
	t        *tracker
	idx      int
	declared int64
	n        int64
	onWrite  func(int64)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	w.t.transferred(w.idx, w.n, w.declared)
	if w.onWrite != nil {
		w.onWrite(int64(len(p)))
	}
	return len(p), nil
}
