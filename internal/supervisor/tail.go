package supervisor

import "sync"

// Tail is an io.Writer that keeps only the last limit bytes written to it.
// It holds the application's most recent output so a startup failure can be
// reported with the traceback that caused it. Safe for concurrent use.
type Tail struct {
	mu      sync.Mutex
	buf     []byte
	limit   int
	dropped int64
}

// NewTail returns a Tail retaining at most limit bytes. A non-positive
// limit retains nothing.
func NewTail(limit int) *Tail {
	if limit < 0 {
		limit = 0
	}
	return &Tail{limit: limit}
}

// Write implements io.Writer. It never fails.
func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limit == 0 {
		t.dropped += int64(len(p))
		return len(p), nil
	}

	if len(p) >= t.limit {
		t.dropped += int64(len(t.buf) + len(p) - t.limit)
		t.buf = append(t.buf[:0], p[len(p)-t.limit:]...)
		return len(p), nil
	}

	if over := len(t.buf) + len(p) - t.limit; over > 0 {
		t.dropped += int64(over)
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	t.buf = append(t.buf, p...)
	return len(p), nil
}

// String returns the retained output, oldest first.
func (t *Tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// Truncated reports whether older output was discarded.
func (t *Tail) Truncated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped > 0
}
