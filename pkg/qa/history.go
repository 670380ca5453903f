package qa

import "sync"

// History is the append-only question log of one session. Indexes are stable
// until Reset.
type History struct {
	mu      sync.RWMutex
	records []QueryRecord
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{}
}

// Append stores rec and returns its index.
func (h *History) Append(rec QueryRecord) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return len(h.records) - 1
}

// Records returns a copy of the history in insertion order.
func (h *History) Records() []QueryRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]QueryRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Get returns the record at index i.
func (h *History) Get(i int) (QueryRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i < 0 || i >= len(h.records) {
		return QueryRecord{}, false
	}
	return h.records[i], true
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Reset clears the history. It is the only operation that removes records.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = nil
}
