package proxy

import "sync"

// Entry is one cached (seqno, payload) pair.
type Entry struct {
	Seqno   uint64
	Payload []byte
}

// UpdatesAccumulator is a fixed-capacity ring buffer of the most recent
// deliveries on a multiplexed topic, letting a late-joining downstream
// catch up without going back to the upstream broker.
type UpdatesAccumulator struct {
	mu       sync.Mutex
	capacity int
	entries  []Entry // oldest first
}

// NewUpdatesAccumulator constructs a ring bounded to capacity entries.
func NewUpdatesAccumulator(capacity int) *UpdatesAccumulator {
	if capacity <= 0 {
		capacity = 256
	}
	return &UpdatesAccumulator{capacity: capacity}
}

// Push records a new delivery, evicting the oldest entry once full.
func (a *UpdatesAccumulator) Push(seqno uint64, payload []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, Entry{Seqno: seqno, Payload: payload})
	if len(a.entries) > a.capacity {
		a.entries = a.entries[len(a.entries)-a.capacity:]
	}
}

// EarliestSeqno reports the oldest seqno still resident, if any.
func (a *UpdatesAccumulator) EarliestSeqno() (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) == 0 {
		return 0, false
	}
	return a.entries[0].Seqno, true
}

// Since returns every cached entry at or after from, in order. gapBefore
// reports whether from predates the accumulator's earliest entry, meaning
// the caller must surface Gap(kRetention) before any of the returned data.
func (a *UpdatesAccumulator) Since(from uint64) (entries []Entry, gapBefore bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) == 0 {
		return nil, false
	}
	if from < a.entries[0].Seqno {
		gapBefore = true
		from = a.entries[0].Seqno
	}
	for _, e := range a.entries {
		if e.Seqno >= from {
			entries = append(entries, e)
		}
	}
	return entries, gapBefore
}
