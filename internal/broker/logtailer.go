package broker

import (
	"sync"
	"time"

	"github.com/BMDan/RocketSpeed/internal/logstore"
	"github.com/BMDan/RocketSpeed/internal/rserrors"
	"github.com/BMDan/RocketSpeed/internal/wire"
)

// LogRecord is what a reader slot delivers for ordinary data.
type LogRecord struct {
	LogID   uint64
	Seqno   uint64
	Header  []byte
	Payload []byte
}

// GapRecord is what a reader slot delivers when storage cannot supply the
// next record in order. UpTo is the seqno reading resumes at — the gap
// covers every seqno the slot's cursor expected but storage no longer has,
// up to (but not including) UpTo.
type GapRecord struct {
	LogID uint64
	Kind  wire.GapKind
	UpTo  uint64
}

// ReaderCallbacks are invoked on the owning room's goroutine as a reader
// slot's poll loop discovers new records.
type ReaderCallbacks struct {
	OnRecord func(LogRecord)
	OnGap    func(GapRecord)
}

// tailedLog is the combined LogStorage/AsyncLogReader contract a reader
// slot actually calls through — Read and WaitForAppend, nothing else —
// so Open accepts any backend that satisfies it. FindLatestSeqno still
// takes a *logstore.Log.
type tailedLog interface {
	logstore.LogStorage
	logstore.AsyncLogReader
}

// readerSlot binds one open(log_id, start, end) call to a polling
// goroutine that feeds decoded records back through a room's loop.
type readerSlot struct {
	logID  uint64
	log    tailedLog
	cb     ReaderCallbacks
	cursor logstore.Token
	stop   chan struct{}
	done   chan struct{}
}

// LogTailer adapts LogStorage/AsyncLogReader (internal/logstore's Log) to
// the broker's reader-slot model: at most readersPerRoom concurrent open
// readers, each its own polling goroutine woken by WaitForAppend.
type LogTailer struct {
	readersPerRoom int
	submit         func(func())

	mu      sync.Mutex
	slots   map[uint64]*readerSlot
	stopped bool
}

// NewLogTailer constructs a LogTailer bounded to readersPerRoom concurrent
// slots. submit is the owning room's loop.Submit, so delivered callbacks
// run single-threaded alongside the rest of the room's state.
func NewLogTailer(readersPerRoom int, submit func(func())) *LogTailer {
	if readersPerRoom <= 0 {
		readersPerRoom = 64
	}
	return &LogTailer{readersPerRoom: readersPerRoom, submit: submit, slots: make(map[uint64]*readerSlot)}
}

// Open binds a new reader slot to l starting at start, invoking cb on the
// room's loop for every record or gap discovered from that point forward.
// Returns QueueFull if every slot is already in use.
func (t *LogTailer) Open(logID uint64, l tailedLog, start logstore.Token, cb ReaderCallbacks) error {
	t.mu.Lock()
	if len(t.slots) >= t.readersPerRoom {
		t.mu.Unlock()
		return rserrors.New("broker.LogTailer.Open", rserrors.QueueFull, nil)
	}
	slot := &readerSlot{logID: logID, log: l, cb: cb, cursor: start, stop: make(chan struct{}), done: make(chan struct{})}
	t.slots[logID] = slot
	t.mu.Unlock()

	go t.pollLoop(slot)
	return nil
}

// Close releases the reader slot for logID, if any.
func (t *LogTailer) Close(logID uint64) {
	t.mu.Lock()
	slot, ok := t.slots[logID]
	if ok {
		delete(t.slots, logID)
	}
	t.mu.Unlock()
	if ok {
		close(slot.stop)
		<-slot.done
	}
}

// Stop cuts the adapter free from storage during shutdown, closing every
// open slot.
func (t *LogTailer) Stop() {
	t.mu.Lock()
	slots := make([]*readerSlot, 0, len(t.slots))
	for _, s := range t.slots {
		slots = append(slots, s)
	}
	t.slots = make(map[uint64]*readerSlot)
	t.stopped = true
	t.mu.Unlock()

	for _, s := range slots {
		close(s.stop)
		<-s.done
	}
}

func (t *LogTailer) pollLoop(slot *readerSlot) {
	defer close(slot.done)
	for {
		select {
		case <-slot.stop:
			return
		default:
		}

		items, next := slot.log.Read(logstore.ReadOptions{Start: slot.cursor, Limit: 256})
		if len(items) == 0 {
			if !slot.log.WaitForAppend(2 * time.Second) {
				continue
			}
			continue
		}
		// A resume position (nonzero cursor) whose first surviving item sits
		// past the requested seqno means storage trimmed the records in
		// between — surface that as a retention gap before delivering what's
		// left, rather than silently skipping ahead.
		requested := slot.cursor.Seq()
		gapUpTo := uint64(0)
		if requested != 0 && items[0].Seq > requested {
			gapUpTo = items[0].Seq
		}
		// Read returns a zero Token once the iterator drains past the last
		// entry instead of "last seq + 1"; fall back to the tail item's own
		// seq so the next poll resumes just past it rather than rewinding
		// to the start of the log.
		if next == (logstore.Token{}) {
			next = logstore.TokenFromSeq(items[len(items)-1].Seq + 1)
		}
		slot.cursor = next

		t.submit(func() {
			if gapUpTo != 0 && slot.cb.OnGap != nil {
				slot.cb.OnGap(GapRecord{LogID: slot.logID, Kind: wire.GapRetention, UpTo: gapUpTo})
			}
			for _, item := range items {
				if slot.cb.OnRecord != nil {
					slot.cb.OnRecord(LogRecord{LogID: slot.logID, Seqno: item.Seq, Header: item.Header, Payload: item.Payload})
				}
			}
		})
	}
}

// FindLatestSeqno asynchronously resolves the current tail of l: it reads
// on a new goroutine and invokes cb on that goroutine once storage has
// answered, so the caller never blocks on storage.
func (t *LogTailer) FindLatestSeqno(l *logstore.Log, cb func(seqno uint64, found bool)) {
	go func() {
		items, _ := l.Read(logstore.ReadOptions{Reverse: true, Limit: 1})
		if len(items) == 0 {
			cb(0, false)
			return
		}
		cb(items[0].Seq, true)
	}()
}
