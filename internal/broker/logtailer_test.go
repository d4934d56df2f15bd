package broker

import (
	"context"
	"testing"
	"time"

	"github.com/BMDan/RocketSpeed/internal/logstore"
	pebblestore "github.com/BMDan/RocketSpeed/internal/storage/pebble"
	"github.com/BMDan/RocketSpeed/internal/wire"
)

func newTestDB(t *testing.T) *pebblestore.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLogTailerDeliversAppendedRecords(t *testing.T) {
	db := newTestDB(t)
	l, err := logstore.OpenLog(db, "ns", "topic", 0)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}

	submitted := make(chan func(), 16)
	tailer := NewLogTailer(4, func(fn func()) { submitted <- fn })

	records := make(chan LogRecord, 16)
	if err := tailer.Open(1, l, logstore.TokenFromSeq(0), ReaderCallbacks{
		OnRecord: func(rec LogRecord) { records <- rec },
	}); err != nil {
		t.Fatalf("open slot: %v", err)
	}
	defer tailer.Stop()

	if _, err := l.Append(context.Background(), []logstore.AppendRecord{{Payload: []byte("hello")}}); err != nil {
		t.Fatalf("append: %v", err)
	}

	select {
	case fn := <-submitted:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("no callback submitted for appended record")
	}

	select {
	case rec := <-records:
		if string(rec.Payload) != "hello" {
			t.Fatalf("payload = %q, want hello", rec.Payload)
		}
	default:
		t.Fatal("expected a record to have been delivered")
	}
}

func TestLogTailerSurfacesRetentionGapAfterTrim(t *testing.T) {
	db := newTestDB(t)
	l, err := logstore.OpenLog(db, "ns", "topic", 0)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := l.Append(context.Background(), []logstore.AppendRecord{{Payload: []byte("0123456789")}}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	// Trim aggressively enough that resuming from seqno 1 no longer finds it.
	if _, err := l.TrimToMaxBytes(context.Background(), 20, 10, 0); err != nil {
		t.Fatalf("trim: %v", err)
	}

	submitted := make(chan func(), 16)
	tailer := NewLogTailer(4, func(fn func()) { submitted <- fn })
	gaps := make(chan GapRecord, 4)
	records := make(chan LogRecord, 16)
	if err := tailer.Open(1, l, logstore.TokenFromSeq(1), ReaderCallbacks{
		OnRecord: func(rec LogRecord) { records <- rec },
		OnGap:    func(gap GapRecord) { gaps <- gap },
	}); err != nil {
		t.Fatalf("open slot: %v", err)
	}
	defer tailer.Stop()

	select {
	case fn := <-submitted:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("no callback submitted after trim")
	}

	select {
	case gap := <-gaps:
		if gap.Kind != wire.GapRetention {
			t.Fatalf("gap.Kind = %v, want GapRetention", gap.Kind)
		}
		if gap.UpTo <= 1 {
			t.Fatalf("gap.UpTo = %d, want > 1 (first surviving seqno after trim)", gap.UpTo)
		}
	default:
		t.Fatal("expected a gap to be reported for the trimmed range")
	}
}

func TestLogTailerOpenRejectsWhenFull(t *testing.T) {
	db := newTestDB(t)
	l, err := logstore.OpenLog(db, "ns", "topic", 0)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	tailer := NewLogTailer(1, func(fn func()) { fn() })
	if err := tailer.Open(1, l, logstore.TokenFromSeq(0), ReaderCallbacks{}); err != nil {
		t.Fatalf("first open: %v", err)
	}
	defer tailer.Stop()
	if err := tailer.Open(2, l, logstore.TokenFromSeq(0), ReaderCallbacks{}); err == nil {
		t.Fatal("expected QueueFull once every slot is in use")
	}
}

func TestLogTailerFindLatestSeqno(t *testing.T) {
	db := newTestDB(t)
	l, err := logstore.OpenLog(db, "ns", "topic", 0)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := l.Append(context.Background(), []logstore.AppendRecord{{Payload: []byte("a")}, {Payload: []byte("b")}}); err != nil {
		t.Fatalf("append: %v", err)
	}

	tailer := NewLogTailer(4, func(fn func()) { fn() })
	done := make(chan struct{})
	var gotSeqno uint64
	var gotFound bool
	tailer.FindLatestSeqno(l, func(seqno uint64, found bool) {
		gotSeqno, gotFound = seqno, found
		close(done)
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("FindLatestSeqno never answered")
	}
	if !gotFound || gotSeqno != 2 {
		t.Fatalf("got (seqno=%d, found=%v), want (2, true)", gotSeqno, gotFound)
	}
}
