package logstore

import (
	"bytes"
	"testing"
)

func TestKeyOrderingEntries(t *testing.T) {
	a := KeyLogEntry("ns", "topic", 1, 10)
	b := KeyLogEntry("ns", "topic", 1, 11)
	if !bytes.HasPrefix(a, KeyLogMeta("ns", "topic", 1)[:len(a)-8-3]) {
		t.Fatalf("entry key should share prefix with meta")
	}
	if bytes.Compare(a, b) >= 0 {
		t.Fatalf("expected seq 10 < seq 11")
	}
}
