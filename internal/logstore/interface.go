package logstore

import (
	"context"
	"time"
)

// LogStorage is the contract the broker's LogTailer (C9) reader slots
// assume of their durable backend. *Log satisfies it. Only the reader
// slots are written against this interface: the ControlTower, Room,
// retention sweeper and LogTailer.FindLatestSeqno work with *Log directly.
type LogStorage interface {
	Append(ctx context.Context, recs []AppendRecord) ([]uint64, error)
	Read(opts ReadOptions) ([]Item, Token)
}

// AsyncLogReader is the blocking-wait half of the contract, kept separate
// because some backends (e.g. a remote log service) implement it with a
// long-poll RPC rather than an in-process condition variable.
type AsyncLogReader interface {
	WaitForAppend(timeout time.Duration) bool
}

var (
	_ LogStorage     = (*Log)(nil)
	_ AsyncLogReader = (*Log)(nil)
)
