// Package logstore implements RocketSpeed's concrete LogStorage backend: a
// partitioned, append-only, Pebble-backed log that the broker's LogTailer
// (C9) reads from and the publish path appends to.
//
// This package has no notion of named consumer groups or durable per-group
// cursors — RocketSpeed subscriptions resume from a client-supplied
// SequenceNumber (spec.md §3), not a server-tracked cursor, so there is
// nothing here analogous to a competing-consumer "commit offset". Resume
// state lives in internal/snapshot instead.
//
// # Overview
//
// The log is partitioned by namespace/topic/partition and persisted in Pebble.
// Keys are lexicographically ordered for efficient range scans:
//   - ns/{ns}/log/{topic}/{part_be4}/m           (partition metadata: lastSeq)
//   - ns/{ns}/log/{topic}/{part_be4}/e/{seq_be8} (entries)
//
// Records are stored as: headerLen(uvarint) | header | payload | crc32c(header|payload).
//
// API surface (internal)
//
//	l, _ := OpenLog(db, ns, topic, part)
//	// Append a batch atomically; returns assigned seq numbers
//	seqs, _ := l.Append(ctx, []AppendRecord{{Header: h, Payload: p}})
//
//	// Read forward/reverse with an optional start token and limit
//	items, next := l.Read(ReadOptions{Start: tokenFromSeq(seqs[0]), Limit: 100})
//	_ = next // resume position
//
//	// Blocking wait/notify
//	woke := l.WaitForAppend(200 * time.Millisecond)
//	_ = woke
//
//	// Trim to a byte budget, approximating retention. Batched and throttled;
//	// emits archiver ranges via ArchiverHook. internal/broker's ControlTower
//	// runs this on a timer (retentionSweeper) when
//	// Config.RetentionBytesPerLog is set; LogTailer's poll loop detects the
//	// resulting hole and surfaces it to subscribers as
//	// DeliverGap{kRetention} (spec.md §7).
//	_, _ = l.TrimToMaxBytes(ctx, maxBytes, 1024, 0)
//
// # Archiver integration
//
// A minimal ArchiverHook seam is provided. When trims delete entries, the hook
// is called with a best-effort contiguous range {minSeq, maxSeq} for the batch.
// The default implementation is a no-op; a real deployment can set l.archiver
// to capture trim ranges for export before they're gone for good.
package logstore
