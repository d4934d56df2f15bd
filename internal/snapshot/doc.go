// Package snapshot persists client subscription state: one record per
// (client, tenant, namespace, topic), holding that subscription's
// start_seqno, so a restarted client can resume every subscription at the
// sequence number it last acknowledged.
//
// Records are JSON-in-Pebble, the same shape internal/namespace uses for
// its Meta records (a small struct marshaled with encoding/json under a
// sortable key prefix), committed through a single pebblestore batch
// (DB.NewBatch, then DB.CommitBatch) so
// a whole save_subscriptions call lands atomically — the Go analogue of
// the spec's append-then-rename file swap.
package snapshot
