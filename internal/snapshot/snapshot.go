package snapshot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/BMDan/RocketSpeed/internal/storage/pebble"
	"github.com/BMDan/RocketSpeed/internal/wire"
)

// Record is one persisted subscription: where to resume it from on
// restore.
type Record struct {
	TenantID    wire.TenantID `json:"tenantId"`
	Namespace   string        `json:"namespace"`
	Topic       string        `json:"topic"`
	StartSeqno  uint64        `json:"startSeqno"`
}

const keyPrefix = "subsnap/"

func recordKey(clientID string, tenant wire.TenantID, ns, topic string) []byte {
	return []byte(fmt.Sprintf("%s%s/%d/%s/%s", keyPrefix, clientID, tenant, ns, topic))
}

func scanPrefix(clientID string) []byte {
	return []byte(fmt.Sprintf("%s%s/", keyPrefix, clientID))
}

// Store persists and restores subscription snapshots for one client
// identity, scoped by clientID so multiple client instances can share a
// database without colliding.
type Store struct {
	db       *pebblestore.DB
	clientID string
}

// NewStore constructs a Store scoped to clientID.
func NewStore(db *pebblestore.DB, clientID string) *Store {
	return &Store{db: db, clientID: clientID}
}

// Append stages one subscription record into batch. Call Commit once every
// worker's records have been appended, so the whole snapshot lands
// atomically — the save_subscriptions contract.
func (s *Store) Append(batch *pebble.Batch, rec Record) error {
	v, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return batch.Set(recordKey(s.clientID, rec.TenantID, rec.Namespace, rec.Topic), v, nil)
}

// NewBatch starts a fresh batch for a save_subscriptions call.
func (s *Store) NewBatch() *pebble.Batch { return s.db.NewBatch() }

// Commit atomically applies every record appended to batch.
func (s *Store) Commit(ctx context.Context, batch *pebble.Batch) error {
	return s.db.CommitBatch(ctx, batch)
}

// Restore reads every persisted record back for this client, the
// synchronous read-back that feeds SubscriptionParameters on startup.
func (s *Store) Restore() ([]Record, error) {
	prefix := scanPrefix(s.clientID)
	hi := append(append([]byte{}, prefix...), 0xFF)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Record
	for ok := iter.First(); ok; ok = iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
