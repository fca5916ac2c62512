package store

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketOrders       = []byte("orders")
	bucketRecords      = []byte("records")
	bucketOrderCreated = []byte("idx_order_created")
	bucketOrderActor   = []byte("idx_order_actor")
	bucketRecActor     = []byte("idx_rec_actor")
	bucketRecParent    = []byte("idx_rec_parent")
	bucketRecFlow      = []byte("idx_rec_flow")
	bucketRecSpv       = []byte("idx_rec_spv")
)

const keySep = byte(':')

// BoltStore is the bbolt-backed implementation of Store. Values are
// gob-encoded; secondary indexes are maintained as composite-key
// buckets whose values point back at the primary row key.
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

// Compile-time interface check.
var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates the bbolt database at dbPath and
// ensures all buckets exist. Bucket creation is the idempotent
// ensure-indexes step; it runs on every open.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{
			bucketOrders, bucketRecords,
			bucketOrderCreated, bucketOrderActor,
			bucketRecActor, bucketRecParent, bucketRecFlow, bucketRecSpv,
		}
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("store: create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// ---------------------------------------------------------------------------
// Keys and codecs
// ---------------------------------------------------------------------------

// outKey builds the primary row key: txid bytes, a separator, and the
// output index big-endian so rows of one transaction sort together.
func outKey(txid string, vout uint32) []byte {
	k := make([]byte, 0, len(txid)+5)
	k = append(k, txid...)
	k = append(k, keySep)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], vout)
	return append(k, b[:]...)
}

// txidPrefix is the prefix matching every row key of one transaction.
func txidPrefix(txid string) []byte {
	return append([]byte(txid), keySep)
}

// refFromOutKey recovers a UTXOReference from a primary row key.
func refFromOutKey(k []byte) UTXOReference {
	if len(k) < 5 {
		return UTXOReference{}
	}
	return UTXOReference{
		Txid:        string(k[:len(k)-5]),
		OutputIndex: binary.BigEndian.Uint32(k[len(k)-4:]),
	}
}

// tsKey encodes a timestamp as a sortable 8-byte big-endian key part.
func tsKey(t time.Time) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(t.UnixNano()))
	return k
}

// createdIdxKey is tsKey + outKey, unique per row.
func createdIdxKey(t time.Time, ok []byte) []byte {
	return append(tsKey(t), ok...)
}

// scopedIdxKey is scope + sep + tsKey + outKey, for actor indexes.
func scopedIdxKey(scope string, t time.Time, ok []byte) []byte {
	k := make([]byte, 0, len(scope)+9+len(ok))
	k = append(k, scope...)
	k = append(k, keySep)
	k = append(k, tsKey(t)...)
	return append(k, ok...)
}

// linkIdxKey is link + sep + outKey, for parent/flow/spv indexes.
func linkIdxKey(link string, ok []byte) []byte {
	k := make([]byte, 0, len(link)+1+len(ok))
	k = append(k, link...)
	k = append(k, keySep)
	return append(k, ok...)
}

func scopePrefix(scope string) []byte {
	return append([]byte(scope), keySep)
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// ---------------------------------------------------------------------------
// Cursor helpers
// ---------------------------------------------------------------------------

// scanPrefix iterates all keys with the given prefix in ascending order.
func scanPrefix(b *bbolt.Bucket, prefix []byte, fn func(k, v []byte) error) error {
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// descendPrefix iterates keys with the given prefix in descending order.
// An empty prefix descends the whole bucket. fn returns false to stop.
func descendPrefix(b *bbolt.Bucket, prefix []byte, fn func(k, v []byte) (bool, error)) error {
	c := b.Cursor()
	var k, v []byte
	if ub := upperBound(prefix); ub == nil {
		k, v = c.Last()
	} else if sk, _ := c.Seek(ub); sk == nil {
		k, v = c.Last()
	} else {
		k, v = c.Prev()
	}
	for ; k != nil; k, v = c.Prev() {
		if len(prefix) > 0 && !bytes.HasPrefix(k, prefix) {
			break
		}
		cont, err := fn(k, v)
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return nil
}

// upperBound returns the smallest key strictly greater than every key
// with the given prefix, or nil when no such key exists.
func upperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	ub := append([]byte(nil), prefix...)
	for i := len(ub) - 1; i >= 0; i-- {
		if ub[i] < 0xff {
			ub[i]++
			return ub[:i+1]
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// UpsertOrder inserts or updates a leaf record. CreatedAt and the
// created-index entry are written only on first insert.
func (s *BoltStore) UpsertOrder(txid string, outputIndex uint32, fields []string, topic, actorKey string) error {
	if !ValidTxid(txid) {
		return fmt.Errorf("%w: %q", ErrInvalidTxid, txid)
	}

	return s.db.Update(func(btx *bbolt.Tx) error {
		ob := btx.Bucket(bucketOrders)
		key := outKey(txid, outputIndex)

		order := Order{
			Txid:        txid,
			OutputIndex: outputIndex,
			Kind:        kindFrom(fields, KindOffer),
			Topic:       topic,
			ActorKey:    actorKey,
			Fields:      append([]string(nil), fields...),
			CreatedAt:   s.now(),
		}

		isInsert := true
		if raw := ob.Get(key); raw != nil {
			var prev Order
			if err := decodeGob(raw, &prev); err != nil {
				return fmt.Errorf("store: decode order: %w", err)
			}
			order.CreatedAt = prev.CreatedAt
			isInsert = false
			if prev.ActorKey != actorKey {
				if prev.ActorKey != "" {
					if err := btx.Bucket(bucketOrderActor).Delete(scopedIdxKey(prev.ActorKey, prev.CreatedAt, key)); err != nil {
						return fmt.Errorf("store: drop stale actor index: %w", err)
					}
				}
				if actorKey != "" {
					if err := btx.Bucket(bucketOrderActor).Put(scopedIdxKey(actorKey, prev.CreatedAt, key), key); err != nil {
						return fmt.Errorf("store: put actor index: %w", err)
					}
				}
			}
		}

		data, err := encodeGob(&order)
		if err != nil {
			return fmt.Errorf("store: encode order: %w", err)
		}
		if err := ob.Put(key, data); err != nil {
			return fmt.Errorf("store: put order: %w", err)
		}

		if isInsert {
			if err := btx.Bucket(bucketOrderCreated).Put(createdIdxKey(order.CreatedAt, key), key); err != nil {
				return fmt.Errorf("store: put created index: %w", err)
			}
			if actorKey != "" {
				if err := btx.Bucket(bucketOrderActor).Put(scopedIdxKey(actorKey, order.CreatedAt, key), key); err != nil {
					return fmt.Errorf("store: put actor index: %w", err)
				}
			}
		}

		// A late-arriving order may already have records pointing at it.
		return s.backfillDown(btx, txid, txid, backfillDepth)
	})
}

// UpsertRecord inserts or updates a derived record, resolving FlowID
// through the parent inside the same transaction and backfilling
// linked rows in both directions.
func (s *BoltStore) UpsertRecord(txid string, outputIndex uint32, fields []string, topic, actorKey string) error {
	if !ValidTxid(txid) {
		return fmt.Errorf("%w: %q", ErrInvalidTxid, txid)
	}

	return s.db.Update(func(btx *bbolt.Tx) error {
		rb := btx.Bucket(bucketRecords)
		key := outKey(txid, outputIndex)

		parent := parentCandidate(fields)
		flow, err := s.resolveFlow(btx, parent)
		if err != nil {
			return err
		}

		rec := Record{
			Txid:        txid,
			OutputIndex: outputIndex,
			Kind:        kindFrom(fields, KindCommitment),
			Topic:       topic,
			ActorKey:    actorKey,
			Fields:      append([]string(nil), fields...),
			ParentTxid:  parent,
			FlowID:      flow,
			CreatedAt:   s.now(),
		}

		isInsert := true
		if raw := rb.Get(key); raw != nil {
			var prev Record
			if err := decodeGob(raw, &prev); err != nil {
				return fmt.Errorf("store: decode record: %w", err)
			}
			isInsert = false
			rec.CreatedAt = prev.CreatedAt
			rec.Spv = prev.Spv
			rec.HydratedBEEF = prev.HydratedBEEF
			if prev.FlowID != "" {
				// FlowID is fill-only: never contradict an earlier write.
				rec.FlowID = prev.FlowID
			}
			if err := s.reindexRecordLinks(btx, key, &prev, &rec); err != nil {
				return err
			}
		}

		if err := s.putRecord(btx, key, &rec); err != nil {
			return err
		}

		if isInsert {
			if actorKey != "" {
				if err := btx.Bucket(bucketRecActor).Put(scopedIdxKey(actorKey, rec.CreatedAt, key), key); err != nil {
					return fmt.Errorf("store: put actor index: %w", err)
				}
			}
			if parent != "" {
				if err := btx.Bucket(bucketRecParent).Put(linkIdxKey(parent, key), key); err != nil {
					return fmt.Errorf("store: put parent index: %w", err)
				}
			}
			if rec.FlowID != "" {
				if err := btx.Bucket(bucketRecFlow).Put(linkIdxKey(rec.FlowID, key), key); err != nil {
					return fmt.Errorf("store: put flow index: %w", err)
				}
			}
		}

		if rec.FlowID != "" {
			if parent != "" {
				if err := s.backfillUp(btx, parent, rec.FlowID, backfillDepth); err != nil {
					return err
				}
			}
			if err := s.backfillDown(btx, txid, rec.FlowID, backfillDepth); err != nil {
				return err
			}
		}
		return nil
	})
}

// reindexRecordLinks reconciles actor/parent/flow index entries when an
// existing row's projection fields change on replay.
func (s *BoltStore) reindexRecordLinks(btx *bbolt.Tx, key []byte, prev, next *Record) error {
	if prev.ActorKey != next.ActorKey {
		if prev.ActorKey != "" {
			if err := btx.Bucket(bucketRecActor).Delete(scopedIdxKey(prev.ActorKey, prev.CreatedAt, key)); err != nil {
				return fmt.Errorf("store: drop stale actor index: %w", err)
			}
		}
		if next.ActorKey != "" {
			if err := btx.Bucket(bucketRecActor).Put(scopedIdxKey(next.ActorKey, next.CreatedAt, key), key); err != nil {
				return fmt.Errorf("store: put actor index: %w", err)
			}
		}
	}
	if prev.ParentTxid != next.ParentTxid {
		if prev.ParentTxid != "" {
			if err := btx.Bucket(bucketRecParent).Delete(linkIdxKey(prev.ParentTxid, key)); err != nil {
				return fmt.Errorf("store: drop stale parent index: %w", err)
			}
		}
		if next.ParentTxid != "" {
			if err := btx.Bucket(bucketRecParent).Put(linkIdxKey(next.ParentTxid, key), key); err != nil {
				return fmt.Errorf("store: put parent index: %w", err)
			}
		}
	}
	if prev.FlowID != next.FlowID && next.FlowID != "" {
		if err := btx.Bucket(bucketRecFlow).Put(linkIdxKey(next.FlowID, key), key); err != nil {
			return fmt.Errorf("store: put flow index: %w", err)
		}
	}
	return nil
}

// putRecord gob-encodes and stores a record row.
func (s *BoltStore) putRecord(btx *bbolt.Tx, key []byte, rec *Record) error {
	data, err := encodeGob(rec)
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}
	if err := btx.Bucket(bucketRecords).Put(key, data); err != nil {
		return fmt.Errorf("store: put record: %w", err)
	}
	return nil
}

// resolveFlow derives the flow root for a record whose parent is the
// given txid: a parent record's known FlowID wins, else a parent
// order's txid, else unresolved.
func (s *BoltStore) resolveFlow(btx *bbolt.Tx, parent string) (string, error) {
	if parent == "" {
		return "", nil
	}
	rec, _, err := s.firstRecord(btx, parent)
	if err != nil {
		return "", err
	}
	if rec != nil && rec.FlowID != "" {
		return rec.FlowID, nil
	}

	hasOrder := false
	err = scanPrefix(btx.Bucket(bucketOrders), txidPrefix(parent), func(k, v []byte) error {
		hasOrder = true
		return nil
	})
	if err != nil {
		return "", err
	}
	if hasOrder {
		return parent, nil
	}
	return "", nil
}

// firstRecord loads the record row with the lowest output index for
// txid, returning (nil, nil, nil) when no row exists.
func (s *BoltStore) firstRecord(btx *bbolt.Tx, txid string) (*Record, []byte, error) {
	var rec *Record
	var key []byte
	err := scanPrefix(btx.Bucket(bucketRecords), txidPrefix(txid), func(k, v []byte) error {
		if rec != nil {
			return nil
		}
		var r Record
		if err := decodeGob(v, &r); err != nil {
			return fmt.Errorf("store: decode record: %w", err)
		}
		rec = &r
		key = append([]byte(nil), k...)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return rec, key, nil
}

// backfillUp walks parent links upward filling empty FlowIDs.
func (s *BoltStore) backfillUp(btx *bbolt.Tx, txid, flow string, depth int) error {
	for hop := 0; hop < depth && txid != ""; hop++ {
		rec, key, err := s.firstRecord(btx, txid)
		if err != nil {
			return err
		}
		if rec == nil || rec.FlowID != "" {
			return nil
		}
		rec.FlowID = flow
		if err := s.putRecord(btx, key, rec); err != nil {
			return err
		}
		if err := btx.Bucket(bucketRecFlow).Put(linkIdxKey(flow, key), key); err != nil {
			return fmt.Errorf("store: put flow index: %w", err)
		}
		txid = rec.ParentTxid
	}
	return nil
}

// backfillDown fills empty FlowIDs on records that declared txid as
// their parent, recursively, bounded by depth.
func (s *BoltStore) backfillDown(btx *bbolt.Tx, txid, flow string, depth int) error {
	if depth <= 0 {
		return nil
	}
	var childKeys [][]byte
	err := scanPrefix(btx.Bucket(bucketRecParent), scopePrefix(txid), func(k, v []byte) error {
		childKeys = append(childKeys, append([]byte(nil), v...))
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range childKeys {
		raw := btx.Bucket(bucketRecords).Get(key)
		if raw == nil {
			continue // stale index entry
		}
		var rec Record
		if err := decodeGob(raw, &rec); err != nil {
			return fmt.Errorf("store: decode record: %w", err)
		}
		if rec.FlowID != "" {
			continue
		}
		rec.FlowID = flow
		if err := s.putRecord(btx, key, &rec); err != nil {
			return err
		}
		if err := btx.Bucket(bucketRecFlow).Put(linkIdxKey(flow, key), key); err != nil {
			return fmt.Errorf("store: put flow index: %w", err)
		}
		if err := s.backfillDown(btx, rec.Txid, flow, depth-1); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Paginated reads
// ---------------------------------------------------------------------------

// RecentOrders returns order references, newest first.
func (s *BoltStore) RecentOrders(limit, skip int) ([]UTXOReference, error) {
	limit, skip = clampPage(limit, skip)
	refs := []UTXOReference{}
	err := s.db.View(func(btx *bbolt.Tx) error {
		skipped := 0
		return descendPrefix(btx.Bucket(bucketOrderCreated), nil, func(k, v []byte) (bool, error) {
			if skipped < skip {
				skipped++
				return true, nil
			}
			refs = append(refs, refFromOutKey(v))
			return len(refs) < limit, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// OrdersByActor returns orders authored by actorKey, newest first.
func (s *BoltStore) OrdersByActor(actorKey string, limit, skip int) ([]UTXOReference, error) {
	limit, skip = clampPage(limit, skip)
	refs := []UTXOReference{}
	err := s.db.View(func(btx *bbolt.Tx) error {
		skipped := 0
		return descendPrefix(btx.Bucket(bucketOrderActor), scopePrefix(actorKey), func(k, v []byte) (bool, error) {
			if skipped < skip {
				skipped++
				return true, nil
			}
			refs = append(refs, refFromOutKey(v))
			return len(refs) < limit, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// CommitmentsByActor returns commitment records authored by actorKey,
// newest first. The actor index covers all record kinds, so rows are
// filtered after load.
func (s *BoltStore) CommitmentsByActor(actorKey string, limit, skip int) ([]UTXOReference, error) {
	limit, skip = clampPage(limit, skip)
	refs := []UTXOReference{}
	err := s.db.View(func(btx *bbolt.Tx) error {
		rb := btx.Bucket(bucketRecords)
		skipped := 0
		return descendPrefix(btx.Bucket(bucketRecActor), scopePrefix(actorKey), func(k, v []byte) (bool, error) {
			raw := rb.Get(v)
			if raw == nil {
				return true, nil // stale index entry
			}
			var rec Record
			if err := decodeGob(raw, &rec); err != nil {
				return false, fmt.Errorf("store: decode record: %w", err)
			}
			if rec.Kind != KindCommitment {
				return true, nil
			}
			if skipped < skip {
				skipped++
				return true, nil
			}
			refs = append(refs, refFromOutKey(v))
			return len(refs) < limit, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// ---------------------------------------------------------------------------
// Flow expansion
// ---------------------------------------------------------------------------

type flowRow struct {
	ref       UTXOReference
	createdAt time.Time
	key       string
}

func sortFlowRows(rows []flowRow) []UTXOReference {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].createdAt.Equal(rows[j].createdAt) {
			return rows[i].createdAt.Before(rows[j].createdAt)
		}
		return rows[i].key < rows[j].key
	})
	refs := make([]UTXOReference, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, r.ref)
	}
	return refs
}

// FlowByOrder returns the order plus every linked record, oldest first.
func (s *BoltStore) FlowByOrder(orderTxid string) ([]UTXOReference, error) {
	refs := []UTXOReference{}
	err := s.db.View(func(btx *bbolt.Tx) error {
		var err error
		refs, err = s.expandFlow(btx, orderTxid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// FlowByCommitment resolves the commitment's flow root and expands it.
func (s *BoltStore) FlowByCommitment(commitTxid string) ([]UTXOReference, error) {
	refs := []UTXOReference{}
	err := s.db.View(func(btx *bbolt.Tx) error {
		root := commitTxid
		rec, _, err := s.firstRecord(btx, commitTxid)
		if err != nil {
			return err
		}
		if rec != nil {
			if rec.FlowID != "" {
				root = rec.FlowID
			} else if rec.ParentTxid != "" {
				root = rec.ParentTxid
			}
		}
		refs, err = s.expandFlow(btx, root)
		return err
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// expandFlow gathers the flow rooted at root: order rows first, then
// records linked by txid, FlowID or ParentTxid, each group oldest first.
func (s *BoltStore) expandFlow(btx *bbolt.Tx, root string) ([]UTXOReference, error) {
	var orderRows []flowRow
	err := scanPrefix(btx.Bucket(bucketOrders), txidPrefix(root), func(k, v []byte) error {
		var o Order
		if err := decodeGob(v, &o); err != nil {
			return fmt.Errorf("store: decode order: %w", err)
		}
		orderRows = append(orderRows, flowRow{
			ref:       UTXOReference{Txid: o.Txid, OutputIndex: o.OutputIndex},
			createdAt: o.CreatedAt,
			key:       string(k),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	rb := btx.Bucket(bucketRecords)
	seen := map[string]bool{}
	var recordRows []flowRow
	addRecordKey := func(key []byte) error {
		if seen[string(key)] {
			return nil
		}
		raw := rb.Get(key)
		if raw == nil {
			return nil // stale index entry
		}
		var rec Record
		if err := decodeGob(raw, &rec); err != nil {
			return fmt.Errorf("store: decode record: %w", err)
		}
		seen[string(key)] = true
		recordRows = append(recordRows, flowRow{
			ref:       UTXOReference{Txid: rec.Txid, OutputIndex: rec.OutputIndex},
			createdAt: rec.CreatedAt,
			key:       string(key),
		})
		return nil
	}

	err = scanPrefix(rb, txidPrefix(root), func(k, v []byte) error {
		return addRecordKey(k)
	})
	if err != nil {
		return nil, err
	}
	for _, idx := range [][]byte{bucketRecFlow, bucketRecParent} {
		err = scanPrefix(btx.Bucket(idx), scopePrefix(root), func(k, v []byte) error {
			return addRecordKey(v)
		})
		if err != nil {
			return nil, err
		}
	}

	refs := sortFlowRows(orderRows)
	return append(refs, sortFlowRows(recordRows)...), nil
}

// ---------------------------------------------------------------------------
// SPV support
// ---------------------------------------------------------------------------

// RecordByTxid returns the record row with the lowest output index for
// txid, or ErrNotFound.
func (s *BoltStore) RecordByTxid(txid string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(btx *bbolt.Tx) error {
		r, _, err := s.firstRecord(btx, txid)
		rec = r
		return err
	})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// OutputIndexesForTxid returns recorded output indexes for txid,
// preferring preferKind rows, sorted and de-duplicated.
func (s *BoltStore) OutputIndexesForTxid(txid string, preferKind Kind) ([]uint32, error) {
	if txid == "" {
		return nil, nil
	}
	preferred := map[uint32]bool{}
	all := map[uint32]bool{}
	err := s.db.View(func(btx *bbolt.Tx) error {
		return scanPrefix(btx.Bucket(bucketRecords), txidPrefix(txid), func(k, v []byte) error {
			var rec Record
			if err := decodeGob(v, &rec); err != nil {
				return fmt.Errorf("store: decode record: %w", err)
			}
			all[rec.OutputIndex] = true
			if rec.Kind == preferKind {
				preferred[rec.OutputIndex] = true
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	set := preferred
	if len(set) == 0 {
		set = all
	}
	out := make([]uint32, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// CacheSpv merges an enrichment verdict onto the first record row for
// txid. Confirmed is never downgraded; the transient error state is
// never persisted.
func (s *BoltStore) CacheSpv(txid string, info *SpvInfo) error {
	if info == nil {
		return fmt.Errorf("%w: spv info", ErrNilParam)
	}
	if info.State == SpvError {
		return nil
	}

	return s.db.Update(func(btx *bbolt.Tx) error {
		rec, key, err := s.firstRecord(btx, txid)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrNotFound
		}
		if rec.Spv != nil && rec.Spv.State == SpvConfirmed {
			return nil
		}
		if err := s.reindexSpvState(btx, key, rec.Spv, info.State); err != nil {
			return err
		}
		rec.Spv = mergeSpv(rec.Spv, info)
		return s.putRecord(btx, key, rec)
	})
}

// ConfirmSpv stores a confirmed verdict plus hydrated BEEF bytes,
// reporting whether anything changed.
func (s *BoltStore) ConfirmSpv(txid string, info *SpvInfo, hydrated []byte) (bool, error) {
	if info == nil {
		return false, fmt.Errorf("%w: spv info", ErrNilParam)
	}

	changed := false
	err := s.db.Update(func(btx *bbolt.Tx) error {
		rec, key, err := s.firstRecord(btx, txid)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrNotFound
		}

		next := *info
		next.State = SpvConfirmed
		changed = rec.Spv == nil ||
			rec.Spv.State != SpvConfirmed ||
			rec.Spv.BlockHash != next.BlockHash ||
			!bytes.Equal(rec.HydratedBEEF, hydrated)

		if err := s.reindexSpvState(btx, key, rec.Spv, SpvConfirmed); err != nil {
			return err
		}
		rec.Spv = &next
		rec.HydratedBEEF = append([]byte(nil), hydrated...)
		return s.putRecord(btx, key, rec)
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// reindexSpvState moves the spv-state index entry for a row.
func (s *BoltStore) reindexSpvState(btx *bbolt.Tx, key []byte, prev *SpvInfo, next SpvState) error {
	sb := btx.Bucket(bucketRecSpv)
	if prev != nil && prev.State != "" && prev.State != next {
		if err := sb.Delete(linkIdxKey(string(prev.State), key)); err != nil {
			return fmt.Errorf("store: drop stale spv index: %w", err)
		}
	}
	if err := sb.Put(linkIdxKey(string(next), key), key); err != nil {
		return fmt.Errorf("store: put spv index: %w", err)
	}
	return nil
}

// PendingSpv returns up to limit txids still in the pending state,
// oldest first.
func (s *BoltStore) PendingSpv(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []flowRow
	seen := map[string]bool{}
	err := s.db.View(func(btx *bbolt.Tx) error {
		rb := btx.Bucket(bucketRecords)
		return scanPrefix(btx.Bucket(bucketRecSpv), scopePrefix(string(SpvPending)), func(k, v []byte) error {
			ref := refFromOutKey(v)
			if ref.Txid == "" || seen[ref.Txid] {
				return nil
			}
			raw := rb.Get(v)
			if raw == nil {
				return nil // stale index entry
			}
			var rec Record
			if err := decodeGob(raw, &rec); err != nil {
				return fmt.Errorf("store: decode record: %w", err)
			}
			seen[ref.Txid] = true
			rows = append(rows, flowRow{ref: ref, createdAt: rec.CreatedAt, key: string(v)})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	refs := sortFlowRows(rows)
	if len(refs) > limit {
		refs = refs[:limit]
	}
	txids := make([]string, 0, len(refs))
	for _, ref := range refs {
		txids = append(txids, ref.Txid)
	}
	return txids, nil
}
