package store

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of Store for testing and for
// ephemeral overlay hosts.
type MemStore struct {
	mu      sync.RWMutex
	orders  map[string]*Order
	records map[string]*Record
	seq     map[string]uint64
	nextSeq uint64
	now     func() time.Time
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		orders:  make(map[string]*Order),
		records: make(map[string]*Record),
		seq:     make(map[string]uint64),
		now:     time.Now,
	}
}

func memKey(txid string, vout uint32) string {
	return fmt.Sprintf("%s:%d", txid, vout)
}

// UpsertOrder inserts or updates a leaf record. CreatedAt is set only
// on first insert.
func (s *MemStore) UpsertOrder(txid string, outputIndex uint32, fields []string, topic, actorKey string) error {
	if !ValidTxid(txid) {
		return fmt.Errorf("%w: %q", ErrInvalidTxid, txid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := memKey(txid, outputIndex)
	createdAt := s.now()
	if existing, ok := s.orders[key]; ok {
		createdAt = existing.CreatedAt
	} else {
		s.nextSeq++
		s.seq[key] = s.nextSeq
	}

	s.orders[key] = &Order{
		Txid:        txid,
		OutputIndex: outputIndex,
		Kind:        kindFrom(fields, KindOffer),
		Topic:       topic,
		ActorKey:    actorKey,
		Fields:      append([]string(nil), fields...),
		CreatedAt:   createdAt,
	}

	// A late-arriving order may already have records pointing at it.
	s.backfillDown(txid, txid, backfillDepth)
	return nil
}

// UpsertRecord inserts or updates a derived record, resolving FlowID
// through the parent and backfilling linked rows in both directions.
func (s *MemStore) UpsertRecord(txid string, outputIndex uint32, fields []string, topic, actorKey string) error {
	if !ValidTxid(txid) {
		return fmt.Errorf("%w: %q", ErrInvalidTxid, txid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent := parentCandidate(fields)
	flow := s.resolveFlow(parent)

	key := memKey(txid, outputIndex)
	createdAt := s.now()
	var spv *SpvInfo
	var hydrated []byte
	if existing, ok := s.records[key]; ok {
		createdAt = existing.CreatedAt
		spv = existing.Spv
		hydrated = existing.HydratedBEEF
		if existing.FlowID != "" {
			// FlowID is fill-only: never contradict an earlier write.
			flow = existing.FlowID
		}
	} else {
		s.nextSeq++
		s.seq[key] = s.nextSeq
	}

	s.records[key] = &Record{
		Txid:         txid,
		OutputIndex:  outputIndex,
		Kind:         kindFrom(fields, KindCommitment),
		Topic:        topic,
		ActorKey:     actorKey,
		Fields:       append([]string(nil), fields...),
		ParentTxid:   parent,
		FlowID:       flow,
		Spv:          spv,
		HydratedBEEF: hydrated,
		CreatedAt:    createdAt,
	}

	if flow != "" {
		if parent != "" {
			s.backfillUp(parent, flow, backfillDepth)
		}
		s.backfillDown(txid, flow, backfillDepth)
	}
	return nil
}

// resolveFlow derives the flow root for a record with the given parent:
// a parent record's known FlowID wins, else a parent order's txid, else
// unresolved. Caller holds the lock.
func (s *MemStore) resolveFlow(parent string) string {
	if parent == "" {
		return ""
	}
	if rec := s.firstRecord(parent); rec != nil && rec.FlowID != "" {
		return rec.FlowID
	}
	for _, o := range s.orders {
		if o.Txid == parent {
			return parent
		}
	}
	return ""
}

// backfillUp walks parent links upward filling empty FlowIDs.
func (s *MemStore) backfillUp(txid, flow string, depth int) {
	for hop := 0; hop < depth && txid != ""; hop++ {
		rec := s.firstRecord(txid)
		if rec == nil || rec.FlowID != "" {
			return
		}
		rec.FlowID = flow
		txid = rec.ParentTxid
	}
}

// backfillDown fills empty FlowIDs on records that declared txid as
// their parent, recursively, bounded by depth.
func (s *MemStore) backfillDown(txid, flow string, depth int) {
	if depth <= 0 {
		return
	}
	for _, r := range s.records {
		if r.ParentTxid == txid && r.FlowID == "" {
			r.FlowID = flow
			s.backfillDown(r.Txid, flow, depth-1)
		}
	}
}

// firstRecord returns the record row with the lowest output index for
// txid, or nil. Caller holds the lock.
func (s *MemStore) firstRecord(txid string) *Record {
	var best *Record
	for _, r := range s.records {
		if r.Txid != txid {
			continue
		}
		if best == nil || r.OutputIndex < best.OutputIndex {
			best = r
		}
	}
	return best
}

// rowRef pairs a reference with its sort keys.
type rowRef struct {
	ref       UTXOReference
	createdAt time.Time
	seq       uint64
}

func (s *MemStore) sortedRefs(rows []rowRef, descending bool) []UTXOReference {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].createdAt.Equal(rows[j].createdAt) {
			if descending {
				return rows[i].createdAt.After(rows[j].createdAt)
			}
			return rows[i].createdAt.Before(rows[j].createdAt)
		}
		if descending {
			return rows[i].seq > rows[j].seq
		}
		return rows[i].seq < rows[j].seq
	})
	refs := make([]UTXOReference, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, r.ref)
	}
	return refs
}

func page(refs []UTXOReference, limit, skip int) []UTXOReference {
	limit, skip = clampPage(limit, skip)
	if skip >= len(refs) {
		return []UTXOReference{}
	}
	refs = refs[skip:]
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs
}

// RecentOrders returns order references, newest first.
func (s *MemStore) RecentOrders(limit, skip int) ([]UTXOReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]rowRef, 0, len(s.orders))
	for key, o := range s.orders {
		rows = append(rows, rowRef{
			ref:       UTXOReference{Txid: o.Txid, OutputIndex: o.OutputIndex},
			createdAt: o.CreatedAt,
			seq:       s.seq[key],
		})
	}
	return page(s.sortedRefs(rows, true), limit, skip), nil
}

// OrdersByActor returns orders authored by actorKey, newest first.
func (s *MemStore) OrdersByActor(actorKey string, limit, skip int) ([]UTXOReference, error) {
	if actorKey == "" {
		return []UTXOReference{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []rowRef
	for key, o := range s.orders {
		if o.ActorKey == actorKey {
			rows = append(rows, rowRef{
				ref:       UTXOReference{Txid: o.Txid, OutputIndex: o.OutputIndex},
				createdAt: o.CreatedAt,
				seq:       s.seq[key],
			})
		}
	}
	return page(s.sortedRefs(rows, true), limit, skip), nil
}

// CommitmentsByActor returns commitment records authored by actorKey,
// newest first.
func (s *MemStore) CommitmentsByActor(actorKey string, limit, skip int) ([]UTXOReference, error) {
	if actorKey == "" {
		return []UTXOReference{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []rowRef
	for key, r := range s.records {
		if r.Kind == KindCommitment && r.ActorKey == actorKey {
			rows = append(rows, rowRef{
				ref:       UTXOReference{Txid: r.Txid, OutputIndex: r.OutputIndex},
				createdAt: r.CreatedAt,
				seq:       s.seq[key],
			})
		}
	}
	return page(s.sortedRefs(rows, true), limit, skip), nil
}

// FlowByOrder returns the order plus every linked record, oldest first.
func (s *MemStore) FlowByOrder(orderTxid string) ([]UTXOReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expandFlow(orderTxid), nil
}

// FlowByCommitment resolves the commitment's flow root and expands it.
func (s *MemStore) FlowByCommitment(commitTxid string) ([]UTXOReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	root := commitTxid
	if rec := s.firstRecord(commitTxid); rec != nil {
		if rec.FlowID != "" {
			root = rec.FlowID
		} else if rec.ParentTxid != "" {
			root = rec.ParentTxid
		}
	}
	return s.expandFlow(root), nil
}

// expandFlow gathers the flow rooted at root: order rows first, then
// records linked by txid, FlowID or ParentTxid, each group oldest
// first. Caller holds the lock.
func (s *MemStore) expandFlow(root string) []UTXOReference {
	var orderRows, recordRows []rowRef
	for key, o := range s.orders {
		if o.Txid == root {
			orderRows = append(orderRows, rowRef{
				ref:       UTXOReference{Txid: o.Txid, OutputIndex: o.OutputIndex},
				createdAt: o.CreatedAt,
				seq:       s.seq[key],
			})
		}
	}
	for key, r := range s.records {
		if r.Txid == root || r.FlowID == root || r.ParentTxid == root {
			recordRows = append(recordRows, rowRef{
				ref:       UTXOReference{Txid: r.Txid, OutputIndex: r.OutputIndex},
				createdAt: r.CreatedAt,
				seq:       s.seq[key],
			})
		}
	}
	refs := s.sortedRefs(orderRows, false)
	return append(refs, s.sortedRefs(recordRows, false)...)
}

// RecordByTxid returns a copy of the record row with the lowest output
// index for txid.
func (s *MemStore) RecordByTxid(txid string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := s.firstRecord(txid)
	if rec == nil {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// OutputIndexesForTxid returns recorded output indexes for txid,
// preferring preferKind rows, sorted and de-duplicated.
func (s *MemStore) OutputIndexesForTxid(txid string, preferKind Kind) ([]uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if txid == "" {
		return nil, nil
	}
	preferred := map[uint32]bool{}
	all := map[uint32]bool{}
	for _, r := range s.records {
		if r.Txid != txid {
			continue
		}
		all[r.OutputIndex] = true
		if r.Kind == preferKind {
			preferred[r.OutputIndex] = true
		}
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
func (s *MemStore) CacheSpv(txid string, info *SpvInfo) error {
	if info == nil {
		return fmt.Errorf("%w: spv info", ErrNilParam)
	}
	if info.State == SpvError {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.firstRecord(txid)
	if rec == nil {
		return ErrNotFound
	}
	if rec.Spv != nil && rec.Spv.State == SpvConfirmed {
		return nil
	}
	rec.Spv = mergeSpv(rec.Spv, info)
	return nil
}

// ConfirmSpv stores a confirmed verdict plus hydrated BEEF bytes,
// reporting whether anything changed.
func (s *MemStore) ConfirmSpv(txid string, info *SpvInfo, hydrated []byte) (bool, error) {
	if info == nil {
		return false, fmt.Errorf("%w: spv info", ErrNilParam)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.firstRecord(txid)
	if rec == nil {
		return false, ErrNotFound
	}

	next := *info
	next.State = SpvConfirmed
	changed := rec.Spv == nil ||
		rec.Spv.State != SpvConfirmed ||
		rec.Spv.BlockHash != next.BlockHash ||
		!bytes.Equal(rec.HydratedBEEF, hydrated)
	rec.Spv = &next
	rec.HydratedBEEF = append([]byte(nil), hydrated...)
	return changed, nil
}

// PendingSpv returns up to limit txids still in the pending state,
// oldest first.
func (s *MemStore) PendingSpv(limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	var rows []rowRef
	seen := map[string]bool{}
	for key, r := range s.records {
		if r.Spv != nil && r.Spv.State == SpvPending && !seen[r.Txid] {
			seen[r.Txid] = true
			rows = append(rows, rowRef{
				ref:       UTXOReference{Txid: r.Txid, OutputIndex: r.OutputIndex},
				createdAt: r.CreatedAt,
				seq:       s.seq[key],
			})
		}
	}
	refs := s.sortedRefs(rows, false)
	if len(refs) > limit {
		refs = refs[:limit]
	}
	txids := make([]string, 0, len(refs))
	for _, ref := range refs {
		txids = append(txids, ref.Txid)
	}
	return txids, nil
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error { return nil }

// mergeSpv overlays non-zero fields of next over prev.
func mergeSpv(prev, next *SpvInfo) *SpvInfo {
	out := SpvInfo{}
	if prev != nil {
		out = *prev
	}
	out.State = next.State
	if next.Parent != "" {
		out.Parent = next.Parent
	}
	if next.BlockHash != "" {
		out.BlockHash = next.BlockHash
	}
	if next.Height != 0 {
		out.Height = next.Height
	}
	if next.BranchLen != 0 {
		out.BranchLen = next.BranchLen
	}
	if next.Header != nil {
		out.Header = next.Header
	}
	if next.Proof != nil {
		out.Proof = next.Proof
	}
	out.CheckedAt = next.CheckedAt
	return &out
}

func cloneRecord(r *Record) *Record {
	out := *r
	out.Fields = append([]string(nil), r.Fields...)
	out.HydratedBEEF = append([]byte(nil), r.HydratedBEEF...)
	if r.Spv != nil {
		spv := *r.Spv
		out.Spv = &spv
	}
	return &out
}
