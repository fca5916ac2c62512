package store

// Store persists admitted outputs as Orders (offers, demands) and
// Records (commitments, contracts, proofs) and answers the read-side
// queries the lookup service dispatches to.
//
// All writes are idempotent upserts keyed by (txid, outputIndex):
// replays overwrite the mutable projection fields but CreatedAt is set
// only on first insert. Nothing is ever deleted; history retention
// outranks storage minimization here.
type Store interface {
	// UpsertOrder inserts or updates a leaf record. Kind is taken from
	// fields[0], defaulting to offer when absent or unrecognized.
	UpsertOrder(txid string, outputIndex uint32, fields []string, topic, actorKey string) error

	// UpsertRecord inserts or updates a derived record, extracting the
	// parent candidate from fields[3], resolving FlowID through the
	// parent, and backfilling FlowID on linked rows that arrived out of
	// causal order.
	UpsertRecord(txid string, outputIndex uint32, fields []string, topic, actorKey string) error

	// RecentOrders returns order references, newest first.
	RecentOrders(limit, skip int) ([]UTXOReference, error)

	// OrdersByActor returns orders authored by actorKey, newest first.
	// An empty actorKey matches nothing.
	OrdersByActor(actorKey string, limit, skip int) ([]UTXOReference, error)

	// CommitmentsByActor returns commitment records authored by
	// actorKey, newest first. An empty actorKey matches nothing.
	CommitmentsByActor(actorKey string, limit, skip int) ([]UTXOReference, error)

	// FlowByOrder returns the order plus every record linked to it by
	// FlowID or ParentTxid, oldest first (best-effort causal order).
	FlowByOrder(orderTxid string) ([]UTXOReference, error)

	// FlowByCommitment resolves the commitment's flow root (FlowID,
	// falling back to ParentTxid, falling back to the commitment
	// itself) and expands it the same way as FlowByOrder.
	FlowByCommitment(commitTxid string) ([]UTXOReference, error)

	// RecordByTxid returns the record row with the lowest output index
	// for txid, or ErrNotFound.
	RecordByTxid(txid string) (*Record, error)

	// OutputIndexesForTxid returns the output indexes recorded for
	// txid, preferring rows of preferKind when any exist, sorted
	// ascending and de-duplicated.
	OutputIndexesForTxid(txid string, preferKind Kind) ([]uint32, error)

	// CacheSpv merges an enrichment verdict onto the first record row
	// for txid. A stored confirmed state is never downgraded.
	CacheSpv(txid string, info *SpvInfo) error

	// ConfirmSpv stores a confirmed enrichment verdict plus the
	// hydrated BEEF bytes, reporting whether the write changed
	// anything.
	ConfirmSpv(txid string, info *SpvInfo, hydrated []byte) (bool, error)

	// PendingSpv returns up to limit txids whose enrichment state is
	// still pending, for the reconciliation sweep.
	PendingSpv(limit int) ([]string, error)

	// Close releases underlying resources.
	Close() error
}

// backfillDepth bounds how many hops the FlowID backfill walks in each
// direction on a single write. Chains longer than this converge over
// subsequent writes or a reconciliation sweep.
const backfillDepth = 5

// fieldAt returns fields[i], or the empty string when out of range.
func fieldAt(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

// kindFrom extracts the record kind from fields[0], falling back to
// def when the value is absent or outside the supported set.
func kindFrom(fields []string, def Kind) Kind {
	k := Kind(fieldAt(fields, 0))
	for _, s := range SupportedKinds() {
		if k == s {
			return k
		}
	}
	return def
}

// parentCandidate extracts the declared parent txid from fields[3].
// The literal "null" and anything that does not look like a 64-hex
// txid are treated as no parent.
func parentCandidate(fields []string) string {
	p := fieldAt(fields, 3)
	if p == "" || p == "null" || !ValidTxid(p) {
		return ""
	}
	return p
}

// clampPage normalizes limit and skip for the paginated reads.
func clampPage(limit, skip int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}
	return limit, skip
}
