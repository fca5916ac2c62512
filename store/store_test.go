package store

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTxid(n int) string {
	return fmt.Sprintf("%064x", n)
}

func orderFields(kind, actor string) []string {
	return []string{kind, "tm_cathays", actor, "null",
		"2026-08-01T10:00:00Z", "2026-09-01T10:00:00Z", "100", "25", "GBP"}
}

func recordFields(kind, actor, parent string) []string {
	return []string{kind, "tm_cathays", actor, parent,
		"2026-08-02T10:00:00Z", "null", "100", "25", "GBP"}
}

// forEachStore runs one test body against both Store implementations.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("mem", func(t *testing.T) {
		fn(t, NewMemStore())
	})
	t.Run("bolt", func(t *testing.T) {
		s, err := OpenBoltStore(filepath.Join(t.TempDir(), "cathays.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func TestUpsertRejectsInvalidTxid(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		for _, txid := range []string{"", "short", testTxid(1) + "00", "zz" + testTxid(1)[2:]} {
			assert.ErrorIs(t, s.UpsertOrder(txid, 0, orderFields("offer", "a"), "tm_cathays", "a"), ErrInvalidTxid)
			assert.ErrorIs(t, s.UpsertRecord(txid, 0, recordFields("commitment", "a", "null"), "tm_cathays", "a"), ErrInvalidTxid)
		}
	})
}

func TestUpsertOrderIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		for i := 0; i < 3; i++ {
			require.NoError(t, s.UpsertOrder(testTxid(1), 0, orderFields("offer", "02aa"), "tm_cathays", "02aa"))
		}
		refs, err := s.RecentOrders(10, 0)
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, UTXOReference{Txid: testTxid(1), OutputIndex: 0}, refs[0])
	})
}

func TestRecentOrdersPagination(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		for i := 1; i <= 7; i++ {
			require.NoError(t, s.UpsertOrder(testTxid(i), 0, orderFields("offer", "02aa"), "tm_cathays", "02aa"))
		}

		page1, err := s.RecentOrders(3, 0)
		require.NoError(t, err)
		page2, err := s.RecentOrders(3, 3)
		require.NoError(t, err)
		page3, err := s.RecentOrders(3, 6)
		require.NoError(t, err)

		require.Len(t, page1, 3)
		require.Len(t, page2, 3)
		require.Len(t, page3, 1)
		assert.Equal(t, testTxid(7), page1[0].Txid)
		assert.Equal(t, testTxid(1), page3[0].Txid)

		seen := map[string]bool{}
		for _, ref := range append(append(page1, page2...), page3...) {
			assert.False(t, seen[ref.Txid])
			seen[ref.Txid] = true
		}
	})
}

func TestOrdersByActor(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		require.NoError(t, s.UpsertOrder(testTxid(1), 0, orderFields("offer", "02aa"), "tm_cathays", "02aa"))
		require.NoError(t, s.UpsertOrder(testTxid(2), 0, orderFields("demand", "02bb"), "tm_cathays", "02bb"))
		require.NoError(t, s.UpsertOrder(testTxid(3), 0, orderFields("offer", "02aa"), "tm_cathays", "02aa"))

		refs, err := s.OrdersByActor("02aa", 10, 0)
		require.NoError(t, err)
		require.Len(t, refs, 2)
		assert.Equal(t, testTxid(3), refs[0].Txid)
		assert.Equal(t, testTxid(1), refs[1].Txid)

		refs, err = s.OrdersByActor("02cc", 10, 0)
		require.NoError(t, err)
		assert.Empty(t, refs)
	})
}

func TestOrdersByActorReplayReindexes(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		// A replay carrying an actor the first write lacked must make
		// the row visible under the new actor.
		require.NoError(t, s.UpsertOrder(testTxid(1), 0, orderFields("offer", ""), "tm_cathays", ""))
		require.NoError(t, s.UpsertOrder(testTxid(1), 0, orderFields("offer", "02aa"), "tm_cathays", "02aa"))

		refs, err := s.OrdersByActor("02aa", 10, 0)
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, testTxid(1), refs[0].Txid)

		// Reassigning moves the row, it never shows under the old actor.
		require.NoError(t, s.UpsertOrder(testTxid(1), 0, orderFields("offer", "02bb"), "tm_cathays", "02bb"))

		refs, err = s.OrdersByActor("02aa", 10, 0)
		require.NoError(t, err)
		assert.Empty(t, refs)
		refs, err = s.OrdersByActor("02bb", 10, 0)
		require.NoError(t, err)
		require.Len(t, refs, 1)

		// Clearing the actor removes the row from actor queries.
		require.NoError(t, s.UpsertOrder(testTxid(1), 0, orderFields("offer", ""), "tm_cathays", ""))

		refs, err = s.OrdersByActor("02bb", 10, 0)
		require.NoError(t, err)
		assert.Empty(t, refs)
	})
}

func TestActorQueriesEmptyKeyMatchNothing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		require.NoError(t, s.UpsertOrder(testTxid(1), 0, orderFields("offer", ""), "tm_cathays", ""))
		require.NoError(t, s.UpsertRecord(testTxid(2), 0, recordFields("commitment", "", testTxid(1)), "tm_cathays", ""))

		refs, err := s.OrdersByActor("", 10, 0)
		require.NoError(t, err)
		assert.Empty(t, refs)

		refs, err = s.CommitmentsByActor("", 10, 0)
		require.NoError(t, err)
		assert.Empty(t, refs)
	})
}

func TestCommitmentsByActorFiltersKind(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		require.NoError(t, s.UpsertOrder(testTxid(1), 0, orderFields("offer", "02aa"), "tm_cathays", "02aa"))
		require.NoError(t, s.UpsertRecord(testTxid(2), 0, recordFields("commitment", "02bb", testTxid(1)), "tm_cathays", "02bb"))
		require.NoError(t, s.UpsertRecord(testTxid(3), 0, recordFields("contract", "02bb", testTxid(2)), "tm_cathays", "02bb"))

		refs, err := s.CommitmentsByActor("02bb", 10, 0)
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, testTxid(2), refs[0].Txid)
	})
}

func TestFlowResolutionChain(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		offer, commit, contract, proof := testTxid(1), testTxid(2), testTxid(3), testTxid(4)
		require.NoError(t, s.UpsertOrder(offer, 0, orderFields("offer", "02aa"), "tm_cathays", "02aa"))
		require.NoError(t, s.UpsertRecord(commit, 0, recordFields("commitment", "02bb", offer), "tm_cathays", "02bb"))
		require.NoError(t, s.UpsertRecord(contract, 0, recordFields("contract", "02bb", commit), "tm_cathays", "02bb"))
		require.NoError(t, s.UpsertRecord(proof, 0, recordFields("proof", "02bb", contract), "tm_cathays", "02bb"))

		for _, txid := range []string{commit, contract, proof} {
			rec, err := s.RecordByTxid(txid)
			require.NoError(t, err)
			assert.Equal(t, offer, rec.FlowID, "txid %s", txid)
		}

		flow, err := s.FlowByOrder(offer)
		require.NoError(t, err)
		require.Len(t, flow, 4)
		assert.Equal(t, offer, flow[0].Txid)

		byCommit, err := s.FlowByCommitment(contract)
		require.NoError(t, err)
		assert.Equal(t, flow, byCommit)
	})
}

// A record chain admitted leaf-first must still converge on the order's
// flow once the order arrives.
func TestFlowBackfillReversedArrival(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		offer := testTxid(10)
		chain := []string{testTxid(11), testTxid(12), testTxid(13), testTxid(14)}

		// Admit deepest first: each record names the previous link as parent.
		for i := len(chain) - 1; i >= 0; i-- {
			parent := offer
			if i > 0 {
				parent = chain[i-1]
			}
			kind := "commitment"
			if i > 0 {
				kind = "contract"
			}
			require.NoError(t, s.UpsertRecord(chain[i], 0, recordFields(kind, "02bb", parent), "tm_cathays", "02bb"))
		}
		require.NoError(t, s.UpsertOrder(offer, 0, orderFields("offer", "02aa"), "tm_cathays", "02aa"))

		for _, txid := range chain {
			rec, err := s.RecordByTxid(txid)
			require.NoError(t, err)
			assert.Equal(t, offer, rec.FlowID, "txid %s", txid)
		}

		flow, err := s.FlowByOrder(offer)
		require.NoError(t, err)
		assert.Len(t, flow, len(chain)+1)
	})
}

func TestFlowByCommitmentFallbacks(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		// Unknown commitment expands to nothing.
		flow, err := s.FlowByCommitment(testTxid(9))
		require.NoError(t, err)
		assert.Empty(t, flow)

		// A commitment whose parent was never admitted falls back to the
		// parent txid as root and still includes itself.
		commit, ghost := testTxid(1), testTxid(2)
		require.NoError(t, s.UpsertRecord(commit, 0, recordFields("commitment", "02bb", ghost), "tm_cathays", "02bb"))
		flow, err = s.FlowByCommitment(commit)
		require.NoError(t, err)
		require.Len(t, flow, 1)
		assert.Equal(t, commit, flow[0].Txid)
	})
}

func TestRecordByTxidNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.RecordByTxid(testTxid(1))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestOutputIndexesForTxidPreferKind(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		txid := testTxid(1)
		require.NoError(t, s.UpsertRecord(txid, 2, recordFields("commitment", "02bb", "null"), "tm_cathays", "02bb"))
		require.NoError(t, s.UpsertRecord(txid, 0, recordFields("contract", "02bb", "null"), "tm_cathays", "02bb"))

		vouts, err := s.OutputIndexesForTxid(txid, KindContract)
		require.NoError(t, err)
		assert.Equal(t, []uint32{0}, vouts)

		vouts, err = s.OutputIndexesForTxid(txid, KindProof)
		require.NoError(t, err)
		assert.Equal(t, []uint32{0, 2}, vouts)

		vouts, err = s.OutputIndexesForTxid(testTxid(9), KindContract)
		require.NoError(t, err)
		assert.Empty(t, vouts)
	})
}

func TestCacheSpvStates(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		txid := testTxid(1)
		require.NoError(t, s.UpsertRecord(txid, 0, recordFields("contract", "02bb", "null"), "tm_cathays", "02bb"))

		assert.ErrorIs(t, s.CacheSpv(testTxid(9), &SpvInfo{State: SpvPending}), ErrNotFound)

		// Transient errors are never persisted.
		require.NoError(t, s.CacheSpv(txid, &SpvInfo{State: SpvError}))
		rec, err := s.RecordByTxid(txid)
		require.NoError(t, err)
		assert.Nil(t, rec.Spv)

		require.NoError(t, s.CacheSpv(txid, &SpvInfo{State: SpvPending, Parent: ParentMatch}))
		rec, err = s.RecordByTxid(txid)
		require.NoError(t, err)
		require.NotNil(t, rec.Spv)
		assert.Equal(t, SpvPending, rec.Spv.State)
		assert.Equal(t, ParentMatch, rec.Spv.Parent)

		// Merge keeps earlier non-empty values.
		require.NoError(t, s.CacheSpv(txid, &SpvInfo{State: SpvInvalid}))
		rec, err = s.RecordByTxid(txid)
		require.NoError(t, err)
		assert.Equal(t, SpvInvalid, rec.Spv.State)
		assert.Equal(t, ParentMatch, rec.Spv.Parent)
	})
}

func TestConfirmedNeverDowngraded(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		txid := testTxid(1)
		require.NoError(t, s.UpsertRecord(txid, 0, recordFields("contract", "02bb", "null"), "tm_cathays", "02bb"))

		changed, err := s.ConfirmSpv(txid, &SpvInfo{BlockHash: "abc", Height: 100}, []byte("beef"))
		require.NoError(t, err)
		assert.True(t, changed)

		require.NoError(t, s.CacheSpv(txid, &SpvInfo{State: SpvPending}))
		rec, err := s.RecordByTxid(txid)
		require.NoError(t, err)
		assert.Equal(t, SpvConfirmed, rec.Spv.State)
		assert.Equal(t, "abc", rec.Spv.BlockHash)
		assert.Equal(t, []byte("beef"), rec.HydratedBEEF)
	})
}

func TestConfirmSpvChangedFlag(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		txid := testTxid(1)
		require.NoError(t, s.UpsertRecord(txid, 0, recordFields("contract", "02bb", "null"), "tm_cathays", "02bb"))

		info := &SpvInfo{BlockHash: "abc", Height: 100}
		changed, err := s.ConfirmSpv(txid, info, []byte("beef"))
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = s.ConfirmSpv(txid, info, []byte("beef"))
		require.NoError(t, err)
		assert.False(t, changed)

		changed, err = s.ConfirmSpv(txid, info, []byte("beef2"))
		require.NoError(t, err)
		assert.True(t, changed)

		_, err = s.ConfirmSpv(testTxid(9), info, nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPendingSpv(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		for i := 1; i <= 3; i++ {
			require.NoError(t, s.UpsertRecord(testTxid(i), 0, recordFields("contract", "02bb", "null"), "tm_cathays", "02bb"))
		}
		require.NoError(t, s.CacheSpv(testTxid(1), &SpvInfo{State: SpvPending}))
		require.NoError(t, s.CacheSpv(testTxid(2), &SpvInfo{State: SpvPending}))
		_, err := s.ConfirmSpv(testTxid(3), &SpvInfo{BlockHash: "abc"}, nil)
		require.NoError(t, err)

		txids, err := s.PendingSpv(10)
		require.NoError(t, err)
		assert.Equal(t, []string{testTxid(1), testTxid(2)}, txids)

		txids, err = s.PendingSpv(1)
		require.NoError(t, err)
		assert.Equal(t, []string{testTxid(1)}, txids)
	})
}
