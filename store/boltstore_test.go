package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cathays.db")

	s, err := OpenBoltStore(path)
	require.NoError(t, err)

	offer, commit := testTxid(1), testTxid(2)
	require.NoError(t, s.UpsertOrder(offer, 0, orderFields("offer", "02aa"), "tm_cathays", "02aa"))
	require.NoError(t, s.UpsertRecord(commit, 0, recordFields("commitment", "02bb", offer), "tm_cathays", "02bb"))
	require.NoError(t, s.CacheSpv(commit, &SpvInfo{State: SpvPending, Parent: ParentMatch}))
	require.NoError(t, s.Close())

	s, err = OpenBoltStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	refs, err := s.RecentOrders(10, 0)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, offer, refs[0].Txid)

	flow, err := s.FlowByOrder(offer)
	require.NoError(t, err)
	assert.Len(t, flow, 2)

	rec, err := s.RecordByTxid(commit)
	require.NoError(t, err)
	assert.Equal(t, offer, rec.FlowID)
	require.NotNil(t, rec.Spv)
	assert.Equal(t, SpvPending, rec.Spv.State)
	assert.Equal(t, ParentMatch, rec.Spv.Parent)

	pending, err := s.PendingSpv(10)
	require.NoError(t, err)
	assert.Equal(t, []string{commit}, pending)
}

func TestOutKeyRoundTrip(t *testing.T) {
	ref := UTXOReference{Txid: testTxid(7), OutputIndex: 3}
	assert.Equal(t, ref, refFromOutKey(outKey(ref.Txid, ref.OutputIndex)))
}

func TestUpperBound(t *testing.T) {
	assert.Nil(t, upperBound(nil))
	assert.Equal(t, []byte{0x61, 0x62}, upperBound([]byte{0x61, 0x61}))
	assert.Equal(t, []byte{0x62}, upperBound([]byte{0x61, 0xff}))
	assert.Nil(t, upperBound([]byte{0xff, 0xff}))
}
