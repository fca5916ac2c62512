package topic

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/E-Jacko/cathays-overlay/store"
)

const testTopic = "tm_cathays"

func pushDropScript(t *testing.T, fields ...string) *script.Script {
	t.Helper()

	key := make([]byte, 33)
	key[0] = 0x03
	s := &script.Script{}
	require.NoError(t, s.AppendPushData(key))
	require.NoError(t, s.AppendOpcodes(script.OpCHECKSIG))
	for _, f := range fields {
		require.NoError(t, s.AppendPushData([]byte(f)))
	}
	n := len(fields)
	for n >= 2 {
		require.NoError(t, s.AppendOpcodes(script.Op2DROP))
		n -= 2
	}
	if n == 1 {
		require.NoError(t, s.AppendOpcodes(script.OpDROP))
	}
	return s
}

func taggedScript(t *testing.T, kind, topic string) *script.Script {
	t.Helper()

	data, err := json.Marshal(map[string]string{"kind": kind, "topic": topic})
	require.NoError(t, err)
	s := &script.Script{}
	require.NoError(t, s.AppendOpcodes(script.Op0, script.OpRETURN))
	require.NoError(t, s.AppendPushData(data))
	return s
}

func p2pkhScript(t *testing.T) *script.Script {
	t.Helper()

	s := &script.Script{}
	require.NoError(t, s.AppendOpcodes(script.OpDUP, script.OpHASH160))
	require.NoError(t, s.AppendPushData(make([]byte, 20)))
	require.NoError(t, s.AppendOpcodes(script.OpEQUALVERIFY, script.OpCHECKSIG))
	return s
}

// buildBEEF wraps the outputs in a proven single-tx BEEF.
func buildBEEF(t *testing.T, outputs ...*script.Script) []byte {
	t.Helper()

	source := chainhash.DoubleHashH([]byte("funding"))
	tx := transaction.NewTransaction()
	tx.AddInput(&transaction.TransactionInput{
		SourceTXID:       &source,
		SourceTxOutIndex: 0,
		SequenceNumber:   transaction.DefaultSequenceNumber,
	})
	for _, s := range outputs {
		tx.AddOutput(&transaction.TransactionOutput{LockingScript: s, Satoshis: 1})
	}

	isTxid := true
	tx.MerklePath = &transaction.MerklePath{
		BlockHeight: 850000,
		Path: [][]*transaction.PathElement{{
			{Offset: 0, Hash: tx.TxID(), Txid: &isTxid},
		}},
	}

	beef, err := tx.BEEF()
	require.NoError(t, err)
	return beef
}

func orderScript(t *testing.T, kind, topic string) *script.Script {
	return pushDropScript(t, kind, topic, "02aabb", "null",
		"2026-08-01T10:00:00Z", "2026-09-01T10:00:00Z", "100", "25", "GBP")
}

func TestIdentifyAdmissibleOutputs(t *testing.T) {
	m := NewManager(Config{Topic: testTopic}, nil)

	beef := buildBEEF(t,
		p2pkhScript(t),
		orderScript(t, "offer", testTopic),
		orderScript(t, "demand", testTopic),
	)
	got, err := m.IdentifyAdmissibleOutputs(context.Background(), beef, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, got.OutputsToAdmit)
	assert.Empty(t, got.CoinsToRetain)
}

func TestIdentifyAdmissibleOutputsGating(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		script *script.Script
		admit  bool
	}{
		{"matching offer", Config{Topic: testTopic}, orderScript(t, "offer", testTopic), true},
		{"wrong topic", Config{Topic: testTopic}, orderScript(t, "offer", "tm_roath"), false},
		{"unknown kind", Config{Topic: testTopic}, orderScript(t, "gift", testTopic), false},
		{"kind outside configured set", Config{Topic: testTopic, Kinds: []store.Kind{store.KindOffer}},
			orderScript(t, "demand", testTopic), false},
		{"commitment admitted by default", Config{Topic: testTopic},
			pushDropScript(t, "commitment", testTopic, "02aabb", "null"), true},
		{"tagged payload not admissible", Config{Topic: testTopic}, taggedScript(t, "proof", testTopic), false},
		{"plain p2pkh", Config{Topic: testTopic}, p2pkhScript(t), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.cfg, nil)
			got, err := m.IdentifyAdmissibleOutputs(context.Background(), buildBEEF(t, tt.script), nil)
			require.NoError(t, err)
			if tt.admit {
				assert.Equal(t, []uint32{0}, got.OutputsToAdmit)
			} else {
				assert.Empty(t, got.OutputsToAdmit)
			}
		})
	}
}

func TestIdentifyAdmissibleOutputsBadBeef(t *testing.T) {
	m := NewManager(Config{Topic: testTopic}, nil)
	for _, beef := range [][]byte{nil, {}, []byte("definitely not beef")} {
		got, err := m.IdentifyAdmissibleOutputs(context.Background(), beef, nil)
		require.NoError(t, err)
		assert.Empty(t, got.OutputsToAdmit)
	}
}

func TestManagerDocs(t *testing.T) {
	m := NewManager(Config{Topic: testTopic}, nil)
	assert.Contains(t, m.Documentation(), "field order")
	assert.Equal(t, testTopic, m.MetaData().Name)
}
