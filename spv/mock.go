package spv

import (
	"context"
	"sync/atomic"
)

// MockProvider is a test double for ChainProvider. Function fields must
// be set before the corresponding method is called. Calls reports the
// total number of provider calls across all methods.
type MockProvider struct {
	calls atomic.Int64

	GetMerkleProofFn func(ctx context.Context, txid string) (*TxProof, error)
	GetBlockHeaderFn func(ctx context.Context, blockHash string) (*BlockHeader, error)
	GetRawTxHexFn    func(ctx context.Context, txid string) (string, error)
	GetTxFn          func(ctx context.Context, txid string) (*TxInfo, error)
}

// Compile-time interface check.
var _ ChainProvider = (*MockProvider)(nil)

// Calls returns how many provider calls were made.
func (m *MockProvider) Calls() int64 { return m.calls.Load() }

func (m *MockProvider) GetMerkleProof(ctx context.Context, txid string) (*TxProof, error) {
	m.calls.Add(1)
	return m.GetMerkleProofFn(ctx, txid)
}

func (m *MockProvider) GetBlockHeader(ctx context.Context, blockHash string) (*BlockHeader, error) {
	m.calls.Add(1)
	return m.GetBlockHeaderFn(ctx, blockHash)
}

func (m *MockProvider) GetRawTxHex(ctx context.Context, txid string) (string, error) {
	m.calls.Add(1)
	return m.GetRawTxHexFn(ctx, txid)
}

func (m *MockProvider) GetTx(ctx context.Context, txid string) (*TxInfo, error) {
	m.calls.Add(1)
	return m.GetTxFn(ctx, txid)
}
