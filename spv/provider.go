// Package spv enriches stored records with chain evidence: merkle
// proofs, block headers and hydrated BEEF, plus a strict parent check
// against the spending transaction's inputs.
package spv

import "context"

// TxProof is a provider merkle proof for one transaction. Providers
// disagree on the position field name, so both are accepted.
type TxProof struct {
	BlockHash string   `json:"blockhash"`
	Merkle    []string `json:"merkle"`
	Pos       *uint64  `json:"pos"`
	Index     *uint64  `json:"index"`
}

// Position returns the transaction's leaf offset in the block.
func (p *TxProof) Position() uint64 {
	if p.Pos != nil {
		return *p.Pos
	}
	if p.Index != nil {
		return *p.Index
	}
	return 0
}

// BlockHeader is the provider's decoded block header.
type BlockHeader struct {
	Hash          string `json:"hash"`
	Height        uint32 `json:"height"`
	MerkleRoot    string `json:"merkleroot"`
	Version       int32  `json:"version"`
	PrevBlockHash string `json:"prevblockhash"`
	Time          int64  `json:"time"`
	Nonce         uint32 `json:"nonce"`
}

// TxInput is one input of a lightweight transaction summary.
type TxInput struct {
	Txid string `json:"txid"`
	Vout uint32 `json:"vout"`
}

// TxInfo is the lightweight JSON view of a transaction.
type TxInfo struct {
	Txid string    `json:"txid"`
	Vin  []TxInput `json:"vin"`
}

// ChainProvider fetches chain evidence for the enricher.
type ChainProvider interface {
	// GetMerkleProof returns the proof for txid, or (nil, nil) when the
	// transaction is not yet proven in a block.
	GetMerkleProof(ctx context.Context, txid string) (*TxProof, error)

	// GetBlockHeader returns the decoded header for blockHash.
	GetBlockHeader(ctx context.Context, blockHash string) (*BlockHeader, error)

	// GetRawTxHex returns the raw transaction hex for txid.
	GetRawTxHex(ctx context.Context, txid string) (string, error)

	// GetTx returns the lightweight transaction summary for txid. The
	// enricher uses its vin list as the parent-check fallback when the
	// raw hex is unavailable.
	GetTx(ctx context.Context, txid string) (*TxInfo, error)
}
