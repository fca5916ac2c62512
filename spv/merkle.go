package spv

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DoubleHash computes SHA256(SHA256(data)), Bitcoin's hash function.
func DoubleHash(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:]
}

// ComputeMerkleRoot recomputes the merkle root from a transaction hash
// in internal byte order, its leaf position, and the branch nodes
// bottom-up. Bit i of the position decides which side the sibling
// joins on.
func ComputeMerkleRoot(txHash []byte, position uint64, nodes [][]byte) []byte {
	if len(txHash) != 32 {
		return nil
	}

	hash := make([]byte, 32)
	copy(hash, txHash)

	for i, node := range nodes {
		if len(node) != 32 {
			return nil
		}
		combined := make([]byte, 64)
		if (position>>uint(i))&1 == 0 {
			copy(combined[:32], hash)
			copy(combined[32:], node)
		} else {
			copy(combined[:32], node)
			copy(combined[32:], hash)
		}
		hash = DoubleHash(combined)
	}

	return hash
}

// internalFromDisplay decodes a display-hex hash (big-endian, as APIs
// and explorers print them) into internal byte order.
func internalFromDisplay(displayHex string) ([]byte, error) {
	b, err := hex.DecodeString(displayHex)
	if err != nil {
		return nil, fmt.Errorf("%w: hash %q: %v", ErrInvalidResponse, displayHex, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: hash %q has %d bytes", ErrInvalidResponse, displayHex, len(b))
	}
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b, nil
}

// verifyProofAgainstHeader recomputes the merkle root from the proof
// and compares it to the header's. A proof with no branches is the
// single-tx block case: the txid is the root.
func verifyProofAgainstHeader(txid string, proof *TxProof, header *BlockHeader) error {
	if proof == nil || header == nil {
		return fmt.Errorf("%w: proof or header", ErrNilParam)
	}

	leaf, err := internalFromDisplay(txid)
	if err != nil {
		return err
	}
	want, err := internalFromDisplay(header.MerkleRoot)
	if err != nil {
		return err
	}

	nodes := make([][]byte, 0, len(proof.Merkle))
	for _, s := range proof.Merkle {
		n, err := internalFromDisplay(s)
		if err != nil {
			return err
		}
		nodes = append(nodes, n)
	}

	got := ComputeMerkleRoot(leaf, proof.Position(), nodes)
	if got == nil || !bytes.Equal(got, want) {
		return fmt.Errorf("%w: tx %s", ErrMerkleProofInvalid, txid)
	}
	return nil
}
