package spv

import "errors"

var (
	// ErrConnectionFailed indicates the provider could not be reached.
	ErrConnectionFailed = errors.New("spv: connection failed")

	// ErrInvalidResponse indicates the provider returned a malformed or
	// unexpected response.
	ErrInvalidResponse = errors.New("spv: invalid response")

	// ErrTxNotFound indicates the provider does not know the transaction.
	ErrTxNotFound = errors.New("spv: transaction not found")

	// ErrMerkleProofInvalid indicates the computed merkle root does not
	// match the block header's root.
	ErrMerkleProofInvalid = errors.New("spv: merkle proof invalid")

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("spv: required parameter is nil")
)
