package store

import "errors"

var (
	// ErrNotFound indicates no row exists for the requested key.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidTxid indicates the transaction id is not 64 hex characters.
	ErrInvalidTxid = errors.New("store: invalid transaction id")

	// ErrNilParam indicates a required parameter is nil or empty.
	ErrNilParam = errors.New("store: required parameter is missing")
)
