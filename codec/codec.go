// Package codec decodes the on-chain field encodings used by the
// cathays overlay: pushdrop locking scripts (the publisher format) and
// tagged OP_RETURN JSON payloads (the proof-record fallback).
//
// Both strategies yield the same positional field shape:
//
//	[0] kind  [1] topic  [2] actor  [3] parent  [4] createdAt
//	[5] expiresAt  [6] quantity  [7] price  [8] currency  [9+] extras
//
// Absent values are the literal string "null".
package codec

import (
	"fmt"

	"github.com/bsv-blockchain/go-sdk/script"
)

// Positional field indexes shared by both encodings.
const (
	FieldKind = iota
	FieldTopic
	FieldActor
	FieldParent
	FieldCreatedAt
	FieldExpiresAt
	FieldQuantity
	FieldPrice
	FieldCurrency
)

// NullField is the placeholder for an absent value.
const NullField = "null"

const pubKeyLen = 33

// Decode tries the pushdrop shape first and falls back to the tagged
// OP_RETURN shape. It returns the positional fields or the last
// strategy's error.
func Decode(s *script.Script) ([]string, error) {
	fields, err := DecodePushDrop(s)
	if err == nil {
		return fields, nil
	}
	return DecodeTagged(s)
}

// DecodePushDrop decodes a pushdrop locking script:
//
//	<pubkey(33)> OP_CHECKSIG <field push>... [OP_DROP|OP_2DROP]...
//
// Field pushes are decoded in order as UTF-8 strings. The small-int
// opcodes OP_1..OP_16 decode as a single byte holding their value, and
// OP_0 as the empty string, matching how pushdrop writers emit short
// numeric fields.
func DecodePushDrop(s *script.Script) ([]string, error) {
	if s == nil {
		return nil, ErrNotPushDrop
	}
	chunks, err := s.Chunks()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPushDrop, err)
	}
	if len(chunks) < 3 {
		return nil, fmt.Errorf("%w: %d chunks", ErrNotPushDrop, len(chunks))
	}
	if len(chunks[0].Data) != pubKeyLen {
		return nil, fmt.Errorf("%w: leading push is not a compressed key", ErrNotPushDrop)
	}
	if chunks[1].Op != script.OpCHECKSIG {
		return nil, fmt.Errorf("%w: expected OP_CHECKSIG, got 0x%02x", ErrNotPushDrop, chunks[1].Op)
	}

	var fields []string
	for _, c := range chunks[2:] {
		if c.Op == script.OpDROP || c.Op == script.Op2DROP {
			break
		}
		f, ok := pushValue(c)
		if !ok {
			return nil, fmt.Errorf("%w: non-push opcode 0x%02x in field run", ErrNotPushDrop, c.Op)
		}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields", ErrNotPushDrop)
	}
	return fields, nil
}

// pushValue decodes one chunk of the field run.
func pushValue(c *script.ScriptChunk) (string, bool) {
	if len(c.Data) > 0 {
		return string(c.Data), true
	}
	switch {
	case c.Op == script.Op0:
		return "", true
	case c.Op >= script.Op1 && c.Op <= script.Op16:
		return string([]byte{c.Op - script.Op1 + 1}), true
	}
	return "", false
}
