package store

import (
	"encoding/json"
	"time"
)

// Kind is the record-type discriminator carried in field 0 of every
// admitted output.
type Kind string

const (
	KindOffer      Kind = "offer"
	KindDemand     Kind = "demand"
	KindCommitment Kind = "commitment"
	KindContract   Kind = "contract"
	KindProof      Kind = "proof"
)

// SupportedKinds returns the closed set of kinds the overlay indexes.
func SupportedKinds() []Kind {
	return []Kind{KindOffer, KindDemand, KindCommitment, KindContract, KindProof}
}

// IsOrderKind reports whether k is a leaf (root-of-flow) kind. Offers and
// demands go to the Orders collection; everything else is a derived Record.
func IsOrderKind(k Kind) bool {
	return k == KindOffer || k == KindDemand
}

// UTXOReference identifies one admitted transaction output.
type UTXOReference struct {
	Txid        string `json:"txid"`
	OutputIndex uint32 `json:"outputIndex"`
}

// Order is a leaf record: the root of a flow. It has no parent.
type Order struct {
	Txid        string
	OutputIndex uint32
	Kind        Kind
	Topic       string
	ActorKey    string
	Fields      []string
	CreatedAt   time.Time
}

// Record is a derived record (commitment, contract or proof). ParentTxid
// is the immediate predecessor when field 3 carries a plausible txid.
// FlowID is the root Order's txid, resolved at write time and backfilled
// as missing links arrive.
type Record struct {
	Txid         string
	OutputIndex  uint32
	Kind         Kind
	Topic        string
	ActorKey     string
	Fields       []string
	ParentTxid   string
	FlowID       string
	Spv          *SpvInfo
	HydratedBEEF []byte
	CreatedAt    time.Time
}

// SpvState is the persisted enrichment state for a Record.
type SpvState string

const (
	SpvPending   SpvState = "pending"
	SpvConfirmed SpvState = "confirmed"
	SpvInvalid   SpvState = "invalid"

	// SpvError is a transient per-attempt outcome. It is returned to
	// callers but never stored, so it can never block a later
	// confirmed transition.
	SpvError SpvState = "error"
)

// ParentCheck is the verdict of the strict parent-linkage check.
type ParentCheck string

const (
	ParentMatch    ParentCheck = "match"
	ParentMismatch ParentCheck = "mismatch"
	ParentUnknown  ParentCheck = "unknown"
)

// SpvInfo is the enrichment sub-record cached on a Record.
type SpvInfo struct {
	State     SpvState
	Parent    ParentCheck
	BlockHash string
	Height    uint32
	BranchLen int
	Header    json.RawMessage
	Proof     json.RawMessage
	CheckedAt time.Time
}

// ValidTxid reports whether s looks like a transaction id: exactly 64
// hex characters.
func ValidTxid(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
