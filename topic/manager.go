// Package topic implements admission control for cathays transactions:
// deciding which outputs of a submitted BEEF carry well-formed energy
// trading fields for the configured topic.
package topic

import (
	"context"

	"github.com/bsv-blockchain/go-sdk/transaction"
	"go.uber.org/zap"

	"github.com/E-Jacko/cathays-overlay/codec"
	"github.com/E-Jacko/cathays-overlay/store"
)

// Admittance lists the outputs of one transaction to admit and the
// previously admitted coins to retain.
type Admittance struct {
	OutputsToAdmit []uint32
	CoinsToRetain  []uint32
}

// Config controls what the manager admits.
type Config struct {
	// Topic is the exact topic tag outputs must declare.
	Topic string
	// Kinds restricts admissible kinds. Empty means every supported kind.
	Kinds []store.Kind
}

// Manager inspects submitted transactions and admits outputs whose
// locking scripts decode as pushdrop fields for the configured topic.
type Manager struct {
	cfg   Config
	kinds map[store.Kind]bool
	log   *zap.Logger
}

// NewManager builds a Manager. A nil logger disables logging.
func NewManager(cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = store.SupportedKinds()
	}
	set := make(map[store.Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return &Manager{cfg: cfg, kinds: set, log: log}
}

// IdentifyAdmissibleOutputs parses the BEEF bytes and returns the
// outputs whose scripts decode as supported-kind fields on the
// configured topic. Malformed BEEF admits nothing without error. Only
// the pushdrop
// encoding is admissible; tagged OP_RETURN payloads are a lookup-side
// fallback and are not admitted here.
func (m *Manager) IdentifyAdmissibleOutputs(ctx context.Context, beef []byte, previousCoins []uint32) (Admittance, error) {
	result := Admittance{OutputsToAdmit: []uint32{}, CoinsToRetain: []uint32{}}

	tx, err := transaction.NewTransactionFromBEEF(beef)
	if err != nil || tx == nil {
		m.log.Debug("rejecting unparseable beef", zap.Error(err))
		return result, nil
	}

	for i, out := range tx.Outputs {
		fields, err := codec.DecodePushDrop(out.LockingScript)
		if err != nil {
			continue
		}
		if len(fields) <= codec.FieldTopic {
			continue
		}
		if !m.kinds[store.Kind(fields[codec.FieldKind])] {
			continue
		}
		if fields[codec.FieldTopic] != m.cfg.Topic {
			continue
		}
		result.OutputsToAdmit = append(result.OutputsToAdmit, uint32(i))
	}

	if len(result.OutputsToAdmit) > 0 {
		m.log.Debug("admitting outputs",
			zap.String("txid", tx.TxID().String()),
			zap.Uint32s("outputs", result.OutputsToAdmit))
	}
	return result, nil
}
