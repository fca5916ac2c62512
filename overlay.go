// Package cathays wires the overlay components for the Cathays energy
// market: a topic manager admitting outputs, a lookup service answering
// queries, and an SPV enricher confirming stored records against the
// chain. Engine adapters construct an Overlay once and register its
// Manager and Service under the configured topic and service names.
package cathays

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/E-Jacko/cathays-overlay/config"
	"github.com/E-Jacko/cathays-overlay/lookup"
	"github.com/E-Jacko/cathays-overlay/spv"
	"github.com/E-Jacko/cathays-overlay/store"
	"github.com/E-Jacko/cathays-overlay/topic"
)

// Overlay bundles the components sharing one database.
type Overlay struct {
	Manager  *topic.Manager
	Service  *lookup.Service
	Enricher *spv.Enricher
	Store    *store.BoltStore
}

// New opens the database at cfg.DBPath and wires the topic manager,
// lookup service and SPV enricher. The caller owns the returned Overlay
// and must Close it to release the database.
func New(cfg *config.Config, log *zap.Logger) (*Overlay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	st, err := store.OpenBoltStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("cathays: open store: %w", err)
	}

	var provider spv.ChainProvider
	if cfg.ProviderURL != "" {
		provider = spv.NewWocClientWithBase(cfg.ProviderURL)
	} else {
		provider = spv.NewWocClient(cfg.Network)
	}

	return &Overlay{
		Manager: topic.NewManager(topic.Config{
			Topic: cfg.Topic,
		}, log),
		Service: lookup.NewService(lookup.Config{
			Topic:    cfg.Topic,
			Service:  cfg.Service,
			MaxLimit: cfg.MaxQueryLimit,
		}, st, log),
		Enricher: spv.NewEnricher(st, provider, log),
		Store:    st,
	}, nil
}

// Close releases the database.
func (o *Overlay) Close() error {
	return o.Store.Close()
}

// NewLogger builds a production logger at cfg.LogLevel.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("cathays: parse log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
