// Package lookup persists admitted cathays outputs and answers lookup
// questions over them.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/script"
	"go.uber.org/zap"

	"github.com/E-Jacko/cathays-overlay/codec"
	"github.com/E-Jacko/cathays-overlay/store"
)

// ModeLockingScript is the admission mode this service consumes.
const ModeLockingScript = "locking-script"

// ErrUnsupportedService is returned when a question names a different
// lookup service.
var ErrUnsupportedService = errors.New("lookup: unsupported service")

// Admission is the notification that an output was admitted under a
// topic.
type Admission struct {
	Mode          string
	Topic         string
	Txid          string
	OutputIndex   uint32
	LockingScript *script.Script
}

// Config controls what the service accepts and returns.
type Config struct {
	// Topic gates admissions; Service gates lookup questions.
	Topic   string
	Service string
	// Kinds restricts persisted kinds. Empty means every supported kind.
	Kinds []store.Kind
	// MaxLimit caps query page sizes. Zero means uncapped.
	MaxLimit int
}

// Service indexes admitted outputs into a Store and serves queries.
type Service struct {
	cfg   Config
	kinds map[store.Kind]bool
	store store.Store
	log   *zap.Logger
}

// NewService builds a Service. A nil logger disables logging.
func NewService(cfg Config, st store.Store, log *zap.Logger) *Service {
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
	return &Service{cfg: cfg, kinds: set, store: st, log: log}
}

// OutputAdmitted persists an admitted output's fields. Admission is a
// notification, not a request. Every failure is logged and swallowed.
func (s *Service) OutputAdmitted(ctx context.Context, a *Admission) {
	if a == nil {
		return
	}
	if a.Mode != ModeLockingScript {
		admissionSkippedTotal.WithLabelValues("mode").Inc()
		return
	}
	if a.Topic != s.cfg.Topic {
		admissionSkippedTotal.WithLabelValues("topic").Inc()
		return
	}

	fields, err := codec.Decode(a.LockingScript)
	if err != nil {
		admissionSkippedTotal.WithLabelValues("decode").Inc()
		s.log.Warn("undecodable admitted output",
			zap.String("txid", a.Txid),
			zap.Uint32("outputIndex", a.OutputIndex),
			zap.Error(err))
		return
	}
	if len(fields) <= codec.FieldTopic {
		admissionSkippedTotal.WithLabelValues("shape").Inc()
		return
	}

	kind := store.Kind(fields[codec.FieldKind])
	if !s.kinds[kind] || fields[codec.FieldTopic] != s.cfg.Topic {
		admissionSkippedTotal.WithLabelValues("policy").Inc()
		return
	}

	actor := ""
	if len(fields) > codec.FieldActor && fields[codec.FieldActor] != codec.NullField {
		actor = fields[codec.FieldActor]
	}

	if store.IsOrderKind(kind) {
		err = s.store.UpsertOrder(a.Txid, a.OutputIndex, fields, a.Topic, actor)
	} else {
		err = s.store.UpsertRecord(a.Txid, a.OutputIndex, fields, a.Topic, actor)
	}
	if err != nil {
		admissionSkippedTotal.WithLabelValues("store").Inc()
		s.log.Error("failed to persist admitted output",
			zap.String("txid", a.Txid),
			zap.Uint32("outputIndex", a.OutputIndex),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return
	}

	admittedTotal.WithLabelValues(string(kind)).Inc()
	s.log.Debug("persisted admitted output",
		zap.String("txid", a.Txid),
		zap.Uint32("outputIndex", a.OutputIndex),
		zap.String("kind", string(kind)))
}

// OutputSpent is accepted and ignored. Spent rows stay queryable so
// settled flows keep their history.
func (s *Service) OutputSpent(ctx context.Context, txid string, outputIndex uint32) {}

// OutputEvicted is accepted and ignored, for the same reason.
func (s *Service) OutputEvicted(ctx context.Context, txid string, outputIndex uint32) {}

// Lookup answers a question for this service. A mismatched service
// name is the one surfaced error; unrecognized query payloads degrade
// to the recent-orders default.
func (s *Service) Lookup(ctx context.Context, service string, query json.RawMessage) ([]store.UTXOReference, error) {
	if service != s.cfg.Service {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedService, service)
	}

	switch q := ParseQuery(query, s.cfg.MaxLimit).(type) {
	case RecentQuery:
		queriesTotal.WithLabelValues("recent").Inc()
		return s.store.RecentOrders(q.Limit, q.Skip)
	case MyOrdersQuery:
		queriesTotal.WithLabelValues("my-orders").Inc()
		return s.store.OrdersByActor(q.ActorKey, q.Limit, q.Skip)
	case MyCommitmentsQuery:
		queriesTotal.WithLabelValues("my-commitments").Inc()
		return s.store.CommitmentsByActor(q.ActorKey, q.Limit, q.Skip)
	case FlowByOrderQuery:
		queriesTotal.WithLabelValues("flow-by-order").Inc()
		return s.store.FlowByOrder(q.Txid)
	case FlowByCommitmentQuery:
		queriesTotal.WithLabelValues("flow-by-commitment").Inc()
		return s.store.FlowByCommitment(q.Txid)
	default:
		queriesTotal.WithLabelValues("unrecognized").Inc()
		s.log.Debug("unrecognized lookup query, serving recent", zap.ByteString("query", query))
		return s.store.RecentOrders(defaultLimit, 0)
	}
}

// Documentation returns operator-facing markdown for the service.
func (s *Service) Documentation() string { return serviceDocs }

// MetaData returns the service's overlay listing entry.
func (s *Service) MetaData() (name, shortDescription string) {
	return "Cathays Energy Lookup", "Query energy transactions from Cardiff - Cathays"
}

const serviceDocs = `# Cathays Energy Lookup

Answers questions over admitted cathays outputs.

## queries

| kind                 | parameters              | returns                         |
|----------------------|-------------------------|---------------------------------|
| recent               | limit, skip             | newest orders first             |
| my-orders            | actorKey, limit, skip   | orders by actor, newest first   |
| my-commitments       | actorKey, limit, skip   | commitments by actor            |
| flow-by-order        | txid                    | order plus linked records       |
| flow-by-commitment   | txid                    | full flow around a commitment   |
`
