package spv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"go.uber.org/zap"

	"github.com/E-Jacko/cathays-overlay/store"
)

// Status is the outcome of one enrichment attempt. The error state is
// transient: it is reported to the caller but never persisted, so the
// next attempt starts clean.
type Status struct {
	State     store.SpvState
	Parent    store.ParentCheck
	Cached    bool
	Updated   bool
	Height    uint32
	BlockHash string
	BranchLen int
	Message   string
}

// Enricher verifies stored records against the chain and caches the
// verdicts: merkle proof, header, parent check and hydrated BEEF.
type Enricher struct {
	store    store.Store
	provider ChainProvider
	log      *zap.Logger
	now      func() time.Time
}

// NewEnricher builds an Enricher. A nil logger disables logging.
func NewEnricher(st store.Store, provider ChainProvider, log *zap.Logger) *Enricher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Enricher{store: st, provider: provider, log: log, now: time.Now}
}

// HydrateAndCache enriches one record. A stored confirmed verdict with
// hydrated BEEF short-circuits without touching the provider. Every
// failure folds into an error Status rather than propagating.
func (e *Enricher) HydrateAndCache(ctx context.Context, txid, parentTxid string) *Status {
	existing, err := e.store.RecordByTxid(txid)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return e.fail(txid, store.ParentUnknown, "load record: "+err.Error())
	}
	if existing != nil && existing.Spv != nil &&
		existing.Spv.State == store.SpvConfirmed && len(existing.HydratedBEEF) > 0 {
		parent := existing.Spv.Parent
		if parent == "" {
			parent = store.ParentUnknown
		}
		enrichmentsTotal.WithLabelValues("cached").Inc()
		return &Status{
			State:     store.SpvConfirmed,
			Parent:    parent,
			Cached:    true,
			Height:    existing.Spv.Height,
			BlockHash: existing.Spv.BlockHash,
			BranchLen: existing.Spv.BranchLen,
		}
	}

	expectedVouts, err := e.store.OutputIndexesForTxid(parentTxid, store.KindContract)
	if err != nil {
		return e.fail(txid, store.ParentUnknown, "lookup parent outputs: "+err.Error())
	}

	proof, err := e.provider.GetMerkleProof(ctx, txid)
	if err != nil {
		return e.fail(txid, store.ParentUnknown, "fetch proof: "+err.Error())
	}

	if proof == nil {
		parent := e.resolveParent(ctx, txid, parentTxid, expectedVouts)
		if err := e.cacheState(txid, store.SpvPending, parent); err != nil {
			return e.fail(txid, parent, "cache pending: "+err.Error())
		}
		enrichmentsTotal.WithLabelValues(string(store.SpvPending)).Inc()
		return &Status{State: store.SpvPending, Parent: parent, Message: "proof not available"}
	}

	header, err := e.provider.GetBlockHeader(ctx, proof.BlockHash)
	if err != nil {
		return e.fail(txid, store.ParentUnknown, "fetch header: "+err.Error())
	}
	if header == nil || header.Height == 0 || header.MerkleRoot == "" {
		return e.invalid(ctx, txid, parentTxid, expectedVouts, "header missing height or merkle root")
	}

	if err := verifyProofAgainstHeader(txid, proof, header); err != nil {
		return e.invalid(ctx, txid, parentTxid, expectedVouts, err.Error())
	}

	txHex, err := e.provider.GetRawTxHex(ctx, txid)
	if err != nil {
		return e.fail(txid, store.ParentUnknown, "fetch raw tx: "+err.Error())
	}
	parent := parentCheckFromHex(txHex, parentTxid, expectedVouts)

	bump, err := buildMerklePath(txid, proof, header.Height)
	if err != nil {
		return e.fail(txid, parent, "build merkle path: "+err.Error())
	}

	tx, err := transaction.NewTransactionFromHex(txHex)
	if err != nil {
		return e.fail(txid, parent, "parse raw tx: "+err.Error())
	}
	tx.MerklePath = bump

	beef, err := tx.BEEF()
	if err != nil {
		return e.fail(txid, parent, "serialize beef: "+err.Error())
	}

	headerJSON, _ := json.Marshal(header)
	proofJSON, _ := json.Marshal(proof)
	info := &store.SpvInfo{
		State:     store.SpvConfirmed,
		Parent:    parent,
		BlockHash: header.Hash,
		Height:    header.Height,
		BranchLen: len(proof.Merkle),
		Header:    headerJSON,
		Proof:     proofJSON,
		CheckedAt: e.now(),
	}
	changed, err := e.store.ConfirmSpv(txid, info, beef)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return e.fail(txid, parent, "confirm: "+err.Error())
	}

	enrichmentsTotal.WithLabelValues(string(store.SpvConfirmed)).Inc()
	e.log.Debug("confirmed record",
		zap.String("txid", txid),
		zap.Uint32("height", header.Height),
		zap.Bool("updated", changed))
	return &Status{
		State:     store.SpvConfirmed,
		Parent:    parent,
		Updated:   changed,
		Height:    header.Height,
		BlockHash: header.Hash,
		BranchLen: len(proof.Merkle),
	}
}

// SweepPending re-runs enrichment for records still pending, oldest
// first, and returns how many were newly confirmed.
func (e *Enricher) SweepPending(ctx context.Context, limit int) (int, error) {
	txids, err := e.store.PendingSpv(limit)
	if err != nil {
		return 0, fmt.Errorf("spv: list pending: %w", err)
	}

	confirmed := 0
	for _, txid := range txids {
		select {
		case <-ctx.Done():
			return confirmed, ctx.Err()
		default:
		}

		parent := ""
		if rec, err := e.store.RecordByTxid(txid); err == nil {
			parent = rec.ParentTxid
		}
		status := e.HydrateAndCache(ctx, txid, parent)
		if status.State == store.SpvConfirmed && !status.Cached {
			confirmed++
		}
		if status.State == store.SpvError {
			e.log.Warn("sweep enrichment failed",
				zap.String("txid", txid),
				zap.String("message", status.Message))
		}
	}
	sweepsTotal.Inc()
	return confirmed, nil
}

// invalid records an invalid verdict and returns its status.
func (e *Enricher) invalid(ctx context.Context, txid, parentTxid string, expectedVouts []uint32, msg string) *Status {
	parent := e.resolveParent(ctx, txid, parentTxid, expectedVouts)
	if err := e.cacheState(txid, store.SpvInvalid, parent); err != nil {
		return e.fail(txid, parent, "cache invalid: "+err.Error())
	}
	enrichmentsTotal.WithLabelValues(string(store.SpvInvalid)).Inc()
	return &Status{State: store.SpvInvalid, Parent: parent, Message: msg}
}

// fail logs and returns a transient error status.
func (e *Enricher) fail(txid string, parent store.ParentCheck, msg string) *Status {
	enrichmentsTotal.WithLabelValues(string(store.SpvError)).Inc()
	e.log.Warn("enrichment failed", zap.String("txid", txid), zap.String("message", msg))
	return &Status{State: store.SpvError, Parent: parent, Message: msg}
}

// cacheState persists a non-confirmed verdict. A record the store does
// not know yet is not an error; the verdict is simply dropped.
func (e *Enricher) cacheState(txid string, state store.SpvState, parent store.ParentCheck) error {
	err := e.store.CacheSpv(txid, &store.SpvInfo{
		State:     state,
		Parent:    parent,
		CheckedAt: e.now(),
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// resolveParent computes the parent check from the child's raw hex,
// falling back to the provider's vin summary when the hex is
// unavailable.
func (e *Enricher) resolveParent(ctx context.Context, txid, parentTxid string, expectedVouts []uint32) store.ParentCheck {
	if parentTxid == "" {
		return store.ParentUnknown
	}
	if txHex, err := e.provider.GetRawTxHex(ctx, txid); err == nil {
		return parentCheckFromHex(txHex, parentTxid, expectedVouts)
	}
	info, err := e.provider.GetTx(ctx, txid)
	if err != nil || info == nil {
		return store.ParentUnknown
	}
	return parentCheckFromVin(info, parentTxid, expectedVouts)
}

// parentCheckFromHex parses the child transaction and checks that it
// really spends the declared parent. With a known vout set, at least
// min(2, len(expectedVouts)) outpoints must match; without one, the
// txid alone decides. Parse failures stay unknown.
func parentCheckFromHex(childTxHex, declaredParent string, expectedVouts []uint32) store.ParentCheck {
	if declaredParent == "" {
		return store.ParentUnknown
	}
	tx, err := transaction.NewTransactionFromHex(childTxHex)
	if err != nil {
		return store.ParentUnknown
	}

	want := strings.ToLower(declaredParent)

	if len(expectedVouts) == 0 {
		for _, in := range tx.Inputs {
			if in.SourceTXID != nil && strings.ToLower(in.SourceTXID.String()) == want {
				return store.ParentMatch
			}
		}
		return store.ParentMismatch
	}

	voutSet := make(map[uint32]bool, len(expectedVouts))
	for _, v := range expectedVouts {
		voutSet[v] = true
	}
	matches := 0
	for _, in := range tx.Inputs {
		if in.SourceTXID != nil &&
			strings.ToLower(in.SourceTXID.String()) == want &&
			voutSet[in.SourceTxOutIndex] {
			matches++
		}
	}

	required := len(expectedVouts)
	if required > 2 {
		required = 2
	}
	if matches >= required {
		return store.ParentMatch
	}
	return store.ParentMismatch
}

// parentCheckFromVin applies the same rules to a provider vin summary.
func parentCheckFromVin(info *TxInfo, declaredParent string, expectedVouts []uint32) store.ParentCheck {
	if declaredParent == "" || info == nil {
		return store.ParentUnknown
	}

	want := strings.ToLower(declaredParent)

	if len(expectedVouts) == 0 {
		for _, in := range info.Vin {
			if strings.ToLower(in.Txid) == want {
				return store.ParentMatch
			}
		}
		return store.ParentMismatch
	}

	voutSet := make(map[uint32]bool, len(expectedVouts))
	for _, v := range expectedVouts {
		voutSet[v] = true
	}
	matches := 0
	for _, in := range info.Vin {
		if strings.ToLower(in.Txid) == want && voutSet[in.Vout] {
			matches++
		}
	}

	required := len(expectedVouts)
	if required > 2 {
		required = 2
	}
	if matches >= required {
		return store.ParentMatch
	}
	return store.ParentMismatch
}

// buildMerklePath converts a provider proof into a go-sdk merkle path:
// level 0 holds the leaf and its sibling at pos^1, each upper level h
// holds the single sibling at (pos>>h)^1.
func buildMerklePath(txid string, proof *TxProof, height uint32) (*transaction.MerklePath, error) {
	pos := proof.Position()
	siblings := proof.Merkle

	levels := len(siblings)
	if levels == 0 {
		levels = 1
	}
	path := make([][]*transaction.PathElement, levels)

	leaf, err := chainhash.NewHashFromHex(txid)
	if err != nil {
		return nil, fmt.Errorf("%w: leaf txid: %v", ErrInvalidResponse, err)
	}
	isTxid := true
	level0 := []*transaction.PathElement{{Offset: pos, Hash: leaf, Txid: &isTxid}}
	if len(siblings) > 0 {
		sib, err := chainhash.NewHashFromHex(siblings[0])
		if err != nil {
			return nil, fmt.Errorf("%w: sibling 0: %v", ErrInvalidResponse, err)
		}
		level0 = append(level0, &transaction.PathElement{Offset: pos ^ 1, Hash: sib})
	}
	sort.Slice(level0, func(i, j int) bool { return level0[i].Offset < level0[j].Offset })
	path[0] = level0

	index := pos
	for h := 1; h < len(siblings); h++ {
		index >>= 1
		sib, err := chainhash.NewHashFromHex(siblings[h])
		if err != nil {
			return nil, fmt.Errorf("%w: sibling %d: %v", ErrInvalidResponse, h, err)
		}
		path[h] = []*transaction.PathElement{{Offset: index ^ 1, Hash: sib}}
	}

	return &transaction.MerklePath{BlockHeight: height, Path: path}, nil
}
