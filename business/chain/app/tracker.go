package app

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fd1az/chainprobe/business/chain/domain"
	reportApp "github.com/fd1az/chainprobe/business/report/app"
	reportDomain "github.com/fd1az/chainprobe/business/report/domain"
	"github.com/fd1az/chainprobe/internal/apm"
	"github.com/fd1az/chainprobe/internal/apperror"
	"github.com/fd1az/chainprobe/internal/logger"
)

const tracerName = "github.com/fd1az/chainprobe/business/chain/app"

// Tracker follows the canonical tip and reports reorganizations. It is
// driven by a single goroutine; the mutex only guards Tip readers.
type Tracker struct {
	source  HeaderSource
	emitter reportApp.Emitter
	log     logger.LoggerInterface
	tracer  apm.Tracer

	mu  sync.RWMutex
	tip *domain.ChainTip
}

// NewTracker creates a tracker with no tip.
func NewTracker(source HeaderSource, emitter reportApp.Emitter, log logger.LoggerInterface) *Tracker {
	return &Tracker{
		source:  source,
		emitter: emitter,
		log:     log,
		tracer:  apm.NewTracer(tracerName),
	}
}

// Tip returns the current tip, if any.
func (t *Tracker) Tip() (domain.ChainTip, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.tip == nil {
		return domain.ChainTip{}, false
	}
	return *t.tip, true
}

func (t *Tracker) setTip(h *domain.Header) {
	tip := h.Tip()
	t.mu.Lock()
	t.tip = &tip
	t.mu.Unlock()
}

// OnNewHeader advances the tip to h. When h does not extend the current tip
// the common ancestor is located and a Reorganization is emitted before the
// tip moves. Errors are fatal: the tip is left unchanged.
func (t *Tracker) OnNewHeader(ctx context.Context, h *domain.Header) error {
	current, ok := t.Tip()

	switch {
	case !ok, h.ParentHash == current.Hash:
		t.setTip(h)
		return nil
	case h.Hash == current.Hash:
		// re-delivery of the current tip
		t.log.Debug(ctx, "tip re-delivered", "number", h.Number, "hash", h.Hash.Hex())
		return nil
	}

	ctx, span := t.tracer.StartSpanFromContext(ctx, "chain.reorganization")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("old_tip", int64(current.Number)),
		attribute.Int64("new_tip", int64(h.Number)),
	)

	oldTip, err := t.lookup(ctx, current.Hash)
	if err != nil {
		span.NoticeError(err)
		return err
	}

	res, err := t.findAncestor(ctx, oldTip, h)
	if err != nil {
		span.NoticeError(err)
		return err
	}
	ancestor := res.ancestor

	ev := reportDomain.Reorganization{
		Time:           ancestor.Timestamp,
		AttachedLength: h.Number - ancestor.Number,
		OldTip:         blockRef(oldTip),
		NewTip:         blockRef(h),
		Ancestor:       blockRef(ancestor),
	}
	span.SetAttributes(
		attribute.Int64("ancestor", int64(ancestor.Number)),
		attribute.Int64("attached_length", int64(ev.AttachedLength)),
	)

	t.log.Info(ctx, "chain reorganization",
		"old_tip", oldTip.Number,
		"new_tip", h.Number,
		"ancestor", ancestor.Number,
		"attached_length", ev.AttachedLength)

	if err := t.emitter.Emit(ctx, ev); err != nil {
		span.NoticeError(err)
		return err
	}

	t.setTip(h)
	return nil
}

type searchResult struct {
	ancestor      *domain.Header
	equalizeSteps int
	lockstepSteps int
}

// findAncestor walks the higher branch down to the lower one's height, then
// both branches together until the hashes meet.
func (t *Tracker) findAncestor(ctx context.Context, oldTip, newTip *domain.Header) (searchResult, error) {
	var res searchResult
	old, cur := oldTip, newTip

	for old.Number > cur.Number {
		parent, err := t.lookup(ctx, old.ParentHash)
		if err != nil {
			return res, err
		}
		old = parent
		res.equalizeSteps++
	}
	for cur.Number > old.Number {
		parent, err := t.lookup(ctx, cur.ParentHash)
		if err != nil {
			return res, err
		}
		cur = parent
		res.equalizeSteps++
	}

	for old.Hash != cur.Hash {
		var err error
		if old, err = t.lookup(ctx, old.ParentHash); err != nil {
			return res, err
		}
		if cur, err = t.lookup(ctx, cur.ParentHash); err != nil {
			return res, err
		}
		res.lockstepSteps++
	}

	res.ancestor = old
	return res, nil
}

// lookup resolves hash through the canonical index first and falls back to
// the block lookup for side-branch headers. A miss on both is fatal.
func (t *Tracker) lookup(ctx context.Context, hash common.Hash) (*domain.Header, error) {
	h, err := t.source.HeaderByHash(ctx, hash)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, apperror.Wrap(err, apperror.CodeChainRPCFailed, "header by hash "+hash.Hex())
	}

	h, err = t.source.BlockByHash(ctx, hash)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, apperror.Wrap(err, apperror.CodeChainRPCFailed, "block by hash "+hash.Hex())
	}

	return nil, apperror.New(apperror.CodeChainHeaderNotFound,
		apperror.WithContext(hash.Hex()),
		apperror.WithCause(err))
}

func blockRef(h *domain.Header) reportDomain.BlockRef {
	return reportDomain.BlockRef{Number: h.Number, Hash: h.Hash}
}
