package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fd1az/chainprobe/business/chain/domain"
	reportDomain "github.com/fd1az/chainprobe/business/report/domain"
	"github.com/fd1az/chainprobe/internal/apperror"
	"github.com/fd1az/chainprobe/internal/logger"
)

// chainFixture is an in-memory HeaderSource. Canonical headers answer
// HeaderByHash; side-branch headers only answer BlockByHash.
type chainFixture struct {
	mu        sync.Mutex
	canonical map[common.Hash]*domain.Header
	side      map[common.Hash]*domain.Header
	rpcErr    error
	lookups   int
}

func newChainFixture() *chainFixture {
	return &chainFixture{
		canonical: make(map[common.Hash]*domain.Header),
		side:      make(map[common.Hash]*domain.Header),
	}
}

func (f *chainFixture) HeaderByHash(_ context.Context, hash common.Hash) (*domain.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.rpcErr != nil {
		return nil, f.rpcErr
	}
	if h, ok := f.canonical[hash]; ok {
		return h, nil
	}
	return nil, domain.ErrNotFound
}

func (f *chainFixture) BlockByHash(_ context.Context, hash common.Hash) (*domain.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if h, ok := f.canonical[hash]; ok {
		return h, nil
	}
	if h, ok := f.side[hash]; ok {
		return h, nil
	}
	return nil, domain.ErrNotFound
}

var genesisTime = time.Unix(1_700_000_000, 0).UTC()

func hashOf(label string, number uint64) common.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("%s/%d", label, number)))
}

// extend builds headers label/from+1 .. label/to on top of parent and stores
// them in dst.
func extend(dst map[common.Hash]*domain.Header, label string, parent *domain.Header, to uint64) []*domain.Header {
	var out []*domain.Header
	prev := parent
	for n := parent.Number + 1; n <= to; n++ {
		h := &domain.Header{
			Hash:       hashOf(label, n),
			ParentHash: prev.Hash,
			Number:     n,
			Timestamp:  genesisTime.Add(time.Duration(n) * 12 * time.Second),
		}
		dst[h.Hash] = h
		out = append(out, h)
		prev = h
	}
	return out
}

// mainChain returns a canonical chain 0..height; index i holds block i.
func (f *chainFixture) mainChain(height uint64) []*domain.Header {
	genesis := &domain.Header{Hash: hashOf("main", 0), Number: 0, Timestamp: genesisTime}
	f.canonical[genesis.Hash] = genesis
	return append([]*domain.Header{genesis}, extend(f.canonical, "main", genesis, height)...)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []reportDomain.Event
	err    error
}

func (e *recordingEmitter) Emit(_ context.Context, ev reportDomain.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, ev)
	return nil
}

func (e *recordingEmitter) reorgs() []reportDomain.Reorganization {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []reportDomain.Reorganization
	for _, ev := range e.events {
		if r, ok := ev.(reportDomain.Reorganization); ok {
			out = append(out, r)
		}
	}
	return out
}

func newTestTracker(src HeaderSource, em *recordingEmitter) *Tracker {
	return NewTracker(src, em, logger.New(io.Discard, logger.LevelError, "test", nil))
}

func TestTracker_LinearChainEmitsNothing(t *testing.T) {
	fx := newChainFixture()
	chain := fx.mainChain(50)
	em := &recordingEmitter{}
	tr := newTestTracker(fx, em)

	for _, h := range chain {
		if err := tr.OnNewHeader(context.Background(), h); err != nil {
			t.Fatalf("OnNewHeader(%d): %v", h.Number, err)
		}
	}

	if n := len(em.reorgs()); n != 0 {
		t.Fatalf("expected no reorganizations, got %d", n)
	}
	tip, ok := tr.Tip()
	if !ok || tip.Number != 50 || tip.Hash != chain[50].Hash {
		t.Errorf("unexpected tip %+v", tip)
	}
	if fx.lookups != 0 {
		t.Errorf("linear extension should not query the source, got %d lookups", fx.lookups)
	}
}

func TestTracker_FirstHeaderBecomesTip(t *testing.T) {
	fx := newChainFixture()
	chain := fx.mainChain(10)
	em := &recordingEmitter{}
	tr := newTestTracker(fx, em)

	if _, ok := tr.Tip(); ok {
		t.Fatal("expected empty tip")
	}
	if err := tr.OnNewHeader(context.Background(), chain[7]); err != nil {
		t.Fatalf("OnNewHeader: %v", err)
	}
	tip, ok := tr.Tip()
	if !ok || tip.Number != 7 {
		t.Errorf("expected tip 7, got %+v", tip)
	}
}

func TestTracker_FindAncestorSteps(t *testing.T) {
	fx := newChainFixture()
	chain := fx.mainChain(100)
	fork := extend(fx.side, "fork", chain[90], 97)
	tr := newTestTracker(fx, &recordingEmitter{})

	res, err := tr.findAncestor(context.Background(), chain[100], fork[len(fork)-1])
	if err != nil {
		t.Fatalf("findAncestor: %v", err)
	}

	if res.ancestor.Number != 90 || res.ancestor.Hash != chain[90].Hash {
		t.Errorf("expected ancestor main/90, got %d %s", res.ancestor.Number, res.ancestor.Hash.Hex())
	}
	if res.equalizeSteps != 3 {
		t.Errorf("expected 3 equalize steps, got %d", res.equalizeSteps)
	}
	if res.lockstepSteps != 7 {
		t.Errorf("expected 7 lockstep steps, got %d", res.lockstepSteps)
	}
}

func TestTracker_Reorganization(t *testing.T) {
	tests := []struct {
		name         string
		mainHeight   uint64
		forkFrom     uint64
		forkHeight   uint64
		wantAncestor uint64
		wantAttached uint64
	}{
		{name: "shorter branch", mainHeight: 100, forkFrom: 90, forkHeight: 97, wantAncestor: 90, wantAttached: 7},
		{name: "competing branch at equal height", mainHeight: 100, forkFrom: 99, forkHeight: 100, wantAncestor: 99, wantAttached: 1},
		{name: "longer branch", mainHeight: 100, forkFrom: 95, forkHeight: 104, wantAncestor: 95, wantAttached: 9},
		{name: "deep fork", mainHeight: 300, forkFrom: 10, forkHeight: 301, wantAncestor: 10, wantAttached: 291},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newChainFixture()
			chain := fx.mainChain(tt.mainHeight)
			fork := extend(fx.side, "fork", chain[tt.forkFrom], tt.forkHeight)
			newTip := fork[len(fork)-1]

			em := &recordingEmitter{}
			tr := newTestTracker(fx, em)
			ctx := context.Background()

			if err := tr.OnNewHeader(ctx, chain[tt.mainHeight]); err != nil {
				t.Fatalf("OnNewHeader(main): %v", err)
			}
			if err := tr.OnNewHeader(ctx, newTip); err != nil {
				t.Fatalf("OnNewHeader(fork): %v", err)
			}

			reorgs := em.reorgs()
			if len(reorgs) != 1 {
				t.Fatalf("expected 1 reorganization, got %d", len(reorgs))
			}
			r := reorgs[0]

			if r.Ancestor.Number != tt.wantAncestor || r.Ancestor.Hash != chain[tt.wantAncestor].Hash {
				t.Errorf("expected ancestor %d, got %+v", tt.wantAncestor, r.Ancestor)
			}
			if r.AttachedLength != tt.wantAttached {
				t.Errorf("expected attached length %d, got %d", tt.wantAttached, r.AttachedLength)
			}
			if r.AttachedLength != r.NewTip.Number-r.Ancestor.Number {
				t.Errorf("attached length %d does not match new tip %d minus ancestor %d",
					r.AttachedLength, r.NewTip.Number, r.Ancestor.Number)
			}
			if r.Ancestor.Number > min(r.OldTip.Number, r.NewTip.Number) {
				t.Errorf("ancestor %d above a tip", r.Ancestor.Number)
			}
			if r.OldTip.Hash != chain[tt.mainHeight].Hash || r.NewTip.Hash != newTip.Hash {
				t.Errorf("unexpected tips old=%+v new=%+v", r.OldTip, r.NewTip)
			}
			if !r.Time.Equal(chain[tt.wantAncestor].Timestamp) {
				t.Errorf("expected ancestor timestamp %s, got %s", chain[tt.wantAncestor].Timestamp, r.Time)
			}

			tip, _ := tr.Tip()
			if tip.Hash != newTip.Hash {
				t.Errorf("expected tip to move to the new branch, got %+v", tip)
			}
		})
	}
}

func TestTracker_ReorgThenExtendNewBranch(t *testing.T) {
	fx := newChainFixture()
	chain := fx.mainChain(20)
	fork := extend(fx.side, "fork", chain[18], 25)
	em := &recordingEmitter{}
	tr := newTestTracker(fx, em)
	ctx := context.Background()

	_ = tr.OnNewHeader(ctx, chain[20])
	_ = tr.OnNewHeader(ctx, fork[2]) // fork/21
	for _, h := range fork[3:] {
		if err := tr.OnNewHeader(ctx, h); err != nil {
			t.Fatalf("OnNewHeader(%d): %v", h.Number, err)
		}
	}

	if n := len(em.reorgs()); n != 1 {
		t.Fatalf("expected exactly 1 reorganization, got %d", n)
	}
}

func TestTracker_RedeliveredTipIsNoop(t *testing.T) {
	fx := newChainFixture()
	chain := fx.mainChain(5)
	em := &recordingEmitter{}
	tr := newTestTracker(fx, em)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := tr.OnNewHeader(ctx, chain[5]); err != nil {
			t.Fatalf("OnNewHeader: %v", err)
		}
	}

	if n := len(em.reorgs()); n != 0 {
		t.Fatalf("expected no reorganization, got %d", n)
	}
	tip, _ := tr.Tip()
	if tip.Hash != chain[5].Hash {
		t.Errorf("tip corrupted: %+v", tip)
	}
	if fx.lookups != 0 {
		t.Errorf("expected no lookups, got %d", fx.lookups)
	}
}

func TestTracker_LookupMissIsFatal(t *testing.T) {
	fx := newChainFixture()
	chain := fx.mainChain(10)
	// orphan parent: not present anywhere
	orphan := &domain.Header{Hash: hashOf("orphan", 11), ParentHash: hashOf("unknown", 10), Number: 11}
	em := &recordingEmitter{}
	tr := newTestTracker(fx, em)
	ctx := context.Background()

	_ = tr.OnNewHeader(ctx, chain[10])
	err := tr.OnNewHeader(ctx, orphan)

	if !apperror.IsCode(err, apperror.CodeChainHeaderNotFound) {
		t.Fatalf("expected %s, got %v", apperror.CodeChainHeaderNotFound, err)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound cause, got %v", err)
	}
	if len(em.reorgs()) != 0 {
		t.Error("no event expected on lookup miss")
	}
	tip, _ := tr.Tip()
	if tip.Hash != chain[10].Hash {
		t.Errorf("tip must not move on failure, got %+v", tip)
	}
}

func TestTracker_SourceErrorIsFatal(t *testing.T) {
	fx := newChainFixture()
	chain := fx.mainChain(10)
	fork := extend(fx.side, "fork", chain[8], 10)
	em := &recordingEmitter{}
	tr := newTestTracker(fx, em)
	ctx := context.Background()

	_ = tr.OnNewHeader(ctx, chain[10])
	fx.rpcErr = errors.New("connection reset")

	err := tr.OnNewHeader(ctx, fork[1])
	if !apperror.IsCode(err, apperror.CodeChainRPCFailed) {
		t.Fatalf("expected %s, got %v", apperror.CodeChainRPCFailed, err)
	}
}

func TestTracker_EmitFailureKeepsTip(t *testing.T) {
	fx := newChainFixture()
	chain := fx.mainChain(10)
	fork := extend(fx.side, "fork", chain[8], 10)
	em := &recordingEmitter{}
	tr := newTestTracker(fx, em)
	ctx := context.Background()

	_ = tr.OnNewHeader(ctx, chain[10])
	em.err = apperror.New(apperror.CodeReportBusClosed)

	err := tr.OnNewHeader(ctx, fork[1])
	if !apperror.IsCode(err, apperror.CodeReportBusClosed) {
		t.Fatalf("expected %s, got %v", apperror.CodeReportBusClosed, err)
	}
	tip, _ := tr.Tip()
	if tip.Hash != chain[10].Hash {
		t.Errorf("tip must not move when the event is not delivered, got %+v", tip)
	}
}
