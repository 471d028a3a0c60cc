package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/fd1az/chainprobe/internal/logger"
)

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

func makeHeader(parent common.Hash, number uint64) *types.Header {
	return &types.Header{
		ParentHash:  parent,
		UncleHash:   types.EmptyUncleHash,
		Root:        types.EmptyRootHash,
		TxHash:      types.EmptyTxsHash,
		ReceiptHash: types.EmptyReceiptsHash,
		Difficulty:  big.NewInt(0),
		Number:      new(big.Int).SetUint64(number),
		GasLimit:    30_000_000,
		Time:        1_700_000_000 + number*12,
	}
}

// fakeEth serves the subset of the eth namespace the backend uses. Side
// branch headers are only visible to full block lookups.
type fakeEth struct {
	mu       sync.Mutex
	byHash   map[common.Hash]*types.Header
	side     map[common.Hash]*types.Header
	byNumber map[uint64]*types.Header
	latest   uint64
	err      error

	heads chan *types.Header
}

func newFakeEth() *fakeEth {
	return &fakeEth{
		byHash:   make(map[common.Hash]*types.Header),
		side:     make(map[common.Hash]*types.Header),
		byNumber: make(map[uint64]*types.Header),
		heads:    make(chan *types.Header, 16),
	}
}

// extend appends n canonical headers and moves latest to the last one.
func (f *fakeEth) extend(n int) []*types.Header {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*types.Header
	parent := common.Hash{}
	next := uint64(0)
	if h, ok := f.byNumber[f.latest]; ok {
		parent = h.Hash()
		next = f.latest + 1
	}
	for i := 0; i < n; i++ {
		h := makeHeader(parent, next)
		f.byHash[h.Hash()] = h
		f.byNumber[next] = h
		f.latest = next
		out = append(out, h)
		parent = h.Hash()
		next++
	}
	return out
}

func (f *fakeEth) addSide(h *types.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.side[h.Hash()] = h
}

func (f *fakeEth) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeEth) GetBlockByHash(_ context.Context, hash common.Hash, full bool) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if h, ok := f.byHash[hash]; ok {
		return blockJSON(h)
	}
	if h, ok := f.side[hash]; ok && full {
		return blockJSON(h)
	}
	return nil, nil
}

func (f *fakeEth) GetBlockByNumber(_ context.Context, number rpc.BlockNumber, _ bool) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	n := f.latest
	if number >= 0 {
		n = uint64(number)
	}
	h, ok := f.byNumber[n]
	if !ok {
		return nil, nil
	}
	return blockJSON(h)
}

func (f *fakeEth) NewHeads(ctx context.Context) (*rpc.Subscription, error) {
	notifier, ok := rpc.NotifierFromContext(ctx)
	if !ok {
		return nil, rpc.ErrNotificationsUnsupported
	}
	sub := notifier.CreateSubscription()
	go func() {
		for {
			select {
			case h := <-f.heads:
				if err := notifier.Notify(sub.ID, h); err != nil {
					return
				}
			case <-sub.Err():
				return
			}
		}
	}()
	return sub, nil
}

func blockJSON(h *types.Header) (map[string]any, error) {
	raw, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	out["transactions"] = []any{}
	out["uncles"] = []any{}
	return out, nil
}

func newRPCServer(t *testing.T, fake *fakeEth) *rpc.Server {
	t.Helper()
	srv := rpc.NewServer()
	if err := srv.RegisterName("eth", fake); err != nil {
		t.Fatalf("register: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

var errBackend = errors.New("backend unavailable")
