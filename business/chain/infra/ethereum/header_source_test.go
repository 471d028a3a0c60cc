package ethereum

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/fd1az/chainprobe/business/chain/domain"
	"github.com/fd1az/chainprobe/internal/apperror"
)

func newTestSource(t *testing.T, fake *fakeEth) *HeaderSource {
	t.Helper()
	client := ethclient.NewClient(rpc.DialInProc(newRPCServer(t, fake)))
	src, err := NewHeaderSource(client, DefaultHeaderSourceConfig("inproc"), testLogger())
	if err != nil {
		t.Fatalf("NewHeaderSource: %v", err)
	}
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func TestHeaderSource_HeaderByHash(t *testing.T) {
	fake := newFakeEth()
	chain := fake.extend(3)
	src := newTestSource(t, fake)

	got, err := src.HeaderByHash(context.Background(), chain[2].Hash())
	if err != nil {
		t.Fatalf("HeaderByHash: %v", err)
	}
	if got.Hash != chain[2].Hash() {
		t.Errorf("hash = %s, want %s", got.Hash, chain[2].Hash())
	}
	if got.ParentHash != chain[1].Hash() {
		t.Errorf("parent = %s, want %s", got.ParentHash, chain[1].Hash())
	}
	if got.Number != 2 {
		t.Errorf("number = %d, want 2", got.Number)
	}
	if got.Timestamp.Unix() != int64(chain[2].Time) {
		t.Errorf("timestamp = %v, want %d", got.Timestamp, chain[2].Time)
	}
}

func TestHeaderSource_SideBranchOnlyViaBlock(t *testing.T) {
	fake := newFakeEth()
	chain := fake.extend(2)
	orphan := makeHeader(chain[1].Hash(), 2)
	orphan.Extra = []byte("side")
	fake.addSide(orphan)
	src := newTestSource(t, fake)

	_, err := src.HeaderByHash(context.Background(), orphan.Hash())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("HeaderByHash err = %v, want ErrNotFound", err)
	}

	got, err := src.BlockByHash(context.Background(), orphan.Hash())
	if err != nil {
		t.Fatalf("BlockByHash: %v", err)
	}
	if got.Hash != orphan.Hash() || got.Number != 2 {
		t.Errorf("got %s/%d, want %s/2", got.Hash, got.Number, orphan.Hash())
	}
}

func TestHeaderSource_Unknown(t *testing.T) {
	fake := newFakeEth()
	fake.extend(1)
	src := newTestSource(t, fake)

	unknown := makeHeader(fake.byNumber[0].Hash(), 9).Hash()
	for name, lookup := range map[string]func() error{
		"header": func() error { _, err := src.HeaderByHash(context.Background(), unknown); return err },
		"block":  func() error { _, err := src.BlockByHash(context.Background(), unknown); return err },
	} {
		t.Run(name, func(t *testing.T) {
			if err := lookup(); !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestHeaderSource_RPCError(t *testing.T) {
	fake := newFakeEth()
	chain := fake.extend(1)
	fake.setErr(errBackend)
	src := newTestSource(t, fake)

	_, err := src.HeaderByHash(context.Background(), chain[0].Hash())
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, domain.ErrNotFound) {
		t.Fatal("rpc failure must not be reported as not found")
	}
	if !apperror.IsCode(err, apperror.CodeChainRPCFailed) {
		t.Errorf("code = %v, want %v", apperror.GetCode(err), apperror.CodeChainRPCFailed)
	}
}
