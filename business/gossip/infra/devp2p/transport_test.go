package devp2p

import (
	"context"
	"io"
	"math/big"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/p2p"
	"github.com/ethereum/go-ethereum/p2p/enode"

	"github.com/fd1az/chainprobe/business/gossip/domain"
	"github.com/fd1az/chainprobe/business/gossip/wire"
	"github.com/fd1az/chainprobe/internal/apperror"
	"github.com/fd1az/chainprobe/internal/logger"
)

type received struct {
	protocol domain.Protocol
	peer     domain.PeerID
	code     uint64
	payload  []byte
}

type recordingHandler struct {
	mu           sync.Mutex
	connected    []domain.PeerInfo
	disconnected []domain.PeerID
	received     []received
	failWith     error
}

func (h *recordingHandler) Connected(_ context.Context, p domain.PeerInfo) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = append(h.connected, p)
	return nil
}

func (h *recordingHandler) Disconnected(_ context.Context, id domain.PeerID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = append(h.disconnected, id)
	return nil
}

func (h *recordingHandler) Received(_ context.Context, proto domain.Protocol, peer domain.PeerID, code uint64, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.received = append(h.received, received{proto, peer, code, payload})
	return h.failWith
}

func newTestTransport(t *testing.T, h *recordingHandler) *Transport {
	t.Helper()
	tr, err := New(DefaultConfig(), logger.New(io.Discard, logger.LevelError, "test", nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr.bind(context.Background(), h)
	return tr
}

func compactBlock() *wire.CompactBlock {
	return &wire.CompactBlock{Header: &types.Header{
		ParentHash: common.HexToHash("0x01"),
		Difficulty: big.NewInt(1),
		Number:     big.NewInt(10),
	}}
}

func TestTransport_ForwardsMessagesAndLifecycle(t *testing.T) {
	h := &recordingHandler{}
	tr := newTestTransport(t, h)
	peer := p2p.NewPeer(enode.ID{1}, "remote/v1.0", nil)

	relayLocal, relayRemote := p2p.MsgPipe()
	syncLocal, syncRemote := p2p.MsgPipe()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = tr.run(domain.ProtocolRelay, peer, relayLocal) }()
	go func() { defer wg.Done(); _ = tr.run(domain.ProtocolSync, peer, syncLocal) }()

	if err := p2p.Send(relayRemote, wire.CompactBlockCode, compactBlock()); err != nil {
		t.Fatalf("send relay: %v", err)
	}
	if err := p2p.Send(syncRemote, wire.GetBlocksCode, &wire.GetBlocks{Hashes: []common.Hash{{1}}}); err != nil {
		t.Fatalf("send sync: %v", err)
	}

	if got := tr.PeerCount(); got != 1 {
		t.Errorf("PeerCount = %d, want 1 for one connection with two protocols", got)
	}

	relayRemote.Close()
	syncRemote.Close()
	wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.connected) != 1 || len(h.disconnected) != 1 {
		t.Fatalf("connected=%d disconnected=%d, want 1/1", len(h.connected), len(h.disconnected))
	}
	id := h.connected[0].ID
	if h.disconnected[0] != id {
		t.Errorf("disconnected %v, want %v", h.disconnected[0], id)
	}
	if h.connected[0].Name != "remote/v1.0" {
		t.Errorf("name = %q", h.connected[0].Name)
	}
	if len(h.received) != 2 {
		t.Fatalf("received %d messages, want 2", len(h.received))
	}
	for _, r := range h.received {
		if r.peer != id {
			t.Errorf("message from %v, want %v", r.peer, id)
		}
		msg, err := wire.Decode(r.protocol, r.code, r.payload)
		if err != nil {
			t.Errorf("payload for %s 0x%02x does not decode: %v", r.protocol, r.code, err)
			continue
		}
		if msg.Protocol() != r.protocol {
			t.Errorf("%T arrived on %s", msg, r.protocol)
		}
	}
	if tr.PeerCount() != 0 {
		t.Errorf("PeerCount after disconnect = %d", tr.PeerCount())
	}
}

func TestTransport_ReconnectGetsFreshID(t *testing.T) {
	h := &recordingHandler{}
	tr := newTestTransport(t, h)

	for i := 0; i < 2; i++ {
		peer := p2p.NewPeer(enode.ID{7}, "same-node", nil)
		local, remote := p2p.MsgPipe()
		done := make(chan struct{})
		go func() { defer close(done); _ = tr.run(domain.ProtocolRelay, peer, local) }()
		if err := p2p.Send(remote, wire.RelayTransactionHashesCode, &wire.RelayTransactionHashes{}); err != nil {
			t.Fatal(err)
		}
		remote.Close()
		<-done
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.connected) != 2 || h.connected[0].ID == h.connected[1].ID {
		t.Errorf("connects = %+v, want two distinct ids", h.connected)
	}
}

func TestTransport_HandlerErrorIsReported(t *testing.T) {
	h := &recordingHandler{failWith: apperror.New(apperror.CodeGossipDecodeFailed)}
	tr := newTestTransport(t, h)
	peer := p2p.NewPeer(enode.ID{2}, "bad", nil)
	local, remote := p2p.MsgPipe()
	defer remote.Close()

	done := make(chan error, 1)
	go func() { done <- tr.run(domain.ProtocolRelay, peer, local) }()

	if err := p2p.Send(remote, wire.CompactBlockCode, compactBlock()); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if !apperror.IsCode(err, apperror.CodeGossipDecodeFailed) {
			t.Errorf("run err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
	select {
	case err := <-tr.Err():
		if !apperror.IsCode(err, apperror.CodeGossipDecodeFailed) {
			t.Errorf("Err() = %v", err)
		}
	default:
		t.Error("error not reported")
	}
}

func TestTransport_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.NoDiscovery = true
	cfg.NodeKeyFile = filepath.Join(t.TempDir(), "nodekey")

	tr, err := New(cfg, logger.New(io.Discard, logger.LevelError, "test", nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tr.Start(context.Background(), &recordingHandler{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	if tr.Self() == "" {
		t.Error("empty enode url")
	}

	// The key was persisted and is reused.
	key, err := crypto.LoadECDSA(cfg.NodeKeyFile)
	if err != nil {
		t.Fatalf("node key not saved: %v", err)
	}
	if !key.Equal(tr.key) {
		t.Error("saved key differs from the running key")
	}
}

func TestParseNodes(t *testing.T) {
	key, _ := crypto.GenerateKey()
	url := enode.NewV4(&key.PublicKey, net.ParseIP("127.0.0.1"), 30303, 30303).URLv4()

	nodes, err := parseNodes([]string{url})
	if err != nil || len(nodes) != 1 {
		t.Fatalf("parseNodes(valid) = %v, %v", nodes, err)
	}
	if _, err := parseNodes([]string{"enode://nonsense"}); !apperror.IsCode(err, apperror.CodeConfigInvalid) {
		t.Errorf("invalid url err = %v", err)
	}
}
