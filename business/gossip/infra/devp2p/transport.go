// Package devp2p implements the peer transport on go-ethereum's p2p
// server: RLPx handshake, capability negotiation and one goroutine per
// peer and protocol.
package devp2p

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/p2p"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/chainprobe/business/gossip/app"
	"github.com/fd1az/chainprobe/business/gossip/domain"
	"github.com/fd1az/chainprobe/business/gossip/wire"
	"github.com/fd1az/chainprobe/internal/apperror"
	"github.com/fd1az/chainprobe/internal/logger"
)

const (
	protocolVersion = 1
	maxMessageSize  = 16 << 20
	meterName       = "github.com/fd1az/chainprobe/business/gossip/infra/devp2p"
)

// Config holds transport settings.
type Config struct {
	Name        string
	ListenAddr  string
	MaxPeers    int
	Bootnodes   []string
	StaticNodes []string
	NodeKeyFile string // empty means an ephemeral key
	NoDiscovery bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:       "chainprobe",
		ListenAddr: ":30303",
		MaxPeers:   50,
	}
}

type conn struct {
	info domain.PeerInfo
	refs int
}

// Transport implements app.PeerTransport.
type Transport struct {
	cfg Config
	log logger.LoggerInterface
	key *ecdsa.PrivateKey

	srv *p2p.Server

	ctx     context.Context
	handler app.Handler

	mu     sync.RWMutex
	conns  map[*p2p.Peer]*conn
	byID   map[domain.PeerID]*conn
	nextID atomic.Uint64

	errc chan error

	messages metric.Int64Counter
}

// New creates a transport. The node key is loaded, or created and saved
// when NodeKeyFile does not exist yet.
func New(cfg Config, log logger.LoggerInterface) (*Transport, error) {
	key, err := loadNodeKey(cfg.NodeKeyFile)
	if err != nil {
		return nil, err
	}

	messages, err := otel.Meter(meterName).Int64Counter(
		"gossip_wire_messages_total",
		metric.WithDescription("Wire messages read from peers"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	return &Transport{
		cfg:      cfg,
		log:      log,
		key:      key,
		conns:    make(map[*p2p.Peer]*conn),
		byID:     make(map[domain.PeerID]*conn),
		errc:     make(chan error, 1),
		messages: messages,
	}, nil
}

func loadNodeKey(file string) (*ecdsa.PrivateKey, error) {
	invalid := func(err error) error {
		return apperror.New(apperror.CodeGossipNodeKeyInvalid, apperror.WithContext(file), apperror.WithCause(err))
	}

	if file == "" {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, invalid(err)
		}
		return key, nil
	}

	key, err := crypto.LoadECDSA(file)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, invalid(err)
	}

	if key, err = crypto.GenerateKey(); err != nil {
		return nil, invalid(err)
	}
	if err := crypto.SaveECDSA(file, key); err != nil {
		return nil, invalid(err)
	}
	return key, nil
}

func parseNodes(urls []string) ([]*enode.Node, error) {
	nodes := make([]*enode.Node, 0, len(urls))
	for _, u := range urls {
		n, err := enode.Parse(enode.ValidSchemes, u)
		if err != nil {
			return nil, apperror.New(apperror.CodeConfigInvalid,
				apperror.WithContextf("enode %q", u),
				apperror.WithCause(err))
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// Start implements app.PeerTransport.
func (t *Transport) Start(ctx context.Context, h app.Handler) error {
	bootnodes, err := parseNodes(t.cfg.Bootnodes)
	if err != nil {
		return err
	}
	static, err := parseNodes(t.cfg.StaticNodes)
	if err != nil {
		return err
	}

	t.bind(ctx, h)
	t.srv = &p2p.Server{Config: p2p.Config{
		PrivateKey:     t.key,
		Name:           t.cfg.Name,
		MaxPeers:       t.cfg.MaxPeers,
		ListenAddr:     t.cfg.ListenAddr,
		NoDiscovery:    t.cfg.NoDiscovery,
		BootstrapNodes: bootnodes,
		StaticNodes:    static,
		Protocols: []p2p.Protocol{
			t.protocol(domain.ProtocolRelay, wire.RelayLength),
			t.protocol(domain.ProtocolSync, wire.SyncLength),
		},
	}}
	if err := t.srv.Start(); err != nil {
		return apperror.New(apperror.CodeGossipTransportFailed, apperror.WithCause(err))
	}

	t.log.Info(ctx, "p2p server listening", "enode", t.srv.Self().URLv4(), "addr", t.cfg.ListenAddr)
	return nil
}

// Stop implements app.PeerTransport.
func (t *Transport) Stop() {
	if t.srv != nil {
		t.srv.Stop()
	}
}

// Err implements app.PeerTransport.
func (t *Transport) Err() <-chan error {
	return t.errc
}

// PeerAddress implements app.PeerTransport.
func (t *Transport) PeerAddress(id domain.PeerID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.byID[id]
	if !ok || c.info.Address == "" {
		return "", false
	}
	return c.info.Address, true
}

// PeerCount implements app.PeerTransport.
func (t *Transport) PeerCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

func (t *Transport) bind(ctx context.Context, h app.Handler) {
	t.ctx = ctx
	t.handler = h
}

func (t *Transport) protocol(p domain.Protocol, length uint64) p2p.Protocol {
	return p2p.Protocol{
		Name:    string(p),
		Version: protocolVersion,
		Length:  length,
		Run: func(peer *p2p.Peer, rw p2p.MsgReadWriter) error {
			return t.run(p, peer, rw)
		},
	}
}

// run serves one protocol of one peer until the peer goes away or the
// handler fails. A handler failure is reported on Err.
func (t *Transport) run(protocol domain.Protocol, peer *p2p.Peer, rw p2p.MsgReadWriter) error {
	id, err := t.attach(peer)
	if err != nil {
		t.fail(err)
		return err
	}
	defer func() {
		if err := t.detach(peer); err != nil {
			t.fail(err)
		}
	}()

	for {
		msg, err := rw.ReadMsg()
		if err != nil {
			if t.ctx.Err() == nil {
				t.log.Debug(t.ctx, "peer read ended", "peer", id, "protocol", protocol, "error", err)
			}
			return nil
		}

		payload, err := readPayload(msg)
		if err != nil {
			t.fail(err)
			return err
		}

		t.messages.Add(t.ctx, 1, metric.WithAttributes(
			attribute.String("protocol", string(protocol)),
			attribute.Int64("code", int64(msg.Code)),
		))

		if err := t.handler.Received(t.ctx, protocol, id, msg.Code, payload); err != nil {
			t.fail(err)
			return err
		}
	}
}

func readPayload(msg p2p.Msg) ([]byte, error) {
	defer msg.Discard()
	if msg.Size > maxMessageSize {
		return nil, apperror.New(apperror.CodeGossipDecodeFailed,
			apperror.WithContextf("message 0x%02x of %d bytes exceeds limit", msg.Code, msg.Size))
	}
	payload, err := io.ReadAll(io.LimitReader(msg.Payload, int64(msg.Size)))
	if err != nil {
		return nil, apperror.New(apperror.CodeGossipDecodeFailed, apperror.WithCause(err))
	}
	return payload, nil
}

// attach registers the protocol run of peer. The first run of a
// connection assigns its PeerID and reports the connect.
func (t *Transport) attach(peer *p2p.Peer) (domain.PeerID, error) {
	t.mu.Lock()
	c, ok := t.conns[peer]
	if !ok {
		c = &conn{info: domain.PeerInfo{
			ID:      domain.PeerID(t.nextID.Add(1)),
			Address: remoteAddr(peer),
			Name:    peer.Fullname(),
		}}
		t.conns[peer] = c
		t.byID[c.info.ID] = c
	}
	c.refs++
	info := c.info
	t.mu.Unlock()

	if ok {
		return info.ID, nil
	}
	return info.ID, t.handler.Connected(t.ctx, info)
}

// detach releases a protocol run; the last one reports the disconnect.
func (t *Transport) detach(peer *p2p.Peer) error {
	t.mu.Lock()
	c, ok := t.conns[peer]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	c.refs--
	last := c.refs == 0
	if last {
		delete(t.conns, peer)
		delete(t.byID, c.info.ID)
	}
	id := c.info.ID
	t.mu.Unlock()

	if !last {
		return nil
	}
	return t.handler.Disconnected(t.ctx, id)
}

func (t *Transport) fail(err error) {
	select {
	case t.errc <- err:
	default:
	}
}

func remoteAddr(peer *p2p.Peer) string {
	addr := peer.RemoteAddr()
	if addr == nil {
		return ""
	}
	return addr.String()
}

// Self returns the local enode URL once started.
func (t *Transport) Self() string {
	if t.srv == nil {
		return ""
	}
	return t.srv.Self().URLv4()
}
