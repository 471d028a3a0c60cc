// Package wire defines the relay and sync message sets exchanged with
// peers and their RLP encoding.
package wire

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/chainprobe/business/gossip/domain"
)

// Relay message codes.
const (
	CompactBlockCode           uint64 = 0x00
	RelayTransactionsCode      uint64 = 0x01
	RelayTransactionHashesCode uint64 = 0x02
	GetRelayTransactionsCode   uint64 = 0x03

	// RelayLength is the number of codes reserved by the relay protocol.
	RelayLength uint64 = 0x04
)

// Sync message codes.
const (
	GetHeadersCode  uint64 = 0x00
	SendHeadersCode uint64 = 0x01
	GetBlocksCode   uint64 = 0x02
	SendBlockCode   uint64 = 0x03

	SyncLength uint64 = 0x04
)

// Message is implemented by every message in this package.
type Message interface {
	Protocol() domain.Protocol
	Code() uint64
}

// CompactBlock announces a block by header plus short transaction ids.
// Receivers reconstruct the body from their pool.
type CompactBlock struct {
	Header    *types.Header
	ShortIDs  []uint64
	Prefilled []PrefilledTransaction
}

// PrefilledTransaction is a transaction the sender expects the receiver
// to be missing, at its index in the block.
type PrefilledTransaction struct {
	Index uint64
	Tx    *types.Transaction
}

// Hash is the announced block's identity.
func (m *CompactBlock) Hash() common.Hash { return m.Header.Hash() }

// RelayTransaction is a full transaction together with its execution cost.
type RelayTransaction struct {
	Cycles uint64
	Tx     *types.Transaction
}

// RelayTransactions relays full transactions.
type RelayTransactions struct {
	Transactions []RelayTransaction
}

// RelayTransactionHashes announces transactions by hash only.
type RelayTransactionHashes struct {
	Hashes []common.Hash
}

// GetRelayTransactions requests full transactions for announced hashes.
type GetRelayTransactions struct {
	Hashes []common.Hash
}

// GetHeaders requests headers after the first locator hash known to the
// receiver, up to Stop.
type GetHeaders struct {
	Locator []common.Hash
	Stop    common.Hash
}

// SendHeaders answers GetHeaders.
type SendHeaders struct {
	Headers []*types.Header
}

// GetBlocks requests full blocks by hash.
type GetBlocks struct {
	Hashes []common.Hash
}

// SendBlock carries full block content.
type SendBlock struct {
	Block *types.Block
}

func (*CompactBlock) Protocol() domain.Protocol           { return domain.ProtocolRelay }
func (*RelayTransactions) Protocol() domain.Protocol      { return domain.ProtocolRelay }
func (*RelayTransactionHashes) Protocol() domain.Protocol { return domain.ProtocolRelay }
func (*GetRelayTransactions) Protocol() domain.Protocol   { return domain.ProtocolRelay }
func (*GetHeaders) Protocol() domain.Protocol             { return domain.ProtocolSync }
func (*SendHeaders) Protocol() domain.Protocol            { return domain.ProtocolSync }
func (*GetBlocks) Protocol() domain.Protocol              { return domain.ProtocolSync }
func (*SendBlock) Protocol() domain.Protocol              { return domain.ProtocolSync }

func (*CompactBlock) Code() uint64           { return CompactBlockCode }
func (*RelayTransactions) Code() uint64      { return RelayTransactionsCode }
func (*RelayTransactionHashes) Code() uint64 { return RelayTransactionHashesCode }
func (*GetRelayTransactions) Code() uint64   { return GetRelayTransactionsCode }
func (*GetHeaders) Code() uint64             { return GetHeadersCode }
func (*SendHeaders) Code() uint64            { return SendHeadersCode }
func (*GetBlocks) Code() uint64              { return GetBlocksCode }
func (*SendBlock) Code() uint64              { return SendBlockCode }
