package wire

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/fd1az/chainprobe/business/gossip/domain"
	"github.com/fd1az/chainprobe/internal/apperror"
)

// newMessage returns an empty message for (protocol, code), or nil.
func newMessage(protocol domain.Protocol, code uint64) Message {
	switch protocol {
	case domain.ProtocolRelay:
		switch code {
		case CompactBlockCode:
			return new(CompactBlock)
		case RelayTransactionsCode:
			return new(RelayTransactions)
		case RelayTransactionHashesCode:
			return new(RelayTransactionHashes)
		case GetRelayTransactionsCode:
			return new(GetRelayTransactions)
		}
	case domain.ProtocolSync:
		switch code {
		case GetHeadersCode:
			return new(GetHeaders)
		case SendHeadersCode:
			return new(SendHeaders)
		case GetBlocksCode:
			return new(GetBlocks)
		case SendBlockCode:
			return new(SendBlock)
		}
	}
	return nil
}

// Decode parses payload as the message identified by (protocol, code).
func Decode(protocol domain.Protocol, code uint64, payload []byte) (Message, error) {
	msg := newMessage(protocol, code)
	if msg == nil {
		return nil, apperror.New(apperror.CodeGossipUnknownMessage,
			apperror.WithContextf("%s code 0x%02x", protocol, code))
	}
	if err := rlp.DecodeBytes(payload, msg); err != nil {
		return nil, apperror.New(apperror.CodeGossipDecodeFailed,
			apperror.WithContextf("%s %T", protocol, msg),
			apperror.WithCause(err))
	}
	if err := validate(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Encode serialises msg.
func Encode(msg Message) ([]byte, error) {
	data, err := rlp.EncodeToBytes(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", msg, err)
	}
	return data, nil
}

// validate rejects messages that decode but cannot yield identity hashes.
func validate(msg Message) error {
	invalid := func(what string) error {
		return apperror.New(apperror.CodeGossipDecodeFailed,
			apperror.WithContextf("%T: %s", msg, what))
	}

	switch m := msg.(type) {
	case *CompactBlock:
		if m.Header == nil || m.Header.Number == nil || m.Header.Difficulty == nil {
			return invalid("missing header")
		}
	case *RelayTransactions:
		for _, tx := range m.Transactions {
			if tx.Tx == nil {
				return invalid("missing transaction")
			}
		}
	case *SendBlock:
		if m.Block == nil {
			return invalid("missing block")
		}
	}
	return nil
}
