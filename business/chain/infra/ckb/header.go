// Package ckb provides the Nervos CKB header stream and header source:
// the new_tip_header WebSocket topic and the get_header/get_fork_block
// JSON-RPC methods.
package ckb

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/fd1az/chainprobe/business/chain/domain"
	"github.com/fd1az/chainprobe/internal/apperror"
)

// jsonHeader is the subset of the CKB HeaderView the tracker needs.
// Numbers are hex quantities; timestamp is in milliseconds.
type jsonHeader struct {
	Hash       *common.Hash    `json:"hash"`
	ParentHash *common.Hash    `json:"parent_hash"`
	Number     *hexutil.Uint64 `json:"number"`
	Timestamp  *hexutil.Uint64 `json:"timestamp"`
}

func (h jsonHeader) toDomain() (*domain.Header, error) {
	if h.Hash == nil || h.ParentHash == nil || h.Number == nil || h.Timestamp == nil {
		return nil, apperror.New(apperror.CodeChainInvalidHeader,
			apperror.WithContext("missing hash, parent_hash, number or timestamp"))
	}
	return &domain.Header{
		Hash:       *h.Hash,
		ParentHash: *h.ParentHash,
		Number:     uint64(*h.Number),
		Timestamp:  time.UnixMilli(int64(*h.Timestamp)).UTC(),
	}, nil
}

// decodeHeader parses a HeaderView. CKB delivers subscription payloads as
// a JSON-encoded string, so a quoted document is unwrapped first.
func decodeHeader(raw json.RawMessage) (*domain.Header, error) {
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, apperror.New(apperror.CodeChainInvalidHeader, apperror.WithCause(err))
		}
		raw = json.RawMessage(inner)
	}

	var h jsonHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, apperror.New(apperror.CodeChainInvalidHeader, apperror.WithCause(err))
	}
	return h.toDomain()
}
