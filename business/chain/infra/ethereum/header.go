// Package ethereum provides the Ethereum-family header stream and header
// source built on go-ethereum's ethclient.
package ethereum

import (
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/chainprobe/business/chain/domain"
)

const (
	tracerName = "github.com/fd1az/chainprobe/business/chain/infra/ethereum"
	meterName  = "github.com/fd1az/chainprobe/business/chain/infra/ethereum"
)

// toDomain converts an Ethereum header to a domain Header.
func toDomain(h *types.Header) *domain.Header {
	return &domain.Header{
		Hash:       h.Hash(),
		ParentHash: h.ParentHash,
		Number:     h.Number.Uint64(),
		Timestamp:  time.Unix(int64(h.Time), 0).UTC(),
	}
}
