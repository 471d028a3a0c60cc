// Package app contains the chain tracker and its port definitions.
package app

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/chainprobe/business/chain/domain"
)

// HeaderSource resolves historical headers by hash. Both methods return
// domain.ErrNotFound when the node does not know the hash.
type HeaderSource interface {
	// HeaderByHash looks up a header on the node's canonical index.
	HeaderByHash(ctx context.Context, hash common.Hash) (*domain.Header, error)

	// BlockByHash looks up a block, including side-branch blocks the
	// canonical index no longer points at.
	BlockByHash(ctx context.Context, hash common.Hash) (*domain.Header, error)
}

// HeaderStream produces an ordered stream of new tip headers.
type HeaderStream interface {
	Subscribe(ctx context.Context) (Subscription, error)
	State() domain.ConnectionState
}

// Subscription is a live header stream. Err delivers at most one error,
// after which no more headers arrive.
type Subscription interface {
	Headers() <-chan *domain.Header
	Err() <-chan error
	Unsubscribe()
}
