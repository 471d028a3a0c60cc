// Package di contains dependency injection tokens for the chain context.
package di

import (
	"github.com/fd1az/chainprobe/business/chain/app"
	"github.com/fd1az/chainprobe/internal/di"
)

// Public service tokens - exposed to other modules
var (
	ChainService = di.NewToken[*app.Service]("chain.ChainService")
)

// Private dependency tokens - internal to chain module
var (
	HeaderStream = di.NewToken[app.HeaderStream]("chain:headerStream")
	HeaderSource = di.NewToken[app.HeaderSource]("chain:headerSource")
	Tracker      = di.NewToken[*app.Tracker]("chain:tracker")
)

func GetChainService(c di.ServiceRegistry) *app.Service {
	return di.GetToken(c, ChainService)
}

func GetHeaderStream(c di.ServiceRegistry) app.HeaderStream {
	return di.GetToken(c, HeaderStream)
}

func GetHeaderSource(c di.ServiceRegistry) app.HeaderSource {
	return di.GetToken(c, HeaderSource)
}

func GetTracker(c di.ServiceRegistry) *app.Tracker {
	return di.GetToken(c, Tracker)
}
