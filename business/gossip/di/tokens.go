// Package di contains dependency injection tokens for the gossip context.
package di

import (
	"github.com/fd1az/chainprobe/business/gossip/app"
	"github.com/fd1az/chainprobe/internal/di"
)

// Public service tokens - exposed to other modules
var (
	GossipService = di.NewToken[*app.Service]("gossip.GossipService")
)

// Private dependency tokens - internal to gossip module
var (
	PeerTransport = di.NewToken[app.PeerTransport]("gossip:peerTransport")
	Probe         = di.NewToken[*app.Probe]("gossip:probe")
)

func GetGossipService(c di.ServiceRegistry) *app.Service {
	return di.GetToken(c, GossipService)
}

func GetPeerTransport(c di.ServiceRegistry) app.PeerTransport {
	return di.GetToken(c, PeerTransport)
}

func GetProbe(c di.ServiceRegistry) *app.Probe {
	return di.GetToken(c, Probe)
}
