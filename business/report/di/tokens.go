// Package di contains dependency injection tokens for the report context.
package di

import (
	"github.com/fd1az/chainprobe/business/report/app"
	"github.com/fd1az/chainprobe/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Emitter = di.NewToken[app.Emitter]("report.Emitter")
)

// Private dependency tokens - internal to report module
var (
	Bus = di.NewToken[*app.Bus]("report:bus")
)

// GetEmitter returns the event emitter shared by the producers.
func GetEmitter(c di.ServiceRegistry) app.Emitter {
	return di.GetToken(c, Emitter)
}

func GetBus(c di.ServiceRegistry) *app.Bus {
	return di.GetToken(c, Bus)
}
