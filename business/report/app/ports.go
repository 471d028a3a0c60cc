// Package app implements the metric event bus between producers and sinks.
package app

import (
	"context"

	"github.com/fd1az/chainprobe/business/report/domain"
)

// Emitter accepts events from producers. Emit blocks while the sink is
// backed up and only fails when the event can no longer be delivered.
type Emitter interface {
	Emit(ctx context.Context, ev domain.Event) error
}

// Writer is a sink for events. Write is called from a single goroutine,
// in emission order.
type Writer interface {
	Name() string
	Write(ctx context.Context, ev domain.Event) error
}
