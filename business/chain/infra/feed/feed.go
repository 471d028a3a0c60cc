// Package feed provides the channel-backed app.Subscription shared by the
// header stream backends.
package feed

import (
	"sync"

	"github.com/fd1az/chainprobe/business/chain/domain"
)

// Feed implements app.Subscription. Producers call Deliver and Fail;
// the consumer reads Headers and Err.
type Feed struct {
	headers chan *domain.Header
	errc    chan error
	quit    chan struct{}
	once    sync.Once
	onClose func()
}

// New creates a feed with the given header buffer. onClose runs once, on
// the first Unsubscribe.
func New(buffer int, onClose func()) *Feed {
	if onClose == nil {
		onClose = func() {}
	}
	return &Feed{
		headers: make(chan *domain.Header, buffer),
		errc:    make(chan error, 1),
		quit:    make(chan struct{}),
		onClose: onClose,
	}
}

func (f *Feed) Headers() <-chan *domain.Header { return f.headers }
func (f *Feed) Err() <-chan error              { return f.errc }

// Done is closed by Unsubscribe.
func (f *Feed) Done() <-chan struct{} { return f.quit }

// Unsubscribe stops delivery and releases the producer.
func (f *Feed) Unsubscribe() {
	f.once.Do(func() {
		close(f.quit)
		f.onClose()
	})
}

// Deliver blocks until h is accepted or the feed is unsubscribed. It
// reports whether h was accepted.
func (f *Feed) Deliver(h *domain.Header) bool {
	select {
	case f.headers <- h:
		return true
	case <-f.quit:
		return false
	}
}

// Fail records the terminal error. Only the first call has effect.
func (f *Feed) Fail(err error) {
	select {
	case f.errc <- err:
	default:
	}
}
