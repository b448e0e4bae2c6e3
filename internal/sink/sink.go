// Package sink implements the core's pluggable byte-level consumers: the
// Sink interface itself plus the two general-purpose sinks (line and
// header) the HTTP connection state machine is built from.
package sink

import "net11/internal/buffer"

// Sink is a stateful byte consumer. Drain is handed whatever bytes have
// arrived and must consume as much as it can make progress on, returning
// false to terminate the owning connection. A sink may return with bytes
// still in buf after it completes a unit (a line, a header block) and
// hands over to the next sink; the caller passes the remaining bytes to
// whichever sink is current.
type Sink interface {
	Drain(buf *buffer.Buffer) bool
}

// Func adapts a plain function to the Sink interface.
type Func func(buf *buffer.Buffer) bool

func (f Func) Drain(buf *buffer.Buffer) bool { return f(buf) }
