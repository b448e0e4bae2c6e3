package httpcore

import "net11/internal/buffer"

// sizedDecoder drains exactly n bytes of request body (Content-Length
// framing per spec.md §4.6), handing each arriving chunk to the
// connection's installed consume function as a view buffer, then
// signalling end-of-body with a nil view once n bytes have been consumed.
type sizedDecoder struct {
	conn      *Connection
	remaining int
}

func (s *sizedDecoder) reset(n int) {
	s.remaining = n
}

// primeIfEmpty finishes a zero-length body (Content-Length: 0) the moment
// it is selected, without waiting for a Drain call that may never come:
// a request with no body bytes leaves nothing in the input buffer for the
// reactor to hand the sink once the header block has been consumed.
func (s *sizedDecoder) primeIfEmpty() bool {
	if s.remaining != 0 {
		return true
	}
	s.conn.CurrentSink = s.conn.nextReqSink()
	return s.conn.callConsume(nil)
}

// Drain implements sink.Sink. It never retains bytes across calls: each
// invocation consumes as much of the remaining body as buf currently
// holds and forwards exactly that slice, matching the view-buffer
// contract used throughout spec.md §4 (no body bytes are copied).
func (s *sizedDecoder) Drain(buf *buffer.Buffer) bool {
	if s.remaining == 0 {
		return s.primeIfEmpty()
	}

	avail := buf.Usage()
	if avail == 0 {
		return true
	}
	take := avail
	if take > s.remaining {
		take = s.remaining
	}

	view := buffer.NewView(buf.ToConsume()[:take])
	buf.Consumed(take)
	s.remaining -= take

	if !s.conn.callConsume(view) {
		return false
	}
	if s.remaining == 0 {
		s.conn.CurrentSink = s.conn.nextReqSink()
		return s.conn.callConsume(nil)
	}
	return true
}
