package httpcore

import "net11/internal/buffer"

type chunkState int

// The states of RFC 7230 §4.1 chunked-body decoding: reading the hex
// chunk-size, an optional chunk-extension, the size line's terminating
// LF, the chunk-data itself, the CRLF following chunk-data, the
// terminating zero-size chunk's trailer section, and done.
const (
	chunkStateSize chunkState = iota
	chunkStateSizeExt
	chunkStateSizeLF
	chunkStateData
	chunkStateDataCR
	chunkStateDataLF
	chunkStateTrailer
	chunkStateDone
)

// chunkedDecoder drains an RFC 7230 chunked request body, handing each
// chunk's bytes to the connection's installed consume function as view
// buffers and the trailer section to the connection's trailer header
// sink, matching spec.md §4.5. Per the Open Questions resolution in
// DESIGN.md, an oversized chunk-size line is left to overflow uint64
// silently rather than being bounds-checked (the original never checks
// this either).
type chunkedDecoder struct {
	conn  *Connection
	state chunkState
	size  uint64
	left  uint64
}

func (c *chunkedDecoder) reset() {
	c.state = chunkStateSize
	c.size = 0
	c.left = 0
}

func hexVal(b byte) (int, bool) {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0'), true
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10, true
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10, true
	default:
		return 0, false
	}
}

// Drain implements sink.Sink.
func (c *chunkedDecoder) Drain(buf *buffer.Buffer) bool {
	for buf.Usage() > 0 {
		switch c.state {
		case chunkStateSize:
			b := buf.Consume()
			if v, ok := hexVal(b); ok {
				c.size = c.size*16 + uint64(v)
				continue
			}
			switch b {
			case ';':
				c.state = chunkStateSizeExt
			case '\r':
				c.state = chunkStateSizeLF
			default:
				return false
			}

		case chunkStateSizeExt:
			b := buf.Consume()
			if b == '\r' {
				c.state = chunkStateSizeLF
			}
			// any other byte is extension text; ignored per spec.md §1
			// (chunk extensions are not interpreted).

		case chunkStateSizeLF:
			if buf.Consume() != '\n' {
				return false
			}
			if c.size == 0 {
				c.conn.trailerSink.Reset()
				c.state = chunkStateTrailer
			} else {
				c.left = c.size
				c.state = chunkStateData
			}

		case chunkStateData:
			avail := buf.Usage()
			take := avail
			if uint64(take) > c.left {
				take = int(c.left)
			}
			view := buffer.NewView(buf.ToConsume()[:take])
			buf.Consumed(take)
			c.left -= uint64(take)
			if !c.conn.callConsume(view) {
				return false
			}
			if c.left == 0 {
				c.state = chunkStateDataCR
			}

		case chunkStateDataCR:
			if buf.Consume() != '\r' {
				return false
			}
			c.state = chunkStateDataLF

		case chunkStateDataLF:
			if buf.Consume() != '\n' {
				return false
			}
			c.size = 0
			c.state = chunkStateSize

		case chunkStateTrailer:
			if !c.conn.trailerSink.Drain(buf) {
				return false
			}
			if c.conn.CurrentSink != c {
				// onTrailerDone already re-pointed CurrentSink away from
				// this decoder; stop looping on it.
				c.state = chunkStateDone
				return true
			}

		case chunkStateDone:
			return true
		}
	}
	return true
}
