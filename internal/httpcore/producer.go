package httpcore

import "net11/internal/buffer"

// Producer is a pullable byte generator: it writes as much as fits in
// buf's DirectAvail() and returns true to be kept on the connection's
// output queue, or false once it has nothing further to write. A
// producer must make progress or return without writing, to avoid the
// reactor spinning on it.
type Producer func(buf *buffer.Buffer) bool

// ByteProducer returns a Producer that drains a fixed byte slice into the
// output buffer across as many calls as it takes, translated from
// original_source/net11/util.hpp's make_data_producer template.
func ByteProducer(data []byte) Producer {
	off := 0
	return func(buf *buffer.Buffer) bool {
		left := len(data) - off
		room := buf.Compact()
		toCopy := left
		if room < toCopy {
			toCopy = room
		}
		dst := buf.ToProduce()
		copy(dst[:toCopy], data[off:off+toCopy])
		buf.Produced(toCopy)
		off += toCopy
		return off != len(data)
	}
}
