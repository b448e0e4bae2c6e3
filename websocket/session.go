// Package websocket is the application-facing façade over internal/wsproto
// and internal/httpcore: Upgrade turns a matching HTTP request into a 101
// Switching Protocols response and installs a frame-level Session as the
// connection's current sink, matching original_source/net11/http.hpp's
// make_websocket + websocket_response.
package websocket

import (
	"sync/atomic"

	"net11/internal/buffer"
	"net11/internal/httpcore"
	"net11/internal/wsproto"
)

// Handler receives reassembled WebSocket messages (fin is always true by
// the time PacketEnd fires a complete message, since fragmentation is
// reassembled by Session before Handler ever sees it).
type Handler struct {
	// OnMessage is called once per complete message (text or binary),
	// with the opcode preserved so a handler can tell them apart.
	OnMessage func(sess *Session, opcode byte, payload []byte) bool

	// OnClose is called once, when the peer sends a close frame or the
	// frame stream faults. A TCP connection that drops without a close
	// frame does not call it.
	OnClose func(sess *Session)

	// MaxMessageBytes bounds the size of one reassembled message; 0 means
	// unbounded. Exceeding it terminates the connection, mirroring
	// spec.md §9's oversized-message fault.
	MaxMessageBytes uint64
}

// Session is the per-connection WebSocket endpoint a Handler interacts
// with: send a message, or test whether the underlying connection is
// still alive before a scheduler-deferred send (spec.md §9's "weak
// self-reference" pattern, rendered with sync/atomic since Go's GC has no
// weak_ptr equivalent).
type Session struct {
	decoder *wsproto.Decoder
	handler Handler

	connRef atomic.Pointer[httpcore.Connection]

	accum   []byte
	op      byte
	msgSize uint64
}

// Alive reports whether the session is still attached to its connection.
// The session detaches when a close frame arrives or the frame decoder
// faults; a TCP connection that drops without a close frame leaves the
// session attached.
func (s *Session) Alive() bool {
	return s.connRef.Load() != nil
}

// Send queues a single-frame (FIN=true) message of the given opcode. It is
// a no-op returning false once the session has detached (see Alive).
func (s *Session) Send(opcode byte, payload []byte) bool {
	conn := s.connRef.Load()
	if conn == nil {
		return false
	}
	return s.enqueue(conn, opcode, payload)
}

func (s *Session) enqueue(conn *httpcore.Connection, opcode byte, payload []byte) bool {
	frame := wsproto.EncodeFrame(opcode, payload, true)
	off := 0
	producer := func(buf *buffer.Buffer) bool {
		room := buf.Compact()
		left := len(frame) - off
		toCopy := left
		if room < toCopy {
			toCopy = room
		}
		dst := buf.ToProduce()
		copy(dst[:toCopy], frame[off:off+toCopy])
		buf.Produced(toCopy)
		off += toCopy
		return off != len(frame)
	}
	conn.AppendProducer(producer)
	return true
}

func (s *Session) detach() {
	if s.connRef.Swap(nil) == nil {
		return
	}
	if s.handler.OnClose != nil {
		s.handler.OnClose(s)
	}
}

// newSession builds a Session wired to conn, installing a wsproto.Decoder
// whose callbacks reassemble fragmented messages and forward complete
// ones to handler.OnMessage.
func newSession(conn *httpcore.Connection, handler Handler) *Session {
	sess := &Session{handler: handler}
	sess.connRef.Store(conn)

	sess.decoder = wsproto.NewDecoder(wsproto.Callbacks{
		PacketStart: func(fin bool, opcode byte, size uint64) bool {
			if opcode == wsproto.OpContinuation {
				sess.msgSize += size
			} else {
				sess.op = opcode
				sess.accum = sess.accum[:0]
				sess.msgSize = size
			}
			return handler.MaxMessageBytes == 0 || sess.msgSize <= handler.MaxMessageBytes
		},
		PacketData: func(b byte) {
			sess.accum = append(sess.accum, b)
		},
		PacketEnd: func(fin bool, opcode byte) bool {
			if !fin {
				return true
			}
			if handler.OnMessage == nil {
				return true
			}
			return handler.OnMessage(sess, sess.op, append([]byte(nil), sess.accum...))
		},
		Send: func(opcode byte, payload []byte) bool {
			c := sess.connRef.Load()
			if c == nil {
				return false
			}
			ok := sess.enqueue(c, opcode, payload)
			if opcode == wsproto.OpClose {
				sess.detach()
			}
			return ok
		},
	})

	return sess
}

// Upgrade validates the request on conn as an RFC 6455 handshake and, if
// valid, returns a 101 Switching Protocols Action that installs a frame
// Session as the connection's sink once the response is produced, mirroring
// original_source/net11/http.hpp's make_websocket/websocket_response. A nil
// Action.Response means the request did not present a valid WebSocket
// handshake; the caller should fall through to its next route.
func Upgrade(conn *httpcore.Connection, handler Handler) httpcore.Action {
	if !conn.HasHeaders("connection", "upgrade", "sec-websocket-version", "sec-websocket-key") {
		return httpcore.Action{}
	}
	h := wsproto.HandshakeHeaders{
		Connection:          conn.Header("connection"),
		Upgrade:             conn.Header("upgrade"),
		SecWebSocketVersion: conn.Header("sec-websocket-version"),
		SecWebSocketKey:     conn.Header("sec-websocket-key"),
	}
	if !wsproto.ValidateHandshake(h) {
		return httpcore.Action{}
	}

	sess := newSession(conn, handler)
	accept := wsproto.AcceptKey(h.SecWebSocketKey)

	resp := httpcore.NewEmptyResponse(101)
	resp.SetHeader("Upgrade", "websocket")
	resp.SetHeader("Connection", "Upgrade")
	resp.SetHeader("Sec-WebSocket-Accept", accept)
	resp.OnProduce(func(c *httpcore.Connection) {
		c.CurrentSink = sessionSink{sess}
	})

	return httpcore.Respond(resp)
}

// sessionSink adapts Session's decoder (plus close-detach bookkeeping) to
// the sink.Sink interface the connection's CurrentSink field expects.
type sessionSink struct {
	sess *Session
}

func (s sessionSink) Drain(buf *buffer.Buffer) bool {
	if !s.sess.decoder.Drain(buf) {
		if conn := s.sess.connRef.Load(); conn != nil {
			conn.Log.Debug("websocket frame fault", "conn_id", conn.ID, "error", s.sess.decoder.Err())
		}
		s.sess.detach()
		return false
	}
	return true
}
