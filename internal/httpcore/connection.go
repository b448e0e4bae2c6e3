// Package httpcore implements the HTTP/1.1 connection state machine
// (spec.md C6), response object (C7), and the sized/chunked body decoders
// (C8/C9): the request-line -> headers -> body -> response -> keep-alive
// pipeline, wired from the reusable sinks in internal/sink.
package httpcore

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"net11/internal/buffer"
	"net11/internal/sink"
)

const (
	maxRequestLineBytes = 4096
	maxHeaderBytes      = 128 * 1024
)

// ConsumeFunc is the one-shot continuation a consume Action installs for
// request body bytes: invoked repeatedly with view-buffer slices of body
// data, then exactly once with nil at end-of-body. It may return a
// Response, which is emitted if no response has been produced yet (the
// double-response guard in spec.md §4.4).
type ConsumeFunc func(view *buffer.Buffer) *Response

// Action is the router's return value: either a Response (produces
// status+headers+body immediately) or a ConsumeFunc (installs a body
// continuation and defers the response), matching spec.md's tagged
// "action" value. The zero Action (both nil) means "router declined";
// the connection synthesizes the default 404 in that case.
type Action struct {
	Response *Response
	Consume  ConsumeFunc
}

// Respond wraps a ready response as a router Action.
func Respond(r *Response) Action { return Action{Response: r} }

// ConsumeBody wraps a body continuation as a router Action, deferring the
// response until f returns one (on end-of-body or earlier).
func ConsumeBody(f ConsumeFunc) Action { return Action{Consume: f} }

func (a Action) isZero() bool { return a.Response == nil && a.Consume == nil }

// Connection is the per-request HTTP/1.1 state machine: request-line ->
// headers -> body (sized/chunked/none) -> response -> keep-alive. One
// Connection exists per accepted TCP connection; spec.md §3.
type Connection struct {
	ID     string
	Router func(*Connection) Action
	Log    *slog.Logger

	// CurrentSink is the single active byte consumer the reactor feeds
	// arriving bytes to. It may be re-pointed by any sink mid-drain (the
	// request-line sink, the header sink, a body decoder, or a
	// user-installed sink after a WebSocket upgrade). A nil CurrentSink
	// means "no further requests; close once the output drains."
	CurrentSink sink.Sink

	reqLineSink *sink.LineSink
	headerSink  *sink.HeaderSink
	sizedSink   *sizedDecoder
	chunkedSink *chunkedDecoder
	trailerSink *sink.HeaderSink

	method  string
	target  string
	version string
	headers map[string]string

	produced bool
	consume  ConsumeFunc

	producers []Producer
}

// NewConnection constructs a Connection wired to call router once per
// request and to log through logger (pass slog.Default() if nil).
func NewConnection(router func(*Connection) Action, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		ID:      uuid.New().String(),
		Router:  router,
		Log:     logger,
		headers: map[string]string{},
	}
	c.reqLineSink = sink.NewLineSink("\r\n", maxRequestLineBytes, c.onRequestLine)
	c.headerSink = sink.NewHeaderSink(maxHeaderBytes, toLowerASCII, c.onHeader, c.onHeadersDone)
	c.sizedSink = &sizedDecoder{conn: c}
	c.chunkedSink = &chunkedDecoder{conn: c}
	c.trailerSink = sink.NewHeaderSink(maxHeaderBytes, toLowerASCII, c.onHeader, c.onTrailerDone)
	c.CurrentSink = c.reqLineSink
	return c
}

func toLowerASCII(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// Method returns the request's HTTP method (empty until a request line has
// been parsed).
func (c *Connection) Method() string { return c.method }

// URL returns the request-target as sent on the wire (percent-decoding is
// an explicit spec.md §1 non-goal).
func (c *Connection) URL() string { return c.target }

// Version returns the request's HTTP version token, e.g. "HTTP/1.1".
func (c *Connection) Version() string { return c.version }

// Header returns the value of header k (case-insensitive), or "" if
// absent, mirroring original_source/net11/http.hpp's connection::header.
func (c *Connection) Header(k string) string {
	return c.headers[strings.ToLower(k)]
}

// LowerHeader returns the lower-cased value of header k, mirroring
// original_source/net11/http.hpp's connection::lowerheader.
func (c *Connection) LowerHeader(k string) string {
	return strings.ToLower(c.Header(k))
}

// HasHeader reports whether header k was present on the request,
// mirroring original_source/net11/http.hpp's connection::has_header.
func (c *Connection) HasHeader(k string) bool {
	_, ok := c.headers[strings.ToLower(k)]
	return ok
}

// HasHeaders reports whether every header in ks was present, mirroring
// original_source/net11/http.hpp's variadic connection::has_headers.
func (c *Connection) HasHeaders(ks ...string) bool {
	for _, k := range ks {
		if !c.HasHeader(k) {
			return false
		}
	}
	return true
}

// appendProducer queues a producer on the connection's output FIFO; the
// reactor drains producers in this order.
func (c *Connection) appendProducer(p Producer) {
	c.producers = append(c.producers, p)
}

// AppendProducer is the exported form of appendProducer, for collaborators
// outside this package (the websocket façade's deferred sends) that need
// to queue output without going through a Response.
func (c *Connection) AppendProducer(p Producer) {
	c.appendProducer(p)
}

// HasPendingOutput reports whether any producer is queued.
func (c *Connection) HasPendingOutput() bool { return len(c.producers) > 0 }

// DrainProducers runs the front of the producer queue into buf, in order,
// removing each producer once it reports it has nothing further to write.
// It stops once the front producer makes no progress because buf is full
// (the caller should write buf out and call again) or the queue empties,
// matching
// original_source/net11/tcp.hpp's work_conn output loop.
func (c *Connection) DrainProducers(buf *buffer.Buffer) {
	for len(c.producers) > 0 {
		before := buf.TotalAvail()
		if c.producers[0](buf) {
			if buf.TotalAvail() == before {
				return // no progress this round; wait for a write to free room
			}
			continue
		}
		c.producers = c.producers[1:]
	}
}

// onRequestLine splits the request line into up to three whitespace-
// separated tokens (method, target, version), requiring at least method
// and target, matching original_source/net11/http.hpp's request-line
// lambda byte for byte.
func (c *Connection) onRequestLine(line string) bool {
	var tokens [3]strings.Builder
	outIdx := 0
	inWhite := false
	started := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if isSpaceByte(ch) {
			inWhite = true
			continue
		}
		if inWhite && started && outIdx < 2 {
			outIdx++
		}
		tokens[outIdx].WriteByte(ch)
		inWhite = false
		started = true
	}
	c.method = tokens[0].String()
	c.target = tokens[1].String()
	c.version = tokens[2].String()
	if c.method == "" || c.target == "" {
		return false
	}
	c.produced = false
	for k := range c.headers {
		delete(c.headers, k)
	}
	c.headerSink.Reset()
	c.CurrentSink = c.headerSink
	return true
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\v' || c == '\f'
}

func (c *Connection) onHeader(k, v string) bool {
	c.headers[k] = v
	return true
}

// onHeadersDone branches on Transfer-Encoding/Content-Length to pick the
// body decoder, then invokes the router, matching spec.md §4.4 item 2.
func (c *Connection) onHeadersDone(err error) bool {
	if err != nil {
		c.Log.Debug("malformed header block", "conn_id", c.ID, "error", err)
		return false
	}

	te := strings.ToLower(strings.TrimSpace(c.headers["transfer-encoding"]))
	cl := strings.TrimSpace(c.headers["content-length"])

	// Reset early, as the router/response may want to hijack the sink
	// (the WebSocket upgrade path does exactly this).
	c.CurrentSink = c.reqLineSink

	switch {
	case te != "" && te != "identity":
		c.chunkedSink.reset()
		c.CurrentSink = c.chunkedSink
	case cl != "":
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			n = 0
		}
		c.sizedSink.reset(n)
		c.CurrentSink = c.sizedSink
	default:
		c.CurrentSink = c.nextReqSink()
	}

	action := c.Router(c)
	ok := c.dispatchAction(action)
	if ok && c.CurrentSink == c.sizedSink {
		// A Content-Length: 0 body has no bytes left in the input buffer
		// to trigger sizedDecoder.Drain, so finish it here instead of
		// waiting for a Drain call that will never come.
		ok = c.sizedSink.primeIfEmpty()
	}
	return ok
}

func (c *Connection) dispatchAction(action Action) bool {
	if action.isZero() {
		msg := "Error 404, " + c.target + " not found"
		return c.Produce(NewTextResponse(404, msg))
	}
	if action.Consume != nil {
		c.consume = action.Consume
		return true
	}
	return c.Produce(action.Response)
}

// Produce emits r, guarded by the double-response flag (spec.md §4.4's
// "double-response guard"): once a response has been produced for the
// in-flight request, subsequent calls are no-ops returning true. This
// protects against a consume function that synthesizes a response after
// the router already produced one.
func (c *Connection) Produce(r *Response) bool {
	if c.produced {
		return true
	}
	c.produced = true
	return r.Produce(c)
}

// callConsume invokes the installed consume function, if any, with view
// (nil at end-of-body), producing any resulting response.
func (c *Connection) callConsume(view *buffer.Buffer) bool {
	if c.consume == nil {
		return true
	}
	r := c.consume(view)
	if view == nil {
		c.consume = nil
	}
	if r != nil {
		return c.Produce(r)
	}
	return true
}

// onTrailerDone fires once the chunked body's trailer section (possibly
// empty) has been fully parsed: it re-arms the connection for the next
// request and signals end-of-body to the installed consume function,
// matching spec.md §4.5's "the final zero-size chunk's trailers complete
// the body".
func (c *Connection) onTrailerDone(err error) bool {
	if err != nil {
		return false
	}
	c.CurrentSink = c.nextReqSink()
	return c.callConsume(nil)
}

// nextReqSink returns the request-line sink if the just-completed request
// was HTTP/1.1 (ready for another request on the same connection), or nil
// otherwise (close after the response drains), per spec.md §3/§9.
func (c *Connection) nextReqSink() sink.Sink {
	if c.version == "HTTP/1.1" {
		return c.reqLineSink
	}
	return nil
}
