// Package reactor is the TCP acceptor and per-connection I/O loop that
// drives an httpcore.Connection end to end: net.Listen plus one goroutine
// per accepted connection, each feeding its own input buffer.Buffer to the
// connection's current sink and draining its output buffer.Buffer back to
// the socket. It is the Go-idiomatic reading of the teacher's
// startServer/handleConnection: the blocking net.Conn.Read already parks
// the goroutine without spinning, so there is no "would block"/yield
// machinery to translate from the original's non-blocking socket loop.
package reactor

import (
	"log/slog"
	"net"

	"net11/internal/buffer"
	"net11/internal/httpcore"
)

const (
	defaultInputCapacity  = 16 * 1024
	defaultOutputCapacity = 16 * 1024
)

// Reactor accepts TCP connections on a listener and spins up a Router-
// driven httpcore.Connection for each one.
type Reactor struct {
	Router func(*httpcore.Connection) httpcore.Action
	Log    *slog.Logger

	InputCapacity  int
	OutputCapacity int

	listener net.Listener
}

// New constructs a Reactor with the given request router. Pass nil for
// logger to use slog.Default().
func New(router func(*httpcore.Connection) httpcore.Action, logger *slog.Logger) *Reactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reactor{
		Router:         router,
		Log:            logger,
		InputCapacity:  defaultInputCapacity,
		OutputCapacity: defaultOutputCapacity,
	}
}

// ListenAndServe binds addr and serves accepted connections until Close is
// called or Accept returns an error. It blocks the calling goroutine.
func (r *Reactor) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return r.Serve(ln)
}

// Serve accepts connections from ln until it is closed, handing each one
// to its own goroutine.
func (r *Reactor) Serve(ln net.Listener) error {
	r.listener = ln
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go r.handle(conn)
	}
}

// Addr returns the listener's bound address; valid only after Serve or
// ListenAndServe has started accepting.
func (r *Reactor) Addr() net.Addr {
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Close stops accepting new connections. In-flight connections run to
// completion on their own.
func (r *Reactor) Close() error {
	if r.listener == nil {
		return nil
	}
	return r.listener.Close()
}

// handle runs one accepted connection's full lifetime: read -> dispatch ->
// queue response -> write, until the connection's sink or the socket
// itself says to stop.
func (r *Reactor) handle(netConn net.Conn) {
	defer netConn.Close()

	conn := httpcore.NewConnection(r.Router, r.Log)
	in := buffer.NewOwned(r.InputCapacity)
	out := buffer.NewOwned(r.OutputCapacity)

	r.Log.Debug("connection accepted", "conn_id", conn.ID, "remote", netConn.RemoteAddr())

	readBuf := make([]byte, r.InputCapacity)

	for {
		if !r.drainSink(conn, in) {
			r.flushOutput(netConn, conn, out)
			return
		}
		if !r.flushOutput(netConn, conn, out) {
			return
		}
		if conn.CurrentSink == nil && !conn.HasPendingOutput() && out.Usage() == 0 {
			return
		}

		n, err := netConn.Read(readBuf)
		if n > 0 {
			room := in.Compact()
			if room < n {
				// The caller-configured capacity was too small for one
				// read; grow is not supported (spec.md's buffers are
				// fixed-capacity), so take what fits and let the sink
				// drain before the next read picks up the rest.
				n = room
			}
			copy(in.ToProduce()[:n], readBuf[:n])
			in.Produced(n)
		}
		if err != nil {
			r.drainSink(conn, in)
			r.flushOutput(netConn, conn, out)
			return
		}
	}
}

// drainSink feeds in to conn's current sink until it either needs more
// bytes (in.Usage()==0) or the sink chain terminates (returns false, or
// becomes nil with no bytes left to process).
func (r *Reactor) drainSink(conn *httpcore.Connection, in *buffer.Buffer) bool {
	for in.Usage() > 0 {
		sink := conn.CurrentSink
		if sink == nil {
			return false
		}
		before := in.Usage()
		if !sink.Drain(in) {
			return false
		}
		if in.Usage() == before && conn.CurrentSink == sink {
			break
		}
	}
	return true
}

// flushOutput drains conn's queued producers into out and writes what
// accumulates to netConn, repeating until both the producer queue and out
// are empty. Returns false on a write error (connection should be torn
// down).
func (r *Reactor) flushOutput(netConn net.Conn, conn *httpcore.Connection, out *buffer.Buffer) bool {
	for {
		out.Compact()
		conn.DrainProducers(out)
		if out.Usage() == 0 {
			return true
		}
		n, err := netConn.Write(out.ToConsume())
		if n > 0 {
			out.Consumed(n)
		}
		if err != nil {
			return false
		}
	}
}
