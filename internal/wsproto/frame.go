// Package wsproto implements the RFC 6455 WebSocket wire format: the
// inbound frame decoder state machine (spec.md C10), the outbound frame
// encoder, and the upgrade handshake (C11). It is deliberately agnostic
// of the HTTP connection type it rides on top of; websocket.Session wires
// it to an actual connection.
package wsproto

import (
	"encoding/binary"
	"errors"

	"net11/internal/buffer"
)

// Opcodes, per RFC 6455 section 5.2.
const (
	OpContinuation = 0x0
	OpText         = 0x1
	OpBinary       = 0x2
	OpClose        = 0x8
	OpPing         = 0x9
	OpPong         = 0xA
)

// Sentinel errors a Decoder's Drain records when it fails, reported by
// Err; any of them is terminal for the frame sink, matching the "a sink
// returning false is terminal" rule.
var (
	ErrReservedBitsSet        = errors.New("wsproto: reserved bits set")
	ErrControlFrameTooBig     = errors.New("wsproto: control frame payload exceeds 125 bytes")
	ErrControlFrameFragmented = errors.New("wsproto: control frame must not be fragmented")
	ErrBadContinuation        = errors.New("wsproto: invalid continuation opcode sequence")
	ErrUnknownControlOp       = errors.New("wsproto: unknown control opcode")
	ErrOversizedMessage       = errors.New("wsproto: message exceeds configured limit")
)

type decodeState int

const (
	stateFirstByte decodeState = iota
	stateSizeByte
	stateSizeExtra
	stateMaskBytes
	stateBodyBytes
)

// Callbacks is the application-facing seam a Decoder drives: PacketStart
// once a frame header is fully parsed, PacketData for each payload byte
// (after unmasking), and PacketEnd when the frame's payload is fully
// delivered. Control frames (ping/pong/close) are handled entirely inside
// Decoder and never reach these callbacks.
type Callbacks struct {
	PacketStart func(fin bool, opcode byte, size uint64) bool
	PacketData  func(b byte)
	PacketEnd   func(fin bool, opcode byte) bool

	// Send is used by the decoder to answer control frames (pong replies,
	// close echoes) without the caller needing to plumb frame assembly
	// back in. It must encode and enqueue an outbound frame the same way
	// EncodeFrame/Send would.
	Send func(opcode byte, payload []byte) bool
}

const maxControlPayload = 125

// Decoder is the inbound frame state machine: firstbyte -> sizebyte ->
// sizeextra? -> maskbytes? -> bodybytes -> firstbyte, translated from
// original_source/net11/http.hpp's websocket_sink.
type Decoder struct {
	cb Callbacks

	state    decodeState
	info     byte
	count    uint64
	size     uint64
	wantExt  int // remaining size-extension bytes to read (2 or 8)
	wantMask bool
	mask     uint32

	control    []byte // accumulator for control-frame payloads (<=125 bytes)
	inMessage  bool   // true once PacketStart has fired for the in-progress frame
	fragmented int8   // -1 = idle, otherwise the opcode that started the message (mirrors §3's input_type)

	err error
}

// NewDecoder constructs a Decoder driving the given callbacks.
func NewDecoder(cb Callbacks) *Decoder {
	return &Decoder{cb: cb, fragmented: -1}
}

// Err returns the specific protocol fault that made Drain return false. A
// PacketStart rejection is recorded as ErrOversizedMessage. Err is nil if
// Drain has never failed, and also after Drain returned false for a close
// frame or because PacketEnd or Send returned false, none of which carries
// a wsproto sentinel.
func (d *Decoder) Err() error { return d.err }

func (d *Decoder) advance() bool {
	d.count = 0
	if d.state == stateSizeByte || d.state == stateSizeExtra {
		if d.wantMask {
			d.state = stateMaskBytes
			return true
		}
	}
	return d.enterBody()
}

// enterBody starts the body-bytes state for the frame whose header has
// just been fully parsed. A zero-length payload (e.g. a bare close or
// ping frame) never visits stateBodyBytes's per-byte branch, since no
// byte ever arrives to trigger it there, so it is finished immediately.
func (d *Decoder) enterBody() bool {
	d.state = stateBodyBytes
	d.count = 0
	if !d.beginFrame() {
		return false
	}
	if d.size == 0 {
		if !d.finishFrame() {
			return false
		}
		d.state = stateFirstByte
	}
	return true
}

func (d *Decoder) beginFrame() bool {
	fin := d.info&0x80 != 0
	if d.info&0x70 != 0 {
		d.err = ErrReservedBitsSet
		return false
	}
	opcode := d.info & 0x0F

	if opcode >= 0x8 { // control frame
		if d.size > maxControlPayload {
			d.err = ErrControlFrameTooBig
			return false
		}
		if !fin {
			d.err = ErrControlFrameFragmented
			return false
		}
		d.control = d.control[:0]
		d.inMessage = false
		return true
	}

	if opcode == OpContinuation {
		if d.fragmented < 0 {
			d.err = ErrBadContinuation
			return false
		}
	} else {
		if d.fragmented >= 0 {
			d.err = ErrBadContinuation
			return false
		}
		d.fragmented = int8(opcode)
	}
	d.inMessage = true
	if d.cb.PacketStart == nil || d.cb.PacketStart(fin, opcode, d.size) {
		return true
	}
	// The only PacketStart implementation in this module rejects on
	// exceeding a configured message-size limit; no other fault channel
	// exists for this callback, so that is the error it carries.
	d.err = ErrOversizedMessage
	return false
}

func (d *Decoder) finishFrame() bool {
	fin := d.info&0x80 != 0
	opcode := d.info & 0x0F

	if opcode >= 0x8 {
		return d.finishControl(opcode)
	}

	ok := true
	if d.cb.PacketEnd != nil {
		ok = d.cb.PacketEnd(fin, byte(d.fragmented))
	}
	if fin {
		d.fragmented = -1
	}
	return ok
}

func (d *Decoder) finishControl(opcode byte) bool {
	switch opcode {
	case OpClose:
		if d.cb.Send != nil {
			d.cb.Send(OpClose, nil)
		}
		return false
	case OpPing:
		if d.cb.Send != nil {
			return d.cb.Send(OpPong, append([]byte(nil), d.control...))
		}
		return true
	case OpPong:
		return true
	default:
		d.err = ErrUnknownControlOp
		return false
	}
}

// Drain consumes as many whole or partial frames as buf holds, invoking
// callbacks for each. Returns false (terminal, per the sink contract) on
// any protocol fault.
func (d *Decoder) Drain(buf *buffer.Buffer) bool {
	for buf.Usage() > 0 {
		switch d.state {
		case stateFirstByte:
			d.info = buf.Consume()
			d.state = stateSizeByte
			d.mask = 0
			d.count = 0
			continue
		case stateSizeByte:
			b := buf.Consume()
			d.wantMask = b&0x80 != 0
			n := b & 0x7F
			switch {
			case n < 126:
				d.size = uint64(n)
				if !d.advance() {
					return false
				}
			case n == 126:
				d.size = 0
				d.wantExt = 2
				d.state = stateSizeExtra
			default:
				d.size = 0
				d.wantExt = 8
				d.state = stateSizeExtra
			}
			continue
		case stateSizeExtra:
			d.size = (d.size << 8) | uint64(buf.Consume())
			d.count++
			if int(d.count) == d.wantExt {
				if !d.advance() {
					return false
				}
			}
			continue
		case stateMaskBytes:
			d.mask = (d.mask << 8) | uint32(buf.Consume())
			d.count++
			if d.count == 4 {
				if !d.enterBody() {
					return false
				}
			}
			continue
		case stateBodyBytes:
			c := buf.Consume()
			shift := uint(8 * (3 - (d.count & 3)))
			unmasked := c ^ byte(d.mask>>shift)
			opcode := d.info & 0x0F
			if opcode >= 0x8 {
				d.control = append(d.control, unmasked)
			} else if d.cb.PacketData != nil {
				d.cb.PacketData(unmasked)
			}
			d.count++
			if d.count == d.size {
				if !d.finishFrame() {
					return false
				}
				d.state = stateFirstByte
			}
			continue
		}
	}
	return true
}

// EncodeFrame assembles a single server-to-client frame. Per spec.md §4.7
// the server never masks outbound frames.
func EncodeFrame(opcode byte, payload []byte, fin bool) []byte {
	first := byte(0)
	if fin {
		first = 0x80
	}
	first |= opcode & 0x0F

	n := len(payload)
	switch {
	case n < 126:
		out := make([]byte, 2+n)
		out[0] = first
		out[1] = byte(n)
		copy(out[2:], payload)
		return out
	case n <= 0xFFFF:
		out := make([]byte, 4+n)
		out[0] = first
		out[1] = 126
		binary.BigEndian.PutUint16(out[2:], uint16(n))
		copy(out[4:], payload)
		return out
	default:
		out := make([]byte, 10+n)
		out[0] = first
		out[1] = 127
		binary.BigEndian.PutUint64(out[2:], uint64(n))
		copy(out[10:], payload)
		return out
	}
}
