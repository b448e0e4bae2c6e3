package wsproto

import (
	"testing"

	"net11/internal/buffer"
)

// maskedClientFrame builds a client->server frame (masked, per RFC 6455)
// the way a real browser would, for feeding into Decoder.
func maskedClientFrame(opcode byte, payload []byte, fin bool) []byte {
	maskKey := [4]byte{0x11, 0x22, 0x33, 0x44}
	masked := make([]byte, len(payload))
	for i, b := range payload {
		masked[i] = b ^ maskKey[i%4]
	}

	first := byte(0)
	if fin {
		first = 0x80
	}
	first |= opcode & 0x0F

	n := len(payload)
	var out []byte
	switch {
	case n < 126:
		out = append(out, first, byte(n)|0x80)
	case n <= 0xFFFF:
		out = append(out, first, 126|0x80, byte(n>>8), byte(n))
	default:
		out = append(out, first, 127|0x80)
		for shift := 56; shift >= 0; shift -= 8 {
			out = append(out, byte(n>>shift))
		}
	}
	out = append(out, maskKey[:]...)
	out = append(out, masked...)
	return out
}

func TestDecodeSingleTextFrame(t *testing.T) {
	var got []byte
	var endFin bool
	var endOp byte
	d := NewDecoder(Callbacks{
		PacketStart: func(fin bool, opcode byte, size uint64) bool { return true },
		PacketData:  func(b byte) { got = append(got, b) },
		PacketEnd: func(fin bool, opcode byte) bool {
			endFin, endOp = fin, opcode
			return true
		},
	})
	frame := maskedClientFrame(OpText, []byte("hello"), true)
	buf := buffer.NewOwned(len(frame))
	for _, b := range frame {
		buf.Produce(b)
	}
	if !d.Drain(buf) {
		t.Fatal("drain returned false")
	}
	if string(got) != "hello" {
		t.Fatalf("payload = %q", got)
	}
	if !endFin || endOp != OpText {
		t.Fatalf("endFin=%v endOp=%v", endFin, endOp)
	}
}

func TestFragmentationReassembly(t *testing.T) {
	var got []byte
	endCalls := 0
	d := NewDecoder(Callbacks{
		PacketStart: func(fin bool, opcode byte, size uint64) bool { return true },
		PacketData:  func(b byte) { got = append(got, b) },
		PacketEnd: func(fin bool, opcode byte) bool {
			endCalls++
			return true
		},
	})
	f1 := maskedClientFrame(OpText, []byte("Hel"), false)
	f2 := maskedClientFrame(OpContinuation, []byte("lo"), true)
	all := append(f1, f2...)
	buf := buffer.NewOwned(len(all))
	for _, b := range all {
		buf.Produce(b)
	}
	if !d.Drain(buf) {
		t.Fatal("drain returned false")
	}
	if string(got) != "Hello" {
		t.Fatalf("reassembled = %q", got)
	}
	if endCalls != 2 {
		t.Fatalf("endCalls = %d, want 2 (one per frame)", endCalls)
	}
	if d.fragmented != -1 {
		t.Fatalf("fragmented state not reset: %d", d.fragmented)
	}
}

func TestPingRepliesWithPong(t *testing.T) {
	var sentOp byte
	var sentPayload []byte
	dataCalled := false
	d := NewDecoder(Callbacks{
		PacketData: func(b byte) { dataCalled = true },
		Send: func(opcode byte, payload []byte) bool {
			sentOp = opcode
			sentPayload = payload
			return true
		},
	})
	frame := maskedClientFrame(OpPing, []byte("ab"), true)
	buf := buffer.NewOwned(len(frame))
	for _, b := range frame {
		buf.Produce(b)
	}
	if !d.Drain(buf) {
		t.Fatal("drain returned false")
	}
	if sentOp != OpPong || string(sentPayload) != "ab" {
		t.Fatalf("sentOp=%d sentPayload=%q", sentOp, sentPayload)
	}
	if dataCalled {
		t.Fatal("control frame must not invoke PacketData")
	}
}

func TestCloseFrameTerminates(t *testing.T) {
	closeSent := false
	d := NewDecoder(Callbacks{
		Send: func(opcode byte, payload []byte) bool {
			if opcode == OpClose {
				closeSent = true
			}
			return true
		},
	})
	frame := maskedClientFrame(OpClose, nil, true)
	buf := buffer.NewOwned(len(frame))
	for _, b := range frame {
		buf.Produce(b)
	}
	if d.Drain(buf) {
		t.Fatal("expected Drain to return false (terminal) on close")
	}
	if !closeSent {
		t.Fatal("expected an echoed close frame")
	}
}

func TestReservedBitsRejected(t *testing.T) {
	d := NewDecoder(Callbacks{})
	frame := maskedClientFrame(OpText, []byte("x"), true)
	frame[0] |= 0x40 // set a reserved bit
	buf := buffer.NewOwned(len(frame))
	for _, b := range frame {
		buf.Produce(b)
	}
	if d.Drain(buf) {
		t.Fatal("expected rejection of reserved bits")
	}
	if d.Err() != ErrReservedBitsSet {
		t.Fatalf("Err() = %v, want ErrReservedBitsSet", d.Err())
	}
}

func TestContinuationWithoutStartIsIllegal(t *testing.T) {
	d := NewDecoder(Callbacks{})
	frame := maskedClientFrame(OpContinuation, []byte("x"), true)
	buf := buffer.NewOwned(len(frame))
	for _, b := range frame {
		buf.Produce(b)
	}
	if d.Drain(buf) {
		t.Fatal("expected rejection of stray continuation frame")
	}
	if d.Err() != ErrBadContinuation {
		t.Fatalf("Err() = %v, want ErrBadContinuation", d.Err())
	}
}

func TestRoundTripEncodeThenDecode(t *testing.T) {
	msg := []byte("round trip payload")
	encoded := EncodeFrame(OpText, msg, true)

	var got []byte
	var endOp byte
	var endFin bool
	d := NewDecoder(Callbacks{
		PacketStart: func(fin bool, opcode byte, size uint64) bool { return true },
		PacketData:  func(b byte) { got = append(got, b) },
		PacketEnd: func(fin bool, opcode byte) bool {
			endFin, endOp = fin, opcode
			return true
		},
	})
	// Feeding an unmasked server-style frame back through the decoder
	// (mask=0) per spec.md §8 item 5.
	buf := buffer.NewOwned(len(encoded))
	for _, b := range encoded {
		buf.Produce(b)
	}
	if !d.Drain(buf) {
		t.Fatal("drain returned false")
	}
	if string(got) != string(msg) {
		t.Fatalf("round trip payload = %q, want %q", got, msg)
	}
	if !endFin || endOp != OpText {
		t.Fatalf("endFin=%v endOp=%v", endFin, endOp)
	}
}

func TestEncodeFrameLengthEncodings(t *testing.T) {
	short := EncodeFrame(OpBinary, make([]byte, 10), true)
	if len(short) != 2+10 {
		t.Fatalf("short header length = %d", len(short))
	}
	mid := EncodeFrame(OpBinary, make([]byte, 200), true)
	if len(mid) != 4+200 || mid[1] != 126 {
		t.Fatalf("mid header wrong: len=%d b1=%d", len(mid), mid[1])
	}
}
