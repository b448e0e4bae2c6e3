package sink

import (
	"errors"

	"net11/internal/buffer"
)

type headerState int

const (
	firstLineStart headerState = iota
	lineStart
	testEmptyLine
	inKey
	postKeySkip
	inValue
	postValue
)

// Sentinel errors surfaced to OnFin on a malformed header block.
var (
	ErrHeadersTooLarge = errors.New("sink: headers too large")
	ErrSpuriousLF      = errors.New("sink: spurious LF")
	ErrCRWithoutLF     = errors.New("sink: cr but no lf in header line")
)

// HeaderSink parses an RFC 822-style header block with folding, invoking
// OnHeader for each (key, value) pair and OnFin once at the terminating
// blank line (nil error) or on a parse fault (non-nil error). KeyFilter,
// when set, is applied to each key byte as it is accumulated (typically
// an ASCII byte lower-caser) so callers get case-folded keys without a
// second pass.
type HeaderSink struct {
	MaxTotal  int
	KeyFilter func(byte) byte
	OnHeader  func(key, value string) bool
	OnFin     func(err error) bool

	state headerState
	key   []byte
	val   []byte
	count int
}

// NewHeaderSink constructs a HeaderSink with the given byte budget,
// optional key filter, and callbacks.
func NewHeaderSink(maxTotal int, keyFilter func(byte) byte, onHeader func(string, string) bool, onFin func(error) bool) *HeaderSink {
	return &HeaderSink{MaxTotal: maxTotal, KeyFilter: keyFilter, OnHeader: onHeader, OnFin: onFin}
}

// Reset returns the sink to its initial state, for reuse across requests
// on a keep-alive connection.
func (s *HeaderSink) Reset() {
	s.state = firstLineStart
	s.key = s.key[:0]
	s.val = s.val[:0]
	s.count = 0
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\v' || c == '\f' || c == '\r'
}

func (s *HeaderSink) emitHeader() {
	s.OnHeader(string(s.key), string(s.val))
	s.key = s.key[:0]
	s.val = s.val[:0]
}

func (s *HeaderSink) fault(err error) bool {
	s.count = -1
	s.OnFin(err)
	return false
}

// Drain advances the header state machine. A pre-existing error condition
// (count == -1) short-circuits to false, matching the rule that a sink
// returning false is terminal for the connection.
func (s *HeaderSink) Drain(buf *buffer.Buffer) bool {
	if s.count == -1 {
		return false
	}
	for buf.Usage() > 0 {
		if s.count >= s.MaxTotal {
			return s.fault(ErrHeadersTooLarge)
		}
		c := buf.Consume()
		s.count++
		switch s.state {
		case firstLineStart, lineStart:
			if c == 13 { // CR
				if s.state != firstLineStart {
					s.emitHeader()
				}
				s.state = testEmptyLine
				continue
			} else if c == 10 { // bare LF with no preceding CR
				return s.fault(ErrSpuriousLF)
			}
			if s.state != firstLineStart {
				if isSpaceByte(c) {
					// folded continuation line: append to current value
					s.state = inValue
					s.val = append(s.val, c)
					continue
				}
				s.emitHeader()
			}
			if isSpaceByte(c) {
				continue
			}
			s.state = inKey
			if s.KeyFilter != nil {
				c = s.KeyFilter(c)
			}
			s.key = append(s.key, c)
			continue
		case testEmptyLine:
			if c == 10 {
				rv := s.OnFin(nil)
				s.key = s.key[:0]
				s.val = s.val[:0]
				s.state = firstLineStart
				s.count = 0
				return rv
			}
			return s.fault(ErrCRWithoutLF)
		case inKey:
			if c == ':' {
				s.state = postKeySkip
				continue
			}
			if s.KeyFilter != nil {
				c = s.KeyFilter(c)
			}
			s.key = append(s.key, c)
			continue
		case postKeySkip:
			if isSpaceByte(c) {
				continue
			}
			s.state = inValue
			s.val = append(s.val, c)
			continue
		case inValue:
			if c == 13 {
				s.state = postValue
				continue
			} else if c == 10 { // bare LF with no preceding CR
				return s.fault(ErrSpuriousLF)
			}
			s.val = append(s.val, c)
			continue
		case postValue:
			if c == 10 {
				s.state = lineStart
				continue
			}
			return s.fault(ErrCRWithoutLF)
		}
	}
	return true
}
