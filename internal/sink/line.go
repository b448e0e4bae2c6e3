package sink

import "net11/internal/buffer"

// LineSink reads bytes until a configured terminator is seen, bounded by
// a maximum accumulated length, and invokes a callback with the assembled
// line (terminator stripped). It is reusable across invocations: the
// accumulator is cleared after each successful line, so the same
// LineSink instance can be rearmed for the next request line on a
// keep-alive connection.
type LineSink struct {
	Term    string
	MaxLen  int
	OnLine  func(line string) bool
	accum   []byte
}

// NewLineSink constructs a LineSink with the given terminator, maximum
// accumulated length, and line callback.
func NewLineSink(term string, maxLen int, onLine func(string) bool) *LineSink {
	return &LineSink{Term: term, MaxLen: maxLen, OnLine: onLine}
}

// Reset clears any partially accumulated line, for reuse across requests.
func (s *LineSink) Reset() {
	s.accum = s.accum[:0]
}

func (s *LineSink) Drain(buf *buffer.Buffer) bool {
	term := s.Term
	tl := len(term)
	for buf.Usage() > 0 {
		if len(s.accum) >= s.MaxLen {
			return false
		}
		s.accum = append(s.accum, buf.Consume())
		sz := len(s.accum)
		if sz > tl && string(s.accum[sz-tl:]) == term {
			line := string(s.accum[:sz-tl])
			s.accum = s.accum[:0]
			return s.OnLine(line)
		}
	}
	return true
}
