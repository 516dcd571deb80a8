package hdlc

// Splitter reassembles delimited frames from a byte stream. Bytes outside
// a frame are dropped. Back-to-back delimiters start a new frame rather
// than producing an empty one.
type Splitter struct {
	buf []byte
}

// Feed consumes data and returns every frame it completes, delimiters
// included.
func (s *Splitter) Feed(data []byte) [][]byte {
	var frames [][]byte
	for _, b := range data {
		switch {
		case b == FrameChar && len(s.buf) > 1:
			frame := append(s.buf, FrameChar)
			frames = append(frames, frame)
			s.buf = nil
		case b == FrameChar:
			s.buf = append(s.buf[:0], FrameChar)
		case len(s.buf) > 0:
			s.buf = append(s.buf, b)
		}
	}
	return frames
}

// Pending reports how many bytes of an unfinished frame are buffered.
func (s *Splitter) Pending() int { return len(s.buf) }
