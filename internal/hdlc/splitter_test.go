package hdlc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitterReassemblesChunks(t *testing.T) {
	probe := MustEncode(ProbeRequest())
	var s Splitter

	assert.Empty(t, s.Feed([]byte("noise")))
	assert.Empty(t, s.Feed(probe[:5]))
	assert.Equal(t, 5, s.Pending())

	frames := s.Feed(probe[5:])
	assert.Equal(t, [][]byte{probe}, frames)
	assert.Equal(t, 0, s.Pending())
}

func TestSplitterMultipleFrames(t *testing.T) {
	a := MustEncode(ProbeRequest())
	b := MustEncode(Request{Command: GetVersionSupport, Src: DefaultSrc})
	var s Splitter

	stream := append(append([]byte{}, a...), b...)
	assert.Equal(t, [][]byte{a, b}, s.Feed(stream))
}

func TestSplitterIgnoresEmptyFrames(t *testing.T) {
	var s Splitter
	assert.Empty(t, s.Feed([]byte{FrameChar, FrameChar, FrameChar}))
	assert.Equal(t, [][]byte{{FrameChar, 0x01, FrameChar}}, s.Feed([]byte{0x01, FrameChar}))
}
