// Package audiotest builds small synthetic MP3 streams for tests.
package audiotest

import (
	"bytes"

	"github.com/zhouzirui/voice-agent/backend/internal/audio"
)

// FrameSize is the length of one MPEG-1 Layer III frame at 128 kbps, 48 kHz.
const FrameSize = 384

// Format describes the frames produced by Segment.
var Format = audio.Format{SampleRate: 48000, Channels: 2}

// Frame returns one frame whose payload bytes are all fill.
func Frame(fill byte, mono bool) []byte {
	frame := bytes.Repeat([]byte{fill}, FrameSize)
	frame[0] = 0xFF
	frame[1] = 0xFB
	frame[2] = 0x94
	frame[3] = 0x00
	if mono {
		frame[3] = 0xC0
	}
	return frame
}

// Segment returns n stereo frames.
func Segment(fill byte, n int) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		buf.Write(Frame(fill, false))
	}
	return buf.Bytes()
}
