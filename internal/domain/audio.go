package domain

import "encoding/binary"

const (
	SampleRate   = 16000
	FrameSamples = 1024
	Channels     = 1
	BitDepth     = 16
)

// AudioFrame is one fixed-size block of signed 16-bit mono samples.
type AudioFrame []int16

func NewSilenceFrame(samples int) AudioFrame {
	return make(AudioFrame, samples)
}

// Bytes encodes the frame as little-endian linear PCM.
func (f AudioFrame) Bytes() []byte {
	buf := make([]byte, len(f)*2)
	for i, s := range f {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func (f AudioFrame) IsSilent() bool {
	for _, s := range f {
		if s != 0 {
			return false
		}
	}
	return true
}

// FrameFromBytes decodes little-endian PCM into a frame. A trailing odd byte is ignored.
func FrameFromBytes(data []byte) AudioFrame {
	frame := make(AudioFrame, len(data)/2)
	for i := range frame {
		frame[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return frame
}
