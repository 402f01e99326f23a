package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

type wavFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// decodeWAV returns the raw sample bytes of a RIFF/WAVE file and its format.
func decodeWAV(data []byte) ([]byte, wavFormat, error) {
	var format wavFormat
	if !isWAV(data) {
		return nil, format, errors.New("not a RIFF/WAVE file")
	}

	var haveFormat bool
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, format, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			chunk := data[body : body+16]
			format.AudioFormat = binary.LittleEndian.Uint16(chunk[0:2])
			format.Channels = binary.LittleEndian.Uint16(chunk[2:4])
			format.SampleRate = binary.LittleEndian.Uint32(chunk[4:8])
			format.BitsPerSample = binary.LittleEndian.Uint16(chunk[14:16])
			haveFormat = true
		case "data":
			if !haveFormat {
				return nil, format, errors.New("data chunk before fmt chunk")
			}
			return data[body : body+size], format, nil
		}

		pos = body + size + size%2
	}

	return nil, format, errors.New("no data chunk")
}
