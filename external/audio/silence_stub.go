//go:build !opus

package audio

// opusSilenceFrame is the canonical 3-byte Opus silence packet.
var opusSilenceFrame = []byte{0xF8, 0xFF, 0xFE}

func encodeSilenceFrame() ([]byte, error) {
	frame := make([]byte, len(opusSilenceFrame))
	copy(frame, opusSilenceFrame)
	return frame, nil
}
