//go:build opus

package audio

import (
	"github.com/hraban/opus"
)

const (
	sampleRate      = 48000
	channels        = 2
	frameSizeMs     = 20
	samplesPerFrame = sampleRate * frameSizeMs * channels / 1000
	maxPacketBytes  = 4000
)

func encodeSilenceFrame() ([]byte, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	pcm := make([]int16, samplesPerFrame)
	buf := make([]byte, maxPacketBytes)
	n, err := enc.Encode(pcm, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
