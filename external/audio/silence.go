package audio

import (
	"fmt"

	"github.com/foxseedlab/vckeeper/internal/audio"
)

// silenceSource repeats one pre-encoded silent frame.
type silenceSource struct {
	frame []byte
}

func NewSilenceSource() (audio.Source, error) {
	frame, err := encodeSilenceFrame()
	if err != nil {
		return nil, fmt.Errorf("failed to encode silence frame: %w", err)
	}
	return &silenceSource{frame: frame}, nil
}

func (s *silenceSource) NextFrame() ([]byte, error) {
	return s.frame, nil
}
