package audio

import (
	"errors"
	"time"
)

// FrameInterval is the pacing the voice transport expects between frames.
const FrameInterval = 20 * time.Millisecond

var (
	ErrUnsupportedEncoding = errors.New("unsupported audio encoding")
	ErrNotReady            = errors.New("player is stopped")
)

type Encoding int

const (
	EncodingOpus Encoding = iota
	EncodingRaw
)

func (e Encoding) String() string {
	switch e {
	case EncodingOpus:
		return "opus"
	case EncodingRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Source yields one encoded frame per call.
type Source interface {
	NextFrame() ([]byte, error)
}

type SourceFactory func() (Source, error)

type Resource struct {
	Source   Source
	Encoding Encoding
}

// Sink accepts encoded frames. A voice connection satisfies it.
type Sink interface {
	SendOpus(frame []byte) error
}
