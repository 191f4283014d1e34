package discord

import "errors"

var (
	ErrVoiceNotReady = errors.New("voice connection is not ready")
	ErrVoiceSendBusy = errors.New("voice send buffer is full")
)

// ConnectionStatus is the transport-reported state of one voice connection.
type ConnectionStatus int

const (
	StatusSignalling ConnectionStatus = iota
	StatusConnecting
	StatusReady
	StatusDisconnected
	StatusDestroyed
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusSignalling:
		return "signalling"
	case StatusConnecting:
		return "connecting"
	case StatusReady:
		return "ready"
	case StatusDisconnected:
		return "disconnected"
	case StatusDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

func (s ConnectionStatus) Terminal() bool {
	return s == StatusDestroyed
}

type VoiceConnection interface {
	GuildID() string
	ChannelID() string
	Status() ConnectionStatus
	// OnStatusChange registers fn for every later status change. The returned
	// func detaches it; calling it more than once is safe.
	OnStatusChange(fn func(ConnectionStatus)) (detach func())
	SendOpus(frame []byte) error
	// Destroy releases the connection. It is idempotent.
	Destroy() error
}
