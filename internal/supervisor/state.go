package supervisor

import "github.com/foxseedlab/vckeeper/internal/discord"

// State is the supervisor's view of the authoritative voice connection.
type State int

const (
	StateIdle State = iota
	StateJoining
	StateSignalling
	StateConnecting
	StateReady
	StateDisconnected
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateSignalling:
		return "signalling"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

type Event int

const (
	EventConnect Event = iota
	EventSignalling
	EventConnecting
	EventReady
	EventDisconnected
	EventDestroyed
	// EventTimeout covers a bounded wait running out and any other failed
	// join attempt.
	EventTimeout
	EventConfigError
)

func (e Event) String() string {
	switch e {
	case EventConnect:
		return "connect"
	case EventSignalling:
		return "signalling"
	case EventConnecting:
		return "connecting"
	case EventReady:
		return "ready"
	case EventDisconnected:
		return "disconnected"
	case EventDestroyed:
		return "destroyed"
	case EventTimeout:
		return "timeout"
	case EventConfigError:
		return "config_error"
	default:
		return "unknown"
	}
}

type Effect int

const (
	EffectNone Effect = iota
	EffectJoin
	// EffectAwaitReady bounds a transitional state with the ready timeout.
	EffectAwaitReady
	// EffectAwaitReentry gives a dropped connection the short re-entry window.
	EffectAwaitReentry
	EffectRebuild
)

func (e Effect) String() string {
	switch e {
	case EffectNone:
		return "none"
	case EffectJoin:
		return "join"
	case EffectAwaitReady:
		return "await_ready"
	case EffectAwaitReentry:
		return "await_reentry"
	case EffectRebuild:
		return "rebuild"
	default:
		return "unknown"
	}
}

// transition is the whole connection state machine. Pairs it does not list
// leave the state unchanged with no effect.
func transition(s State, e Event) (State, Effect) {
	switch e {
	case EventConnect:
		if s == StateIdle || s == StateDestroyed {
			return StateJoining, EffectJoin
		}
	case EventConfigError:
		if s == StateJoining {
			return StateIdle, EffectNone
		}
	case EventReady:
		switch s {
		case StateJoining, StateSignalling, StateConnecting, StateDisconnected:
			return StateReady, EffectNone
		}
	case EventDisconnected:
		switch s {
		case StateReady, StateSignalling, StateConnecting:
			return StateDisconnected, EffectAwaitReentry
		}
	case EventSignalling, EventConnecting:
		next := StateSignalling
		if e == EventConnecting {
			next = StateConnecting
		}
		switch s {
		case StateReady, StateDisconnected:
			return next, EffectAwaitReady
		case StateSignalling, StateConnecting:
			// The ready wait already running keeps bounding this phase.
			return next, EffectNone
		}
	case EventTimeout:
		switch s {
		case StateJoining, StateSignalling, StateConnecting, StateDisconnected:
			return StateDestroyed, EffectRebuild
		}
	case EventDestroyed:
		switch s {
		case StateIdle, StateDestroyed:
			return s, EffectNone
		default:
			return StateDestroyed, EffectRebuild
		}
	}
	return s, EffectNone
}

func eventFromStatus(status discord.ConnectionStatus) Event {
	switch status {
	case discord.StatusSignalling:
		return EventSignalling
	case discord.StatusConnecting:
		return EventConnecting
	case discord.StatusReady:
		return EventReady
	case discord.StatusDisconnected:
		return EventDisconnected
	default:
		return EventDestroyed
	}
}
