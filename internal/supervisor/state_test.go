package supervisor

import (
	"testing"

	"github.com/foxseedlab/vckeeper/internal/discord"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from       State
		event      Event
		wantState  State
		wantEffect Effect
	}{
		{StateIdle, EventConnect, StateJoining, EffectJoin},
		{StateDestroyed, EventConnect, StateJoining, EffectJoin},
		{StateJoining, EventConnect, StateJoining, EffectNone},
		{StateReady, EventConnect, StateReady, EffectNone},
		{StateJoining, EventReady, StateReady, EffectNone},
		{StateJoining, EventTimeout, StateDestroyed, EffectRebuild},
		{StateJoining, EventConfigError, StateIdle, EffectNone},
		{StateReady, EventDisconnected, StateDisconnected, EffectAwaitReentry},
		{StateDisconnected, EventSignalling, StateSignalling, EffectAwaitReady},
		{StateDisconnected, EventConnecting, StateConnecting, EffectAwaitReady},
		{StateDisconnected, EventReady, StateReady, EffectNone},
		{StateDisconnected, EventTimeout, StateDestroyed, EffectRebuild},
		{StateSignalling, EventConnecting, StateConnecting, EffectNone},
		{StateConnecting, EventReady, StateReady, EffectNone},
		{StateConnecting, EventTimeout, StateDestroyed, EffectRebuild},
		{StateSignalling, EventTimeout, StateDestroyed, EffectRebuild},
		{StateReady, EventConnecting, StateConnecting, EffectAwaitReady},
		{StateReady, EventTimeout, StateReady, EffectNone},
		{StateReady, EventDestroyed, StateDestroyed, EffectRebuild},
		{StateConnecting, EventDestroyed, StateDestroyed, EffectRebuild},
		{StateDisconnected, EventDestroyed, StateDestroyed, EffectRebuild},
		{StateDestroyed, EventDestroyed, StateDestroyed, EffectNone},
		{StateIdle, EventDestroyed, StateIdle, EffectNone},
		{StateIdle, EventReady, StateIdle, EffectNone},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.event.String(), func(t *testing.T) {
			gotState, gotEffect := transition(tt.from, tt.event)
			if gotState != tt.wantState || gotEffect != tt.wantEffect {
				t.Fatalf("transition(%s, %s) = (%s, %s), want (%s, %s)",
					tt.from, tt.event, gotState, gotEffect, tt.wantState, tt.wantEffect)
			}
		})
	}
}

func TestEventFromStatus(t *testing.T) {
	tests := map[discord.ConnectionStatus]Event{
		discord.StatusSignalling:   EventSignalling,
		discord.StatusConnecting:   EventConnecting,
		discord.StatusReady:        EventReady,
		discord.StatusDisconnected: EventDisconnected,
		discord.StatusDestroyed:    EventDestroyed,
	}
	for status, want := range tests {
		if got := eventFromStatus(status); got != want {
			t.Errorf("eventFromStatus(%s) = %s, want %s", status, got, want)
		}
	}
}
