package supervisor

import (
	"context"
	"slices"
	"time"

	"github.com/foxseedlab/vckeeper/internal/discord"
	"github.com/jonboulle/clockwork"
)

// awaitState blocks until conn reports one of want, conn is destroyed, the
// timeout elapses or ctx ends.
func awaitState(ctx context.Context, clock clockwork.Clock, conn discord.VoiceConnection, timeout time.Duration, want ...discord.ConnectionStatus) error {
	changes := make(chan discord.ConnectionStatus, 16)
	detach := conn.OnStatusChange(func(status discord.ConnectionStatus) {
		select {
		case changes <- status:
		default:
		}
	})
	defer detach()

	check := func(status discord.ConnectionStatus) (bool, error) {
		if slices.Contains(want, status) {
			return true, nil
		}
		if status.Terminal() {
			return true, ErrConnectionDestroyed
		}
		return false, nil
	}
	if done, err := check(conn.Status()); done {
		return err
	}

	timer := clock.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.Chan():
			// The last change may have raced the timer.
			if done, err := check(conn.Status()); done {
				return err
			}
			return ErrWaitTimeout
		case status := <-changes:
			if done, err := check(status); done {
				return err
			}
		}
	}
}
