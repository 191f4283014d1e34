package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/foxseedlab/vckeeper/internal/telemetry"
	"github.com/jonboulle/clockwork"
)

// failureReportEvery throttles error reports from a sink that keeps failing.
const failureReportEvery = 500

// Player paces frames from a Resource into the subscribed Sink.
type Player struct {
	clock   clockwork.Clock
	onError func(error)

	mu       sync.Mutex
	sink     Sink
	stop     chan struct{}
	done     chan struct{}
	stopped  bool
	failures int64
	sent     int64
}

func NewPlayer(clock clockwork.Clock, onError func(error)) *Player {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &Player{clock: clock, onError: onError}
}

// Play starts the frame loop. A second Play replaces the running resource.
func (p *Player) Play(r Resource) error {
	if r.Encoding != EncodingOpus {
		return fmt.Errorf("%w: %s", ErrUnsupportedEncoding, r.Encoding)
	}
	if r.Source == nil {
		return fmt.Errorf("audio resource has no source")
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrNotReady
	}
	prevStop, prevDone := p.stop, p.done
	stop := make(chan struct{})
	done := make(chan struct{})
	p.stop, p.done = stop, done
	p.mu.Unlock()

	if prevStop != nil {
		close(prevStop)
		<-prevDone
	}
	ticker := p.clock.NewTicker(FrameInterval)
	go p.loop(r.Source, ticker, stop, done)
	return nil
}

func (p *Player) Subscribe(sink Sink) {
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()
}

// Stop ends the frame loop and unbinds the sink. It is idempotent.
func (p *Player) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.sink = nil
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (p *Player) Sent() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

func (p *Player) loop(src Source, ticker clockwork.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			p.tick(src)
		}
	}
}

func (p *Player) tick(src Source) {
	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	if sink == nil {
		return
	}

	frame, err := src.NextFrame()
	if err != nil {
		p.fail(fmt.Errorf("failed to read audio frame: %w", err))
		return
	}
	if err := sink.SendOpus(frame); err != nil {
		telemetry.PlayerSendFailures.Inc()
		p.fail(fmt.Errorf("failed to send audio frame: %w", err))
		return
	}
	p.mu.Lock()
	p.sent++
	p.mu.Unlock()
}

func (p *Player) fail(err error) {
	p.mu.Lock()
	p.failures++
	n := p.failures
	p.mu.Unlock()
	if n == 1 || n%failureReportEvery == 0 {
		slog.Debug("audio player failure", "error", err, "failures", n)
		p.onError(err)
	}
}
