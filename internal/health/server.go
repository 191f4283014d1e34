// Package health serves liveness, readiness and Prometheus metrics.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/foxseedlab/vckeeper/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

type StateReader interface {
	State() supervisor.State
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	voice  StateReader
	ledger Pinger
}

func NewMux(voice StateReader, ledger Pinger) *http.ServeMux {
	h := &Handlers{voice: voice, ledger: ledger}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", h.HandleHealthz)
	mux.HandleFunc("/readyz", h.HandleReadyz)
	return mux
}

// HandleHealthz reports the process is alive.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready only while the voice connection is Ready and
// the ledger store answers.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	state := h.voice.State()
	checks := []struct {
		name string
		fn   func() error
	}{
		{"voice", func() error {
			if state != supervisor.StateReady {
				return fmt.Errorf("voice connection is %s", state)
			}
			return nil
		}},
		{"ledger", func() error { return h.ledger.Ping(r.Context()) }},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"voice_state":  state.String(),
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready", "voice_state": state.String()})
}

// Serve runs the health server until ctx ends.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("health server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down health server: %w", err)
		}
		return nil
	}
}
