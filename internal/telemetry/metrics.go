// Package telemetry provides Prometheus metrics and OpenTelemetry tracing helpers.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vckeeper"

var (
	JoinAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "voice_join_attempts_total",
		Help:      "Voice join attempts by result",
	}, []string{"result"})

	RebuildsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "voice_rebuilds_scheduled_total",
		Help:      "Voice connection rebuilds scheduled by reason",
	}, []string{"reason"})

	SupervisorState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "voice_supervisor_state",
		Help:      "Current connection supervisor state (0=idle,1=joining,2=signalling,3=connecting,4=ready,5=disconnected,6=destroyed)",
	})

	PlayerSendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "voice_player_send_failures_total",
		Help:      "Silence frames the player failed to hand to the voice connection",
	})

	SessionsBegun = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_sessions_begun_total",
		Help:      "Active sessions opened (including startup seeding)",
	})

	SessionsEnded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_sessions_ended_total",
		Help:      "Active sessions closed and flushed into participant totals",
	})

	AccumulatedSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_accumulated_seconds_total",
		Help:      "Voice time flushed into participant totals",
	})

	LedgerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_errors_total",
		Help:      "Ledger storage faults by operation",
	}, []string{"op"})
)
