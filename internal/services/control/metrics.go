package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the control service's Prometheus instruments.
type Metrics struct {
	Decisions      *prometheus.CounterVec
	GateCommands   *prometheus.CounterVec
	Anomalies      *prometheus.CounterVec
	SessionsEnded  *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	MonitorPolls   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "awd_decisions_total",
			Help: "Decision engine outcomes by action.",
		}, []string{"action"}),
		GateCommands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "awd_gate_commands_total",
			Help: "Gate commands submitted to the SCADA sink.",
		}, []string{"kind"}),
		Anomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "awd_anomalies_total",
			Help: "Anomalies detected by the monitor loop.",
		}, []string{"type", "severity"}),
		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "awd_sessions_ended_total",
			Help: "Sessions reaching a terminal state, by status.",
		}, []string{"status"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "awd_active_sessions",
			Help: "Currently active irrigation sessions.",
		}),
		MonitorPolls: factory.NewCounter(prometheus.CounterOpts{
			Name: "awd_monitor_polls_total",
			Help: "Monitor loop poll cycles executed.",
		}),
	}
}
