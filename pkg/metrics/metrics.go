// Package metrics wires run counters into a dedicated Prometheus registry,
// dumped to a file in text exposition format at end-of-run rather than
// served over HTTP (this is a one-shot offline CLI, not a long-running
// exporter).
package metrics

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry holds every run counter/gauge this analyzer exposes.
type Registry struct {
	reg *prometheus.Registry

	FramesSeen        prometheus.Counter
	FramesDropped     *prometheus.CounterVec
	SDPacketsLearned  prometheus.Counter
	KnownPorts        prometheus.Gauge
	TPPending         prometheus.Gauge
	TPReassembled     prometheus.Counter
	TPExpired         prometheus.Counter
	TCPFlowsActive    prometheus.Gauge
	TCPFlowsEvicted   prometheus.Counter
	SessionsPending   prometheus.Gauge
	SessionsCompleted prometheus.Counter
	SessionsOrphaned  prometheus.Counter
	SessionsEvicted   prometheus.Counter
}

// New builds a fresh registry; every counter starts at zero.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		FramesSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "someip_frames_seen_total", Help: "Raw capture frames read.",
		}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "someip_frames_dropped_total", Help: "Frames dropped by decode error category.",
		}, []string{"reason"}),
		SDPacketsLearned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "someip_sd_packets_total", Help: "Service-discovery packets parsed.",
		}),
		KnownPorts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "someip_known_ports", Help: "Current size of the known-ports set.",
		}),
		TPPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "someip_tp_pending", Help: "In-flight TP reassemblies.",
		}),
		TPReassembled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "someip_tp_reassembled_total", Help: "TP reassemblies completed.",
		}),
		TPExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "someip_tp_expired_total", Help: "TP reassemblies expired before completion.",
		}),
		TCPFlowsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "someip_tcp_flows_active", Help: "Live TCP flows tracked.",
		}),
		TCPFlowsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "someip_tcp_flows_evicted_total", Help: "TCP flows evicted under capacity pressure.",
		}),
		SessionsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "someip_sessions_pending", Help: "Pending request/response pairs.",
		}),
		SessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "someip_sessions_completed_total", Help: "Request/response pairs completed.",
		}),
		SessionsOrphaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "someip_sessions_orphaned_total", Help: "Requests swept with no response.",
		}),
		SessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "someip_sessions_evicted_total", Help: "Pending pairs evicted under capacity pressure.",
		}),
	}

	reg.MustRegister(
		r.FramesSeen, r.FramesDropped, r.SDPacketsLearned, r.KnownPorts,
		r.TPPending, r.TPReassembled, r.TPExpired,
		r.TCPFlowsActive, r.TCPFlowsEvicted,
		r.SessionsPending, r.SessionsCompleted, r.SessionsOrphaned, r.SessionsEvicted,
	)

	return r
}

// DumpFile writes every metric in Prometheus text exposition format to
// path.
func (r *Registry) DumpFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	families, err := r.reg.Gather()
	if err != nil {
		return err
	}

	enc := expfmt.NewEncoder(f, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
