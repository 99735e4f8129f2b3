// SPDX-License-Identifier: GPL-3.0

package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/heistp/lpwansim/internal/packet"
)

// Registry holds the simulator's own operational counters: how the engine
// and codecs are behaving, as distinct from the per-protocol domain KPIs
// tracked by Collector above. It is registered once at startup and dumped
// to the log at the end of a run.
type Registry struct {
	reg              *prometheus.Registry
	EventsProcessed  prometheus.Counter
	PacketsTx        *prometheus.CounterVec
	DecodeFailures   *prometheus.CounterVec
}

// NewRegistry returns a Registry with its families registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lpwansim_events_processed_total",
			Help: "Number of Ding/Handle events processed by the engine.",
		}),
		PacketsTx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lpwansim_packets_transmitted_total",
			Help: "Number of packets transmitted, by protocol.",
		}, []string{"protocol"}),
		DecodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lpwansim_decode_failures_total",
			Help: "Number of frames rejected by a codec, by protocol.",
		}, []string{"protocol"}),
	}
	reg.MustRegister(r.EventsProcessed, r.PacketsTx, r.DecodeFailures)
	return r
}

// RecordPacketTx increments the per-protocol transmitted-packet counter. A
// nil Registry is a no-op, so callers (and their tests) can omit one.
func (r *Registry) RecordPacketTx(p packet.Protocol) {
	if r == nil {
		return
	}
	r.PacketsTx.WithLabelValues(p.String()).Inc()
}

// RecordDecodeFailure increments the per-protocol decode-failure counter. A
// nil Registry is a no-op, so callers (and their tests) can omit one.
func (r *Registry) RecordDecodeFailure(p packet.Protocol) {
	if r == nil {
		return
	}
	r.DecodeFailures.WithLabelValues(p.String()).Inc()
}

// IncEvents increments the events-processed counter. A nil Registry is a
// no-op.
func (r *Registry) IncEvents() {
	if r == nil {
		return
	}
	r.EventsProcessed.Inc()
}

// DumpPrometheus gathers every registered metric family and writes a plain
// text block to w, used to fold the operational counters into
// simulation.log at the end of a run.
func DumpPrometheus(r *Registry, w io.Writer) error {
	families, err := r.reg.Gather()
	if err != nil {
		return err
	}
	for _, f := range families {
		fmt.Fprintf(w, "# %s %s\n", f.GetName(), f.GetHelp())
		for _, m := range f.GetMetric() {
			labels := ""
			for _, l := range m.GetLabel() {
				labels += fmt.Sprintf("%s=%q ", l.GetName(), l.GetValue())
			}
			fmt.Fprintf(w, "%s{%s} %v\n", f.GetName(), labels, m.GetCounter().GetValue())
		}
	}
	return nil
}
