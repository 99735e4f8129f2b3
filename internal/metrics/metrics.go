// SPDX-License-Identifier: GPL-3.0

// Package metrics implements the per-protocol metrics collector (§4.12):
// streamed transmission/command records, periodic snapshots, and derived
// KPIs at finalize time.
package metrics

import (
	"github.com/heistp/lpwansim/internal/engine"
	"github.com/heistp/lpwansim/internal/packet"
)

// Row is one post-warmup transmission record, emitted to metrics.csv.
type Row struct {
	TimestampMs engine.Clock
	DeviceID    engine.NodeID
	Protocol    packet.Protocol
	Direction   packet.Direction
	PacketSize  int
	AirtimeMs   engine.Clock
	Success     bool
	QosClass    packet.QoS
	EnergyMj    float64
}

// aggregate holds the per-protocol running counters described in §4.12.
type aggregate struct {
	UplinkSuccess     uint64
	UplinkFailed      uint64
	UplinkBytes       uint64
	UplinkAirtimeMs   uint64
	TxCount           uint64
	RxCount           uint64
	TotalEnergyMj     float64
	CommandsApplied   uint64
	CmdLatencySum     float64
	CmdLatencyCount   uint64
	AcksSent          uint64
	BitsAcked         uint64
	GatewayTxCount    uint64
	GatewayTxBytes    uint64
	GatewayRxCount    uint64
	GatewayRxBytes    uint64
	DownlinkBytes     uint64
	CommandsExpired   uint64
	CommandsEvicted   uint64
	DecodeFailures    uint64
	DutyCycleWarnings uint64
}

// Summary is the set of derived KPIs produced at Finalize, matching
// summary.yaml's per-protocol shape.
type Summary struct {
	DeliveryRate      float64 `yaml:"delivery_rate"`
	AvgCmdLatencyMs   float64 `yaml:"avg_cmd_latency_ms"`
	EnergyPerMsgMj    float64 `yaml:"energy_per_msg_mj"`
	UplinkBytes       uint64  `yaml:"uplink_bytes"`
	DownlinkBytes     uint64  `yaml:"downlink_bytes"`
	TotalAirtimeMs    uint64  `yaml:"total_airtime_ms"`
	CommandsApplied   uint64  `yaml:"commands_applied"`
	AckEfficiency     float64 `yaml:"ack_efficiency"`
}

// Collector accumulates per-protocol metrics over a simulation run,
// filtering a configurable warmup period out of the exported per-event rows.
type Collector struct {
	WarmupMs        engine.Clock
	CollectInterval engine.Clock
	aggs            map[packet.Protocol]*aggregate
	rows            []Row
	snapshots       []Snapshot
	lastSnapshot    engine.Clock
}

// Snapshot is a periodic point-in-time aggregate dump, taken every
// CollectInterval after warmup.
type Snapshot struct {
	AtMs     engine.Clock
	Protocol packet.Protocol
	Agg      aggregate
}

// New returns a Collector with the given warmup period and snapshot
// interval, both in milliseconds.
func New(warmupMs, collectIntervalMs engine.Clock) *Collector {
	return &Collector{
		WarmupMs:        warmupMs,
		CollectInterval: collectIntervalMs,
		aggs:            make(map[packet.Protocol]*aggregate),
	}
}

func (c *Collector) agg(p packet.Protocol) *aggregate {
	a, ok := c.aggs[p]
	if !ok {
		a = &aggregate{}
		c.aggs[p] = a
	}
	return a
}

// RecordTransmission records a device-side (uplink) or gateway-side
// (downlink) transmission outcome and, post-warmup, appends a Row.
func (c *Collector) RecordTransmission(now engine.Clock, dev engine.NodeID, p *packet.Packet, energyMj float64) {
	a := c.agg(p.Protocol)
	a.TxCount++
	if p.Direction == packet.Uplink {
		a.UplinkBytes += uint64(p.Size)
		a.UplinkAirtimeMs += uint64(p.AirtimeMs)
		if p.Delivered {
			a.UplinkSuccess++
		} else {
			a.UplinkFailed++
		}
	} else {
		a.DownlinkBytes += uint64(p.Size)
	}
	a.TotalEnergyMj += energyMj

	if now >= c.WarmupMs {
		c.rows = append(c.rows, Row{now, dev, p.Protocol, p.Direction, int(p.Size), p.AirtimeMs, p.Delivered, p.QosTag, energyMj})
	}
	c.maybeSnapshot(now)
}

// RecordGatewayRX records a gateway-side uplink receipt.
func (c *Collector) RecordGatewayRX(p *packet.Packet) {
	a := c.agg(p.Protocol)
	a.RxCount++
	a.GatewayRxCount++
	a.GatewayRxBytes += uint64(p.Size)
}

// RecordGatewayTX records a gateway-side downlink transmission.
func (c *Collector) RecordGatewayTX(p *packet.Packet) {
	a := c.agg(p.Protocol)
	a.GatewayTxCount++
	a.GatewayTxBytes += uint64(p.Size)
}

// RecordCommandApplied records a command applied at a device, with its
// end-to-end latency from creation to application.
func (c *Collector) RecordCommandApplied(proto packet.Protocol, latencyMs engine.Clock) {
	a := c.agg(proto)
	a.CommandsApplied++
	a.CmdLatencySum += float64(latencyMs)
	a.CmdLatencyCount++
}

// RecordCommandExpired records a command given up on without ever being
// delivered: swept past its deadline, or dropped after a failed delivery
// with no retry budget or deadline left to retry within.
func (c *Collector) RecordCommandExpired(proto packet.Protocol) {
	c.agg(proto).CommandsExpired++
}

// RecordCommandEvicted records a command dropped by scheduler overflow.
func (c *Collector) RecordCommandEvicted(proto packet.Protocol) {
	c.agg(proto).CommandsEvicted++
}

// RecordDecodeFailure records a frame rejected by a codec as too short.
func (c *Collector) RecordDecodeFailure(proto packet.Protocol) {
	c.agg(proto).DecodeFailures++
}

// RecordDutyCycleWarning records a duty-cycle exceedance.
func (c *Collector) RecordDutyCycleWarning(proto packet.Protocol) {
	c.agg(proto).DutyCycleWarnings++
}

// RecordAck records an emitted ACK bitmap with the number of bits set
// (bits_acked), used to derive ack_efficiency.
func (c *Collector) RecordAck(proto packet.Protocol, bitsSet int) {
	a := c.agg(proto)
	a.AcksSent++
	a.BitsAcked += uint64(bitsSet)
}

func (c *Collector) maybeSnapshot(now engine.Clock) {
	if c.CollectInterval <= 0 || now < c.WarmupMs {
		return
	}
	if now-c.lastSnapshot < c.CollectInterval {
		return
	}
	c.lastSnapshot = now
	for p, a := range c.aggs {
		c.snapshots = append(c.snapshots, Snapshot{now, p, *a})
	}
}

// Rows returns the post-warmup per-event transmission rows.
func (c *Collector) Rows() []Row {
	return c.rows
}

// Snapshots returns the periodic aggregate snapshots taken after warmup.
func (c *Collector) Snapshots() []Snapshot {
	return c.snapshots
}

// Finalize computes the derived Summary KPIs for every protocol that has
// recorded at least one event.
func (c *Collector) Finalize() map[packet.Protocol]Summary {
	out := make(map[packet.Protocol]Summary, len(c.aggs))
	for p, a := range c.aggs {
		s := Summary{
			UplinkBytes:     a.UplinkBytes,
			DownlinkBytes:   a.DownlinkBytes,
			TotalAirtimeMs:  a.UplinkAirtimeMs,
			CommandsApplied: a.CommandsApplied,
		}
		if total := a.UplinkSuccess + a.UplinkFailed; total > 0 {
			s.DeliveryRate = float64(a.UplinkSuccess) / float64(total)
		}
		if a.CmdLatencyCount > 0 {
			s.AvgCmdLatencyMs = a.CmdLatencySum / float64(a.CmdLatencyCount)
		}
		if a.TxCount > 0 {
			s.EnergyPerMsgMj = a.TotalEnergyMj / float64(a.TxCount)
		}
		if a.AcksSent > 0 {
			s.AckEfficiency = float64(a.BitsAcked) / float64(a.AcksSent)
		}
		out[p] = s
	}
	return out
}
