// SPDX-License-Identifier: GPL-3.0

package gateway

import (
	"encoding/binary"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/heistp/lpwansim/internal/config"
	"github.com/heistp/lpwansim/internal/engine"
	"github.com/heistp/lpwansim/internal/metrics"
	"github.com/heistp/lpwansim/internal/network"
	"github.com/heistp/lpwansim/internal/packet"
	"github.com/heistp/lpwansim/internal/protocol/compactps"
	"github.com/heistp/lpwansim/internal/protocol/novel"
	"github.com/heistp/lpwansim/internal/protocol/reqresp"
	"github.com/heistp/lpwansim/internal/traffic"
	"github.com/heistp/lpwansim/internal/units"
)

// expireSweepTick is the Ding payload for the periodic 60s expiry sweep.
type expireSweepTick struct{}

// cmdArrivalTick is the Ding payload for the downlink command generator.
type cmdArrivalTick struct{}

// downlinkSend is the Ding payload delivered once a downlink's RX-window
// delay plus airtime has elapsed; it is when the frame actually reaches
// the device, mirroring the coordinator's send_downlink task.
type downlinkSend struct {
	pkt  *packet.Packet
	cmds []*PendingCommand
}

const (
	defaultMaxDownlinkPayload = 50
	novelBudget               = 3
	baselineBudget            = 1
	expireSweepInterval       = 60 * engine.Second
)

// Gateway is the engine.Handler for the single gateway node: uplink
// receipt, per-device session bookkeeping, the command scheduler, the ACK
// tracker and the simulated MQTT bridge (§4.4).
type Gateway struct {
	Cfg       *config.Config
	Coord     *network.Coordinator
	Metrics   *metrics.Collector
	Prom      *metrics.Registry
	Devices   []engine.NodeID
	Protocols []packet.Protocol

	Scheduler *Scheduler
	Acks      *AckTracker

	novelSessions map[engine.NodeID]*novel.GatewaySession
	deviceTokens  map[engine.NodeID]uint8
	rng           *rand.Rand
	txCounter     uint64
	log           *logrus.Entry
}

// New returns a Gateway ready to be passed to engine.NewSim as a Handler.
// prom may be nil, in which case its operational counters are simply not
// incremented.
func New(cfg *config.Config, coord *network.Coordinator, mc *metrics.Collector, prom *metrics.Registry, devices []engine.NodeID, protocols []packet.Protocol, seed int64) *Gateway {
	return &Gateway{
		Cfg:           cfg,
		Coord:         coord,
		Metrics:       mc,
		Prom:          prom,
		Devices:       devices,
		Protocols:     protocols,
		Scheduler:     NewScheduler(cfg.Gateway.QueueSize, defaultMaxDownlinkPayload),
		Acks:          NewAckTracker(cfg.Protocols.Novel.AckWindowSize),
		novelSessions: make(map[engine.NodeID]*novel.GatewaySession),
		deviceTokens:  make(map[engine.NodeID]uint8),
		rng:           rand.New(rand.NewSource(seed)),
	}
}

// Start implements engine.Starter: kicks off the expiry sweeper and the
// downlink command generator.
func (g *Gateway) Start(n engine.Node) error {
	g.log = logrus.WithField("component", "gateway")
	n.Timer(expireSweepInterval, expireSweepTick{})
	if len(g.Devices) > 0 {
		n.Timer(g.nextCmdDelay(), cmdArrivalTick{})
	}
	return nil
}

// Ding implements engine.Dinger.
func (g *Gateway) Ding(data any, n engine.Node) error {
	switch ev := data.(type) {
	case expireSweepTick:
		removed := g.Scheduler.ExpireSweep(n.Now())
		for _, c := range removed {
			g.Metrics.RecordCommandExpired(c.Protocol)
		}
		if len(removed) > 0 {
			g.log.WithField("removed", len(removed)).Debug("expired commands swept")
		}
		n.Timer(expireSweepInterval, expireSweepTick{})
	case cmdArrivalTick:
		g.generateCommand(n)
		n.Timer(g.nextCmdDelay(), cmdArrivalTick{})
	case downlinkSend:
		g.onDownlinkSend(ev, n)
	}
	return nil
}

// Handle implements engine.Handler: uplink packet arrival from a device.
func (g *Gateway) Handle(p engine.Packet, n engine.Node) error {
	pkt, ok := p.(*packet.Packet)
	if !ok {
		return nil
	}
	g.Metrics.RecordGatewayRX(pkt)

	if pkt.Protocol == packet.Novel {
		g.handleNovelUplink(pkt, n)
	}
	g.forwardToMQTT(pkt)
	g.scheduleDownlinkOpportunity(pkt.Src, pkt.Protocol, n)
	return nil
}

func (g *Gateway) sessionFor(dev engine.NodeID) *novel.GatewaySession {
	s, ok := g.novelSessions[dev]
	if !ok {
		s = novel.NewGatewaySession()
		g.novelSessions[dev] = s
	}
	return s
}

func (g *Gateway) handleNovelUplink(pkt *packet.Packet, n engine.Node) {
	s := g.sessionFor(pkt.Src)
	if s.State == novel.Unknown {
		s.State = novel.Seen
	}
	s.LastSeqUplink = pkt.Seq
	s.LastSeenMs = n.Now()
	if len(s.Epochs) > 0 {
		s.State = novel.Active
	}
	if h, err := novel.DecodeHeader(pkt.Payload); err == nil {
		g.deviceTokens[pkt.Src] = h.TokenShort
	}
	g.Acks.AddPending(pkt.Src, pkt.Seq, n.Now())
}

// forwardToMQTT logs a simulated publish to the configured MQTT bridge; no
// broker is actually dialed, matching the reference implementation's stub.
func (g *Gateway) forwardToMQTT(pkt *packet.Packet) {
	if !g.Cfg.Gateway.MqttBridge.Enabled {
		return
	}
	qos := g.Cfg.Gateway.MqttBridge.QosMapping[pkt.QosTag.String()]
	g.log.WithFields(logrus.Fields{
		"topic": "devices/telemetry",
		"device": pkt.Src,
		"mqtt_qos": qos,
		"size": pkt.Size,
	}).Debug("mqtt publish")
}

// scheduleDownlinkOpportunity asks the scheduler for eligible commands for
// device/protocol, builds the corresponding downlink frame(s), and
// schedules their delivery after the channel's RX-window delay plus
// airtime.
func (g *Gateway) scheduleDownlinkOpportunity(dev engine.NodeID, proto packet.Protocol, n engine.Node) {
	budget := baselineBudget
	if proto == packet.Novel {
		budget = novelBudget
	}
	cmds := g.Scheduler.GetCommandsForDevice(dev, budget, n.Now(), g.Scheduler.MaxPayloadBytes, proto)
	if len(cmds) == 0 {
		return
	}

	switch proto {
	case packet.Novel:
		g.sendNovelDownlink(dev, cmds, n)
	case packet.CompactPS:
		for _, c := range cmds {
			g.sendCompactPSDownlink(dev, c, n)
		}
	case packet.ReqResp:
		for _, c := range cmds {
			g.sendReqRespDownlink(dev, c, n)
		}
	}
}

func (g *Gateway) sendNovelDownlink(dev engine.NodeID, cmds []*PendingCommand, n engine.Node) {
	ackBase, ackBitmap := g.Acks.GenerateAckBitmap(dev)

	wireCmds := make([]novel.Command, len(cmds))
	meta := make([]packet.CmdMeta, len(cmds))
	for i, c := range cmds {
		wireCmds[i] = novel.Command{CmdType: c.CmdType, Epoch: c.Epoch, Payload: c.Payload}
		meta[i] = packet.CmdMeta{CmdType: c.CmdType, CreatedMs: c.CreatedMs}
	}
	h := novel.Header{
		MsgType:    novel.MsgCmdResp,
		TopicClass: novel.TopicCmd,
		Seq:        ackBase,
		TokenShort: g.deviceTokens[dev],
	}
	frame := novel.EncodeDownlink(h, ackBitmap, wireCmds)
	g.Metrics.RecordAck(packet.Novel, popcount16(ackBitmap))
	pkt := g.send(dev, packet.Novel, frame, meta, cmds, n)
	pkt.AckBase = ackBase
	pkt.AckBitmap = ackBitmap
}

func (g *Gateway) sendCompactPSDownlink(dev engine.NodeID, cmd *PendingCommand, n engine.Node) {
	flags := compactps.QoS1 << 5
	frame := compactps.EncodePublish(flags, uint16(cmd.CmdType), uint16(cmd.CmdID), cmd.Payload)
	meta := []packet.CmdMeta{{CmdType: cmd.CmdType, CreatedMs: cmd.CreatedMs}}
	g.send(dev, packet.CompactPS, frame, meta, []*PendingCommand{cmd}, n)
}

func (g *Gateway) sendReqRespDownlink(dev engine.NodeID, cmd *PendingCommand, n engine.Node) {
	token := make([]byte, 4)
	binary.BigEndian.PutUint32(token, uint32(cmd.Epoch))
	frame := reqresp.EncodeResponse(uint16(cmd.CmdID), token, cmd.Payload)
	meta := []packet.CmdMeta{{CmdType: cmd.CmdType, CreatedMs: cmd.CreatedMs}}
	g.send(dev, packet.ReqResp, frame, meta, []*PendingCommand{cmd}, n)
}

// send computes channel parameters for a downlink frame and schedules its
// arrival after the RX-window delay plus airtime; on failure, eligible
// commands are requeued for retry. Returns the in-flight Packet so callers
// can attach protocol-specific fields (e.g. NOVEL's ack_base/ack_bitmap)
// before it is delivered.
func (g *Gateway) send(dev engine.NodeID, proto packet.Protocol, frame []byte, meta []packet.CmdMeta, cmds []*PendingCommand, n engine.Node) *packet.Packet {
	res := g.Coord.TransmitDownlink(g.rng, dev, n.Now(), units.Bytes(len(frame)))

	g.txCounter++
	pkt := packet.New(n.ID(), dev, proto, packet.Downlink, frame)
	pkt.ID = g.txCounter
	pkt.TsMs = n.Now()
	pkt.AirtimeMs = res.AirtimeMs
	pkt.SFOrRate = res.SFOrRate
	pkt.Delivered = res.Success
	pkt.Cmds = meta

	for _, c := range cmds {
		if !res.Success {
			requeued, evicted := g.Scheduler.RequeueFailed(c, n.Now())
			if !requeued {
				g.Metrics.RecordCommandExpired(c.Protocol)
			}
			for _, e := range evicted {
				g.Metrics.RecordCommandEvicted(e.Protocol)
			}
		}
	}

	delay := g.Coord.RXWindowDelay() + res.AirtimeMs
	n.Timer(delay, downlinkSend{pkt: pkt, cmds: cmds})
	return pkt
}

func (g *Gateway) onDownlinkSend(ev downlinkSend, n engine.Node) {
	g.Metrics.RecordGatewayTX(ev.pkt)
	g.Prom.RecordPacketTx(ev.pkt.Protocol)
	if ev.pkt.Delivered {
		n.Send(ev.pkt)
	}
}

// generateCommand samples one downlink command per §4.11 and queues it for
// every enabled protocol, so every protocol is compared against the same
// command stream.
func (g *Gateway) generateCommand(n engine.Node) {
	dev := g.Devices[g.rng.Intn(len(g.Devices))]
	pr := traffic.SamplePriority(g.rng, g.Cfg.Traffic.Downlink.PriorityDistribution)
	cmdType := traffic.SampleCmdType(g.rng)
	payload := traffic.GenerateCommandPayload(g.rng, cmdType, g.Cfg.Traffic.Downlink.PayloadBytes)

	for _, proto := range g.Protocols {
		g.QueueCommand(dev, cmdType, payload, pr.Priority, pr.DeadlineS, pr.Probability, proto, n.Now())
	}
}

// QueueCommand enqueues one downlink command for device/proto. For NOVEL,
// the gateway assigns the next epoch for cmd_type immediately (it is the
// single source of truth for epochs), matching the reference
// implementation's queue_command.
func (g *Gateway) QueueCommand(dev engine.NodeID, cmdType uint8, payload []byte, priority uint8, deadlineS, probability float64, proto packet.Protocol, now engine.Clock) {
	s := g.sessionFor(dev)
	epoch := s.NextEpoch(cmdType)

	maxRetries := 2
	for _, qc := range g.Cfg.Protocols.Novel.QoSClasses {
		if priorityName(priority) == qc.Name {
			maxRetries = qc.Retries
			break
		}
	}

	cmd := &PendingCommand{
		CmdID:      g.Scheduler.NextCmdID(),
		Device:     dev,
		Protocol:   proto,
		CmdType:    cmdType,
		Payload:    payload,
		Epoch:      epoch,
		Priority:   priority,
		DeadlineMs: now + engine.Clock(deadlineS*1000),
		CreatedMs:  now,
		ProbTarget: probability,
		MaxRetries: maxRetries,
	}
	evicted := g.Scheduler.Enqueue(cmd)
	for _, e := range evicted {
		g.Metrics.RecordCommandEvicted(e.Protocol)
	}
}

func (g *Gateway) nextCmdDelay() engine.Clock {
	return traffic.NextDownlinkDelay(g.rng, g.Cfg.Traffic.Downlink.Pattern, g.Cfg.Traffic.Downlink.MeanRatePerHour, len(g.Devices))
}

func priorityName(p uint8) string {
	switch p {
	case 0:
		return "critical"
	case 1:
		return "normal"
	default:
		return "best_effort"
	}
}

func popcount16(v uint16) int {
	n := 0
	for v != 0 {
		n += int(v & 1)
		v >>= 1
	}
	return n
}

