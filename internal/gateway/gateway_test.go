// SPDX-License-Identifier: GPL-3.0

package gateway

import (
	"math/rand"
	"testing"

	"github.com/heistp/lpwansim/internal/config"
	"github.com/heistp/lpwansim/internal/engine"
	"github.com/heistp/lpwansim/internal/metrics"
	"github.com/heistp/lpwansim/internal/network"
	"github.com/heistp/lpwansim/internal/packet"
	"github.com/heistp/lpwansim/internal/protocol/novel"
	"github.com/stretchr/testify/require"
)

func testGateway() (*Gateway, *metrics.Collector) {
	cfg := config.Default()
	coord := network.NewLoRaWANCoordinator(cfg.Network.LoRaWAN.DutyCycle, 1000, 2000)
	mc := metrics.New(0, 0)
	g := New(cfg, coord, mc, metrics.NewRegistry(), []engine.NodeID{0}, []packet.Protocol{packet.Novel}, 1)
	return g, mc
}

// fakeNode is a minimal engine.Node for exercising Gateway methods directly,
// without running them through a full Sim.
type fakeNode struct {
	now    engine.Clock
	id     engine.NodeID
	timers []struct {
		delay engine.Clock
		data  any
	}
	sent []engine.Packet
}

func (f *fakeNode) Now() engine.Clock { return f.now }
func (f *fakeNode) ID() engine.NodeID { return f.id }
func (f *fakeNode) Timer(delay engine.Clock, data any) {
	f.timers = append(f.timers, struct {
		delay engine.Clock
		data  any
	}{delay, data})
}
func (f *fakeNode) Send(p engine.Packet) { f.sent = append(f.sent, p) }

func TestQueueCommandAssignsIncrementingEpochsPerCmdType(t *testing.T) {
	g, _ := testGateway()
	n := &fakeNode{id: 99}

	g.QueueCommand(0, 3, []byte{1}, 1, 3600, 0.9, packet.Novel, n.Now())
	g.QueueCommand(0, 3, []byte{2}, 1, 3600, 0.9, packet.Novel, n.Now())
	g.QueueCommand(0, 5, []byte{9}, 1, 3600, 0.9, packet.Novel, n.Now())

	require.Equal(t, 3, g.Scheduler.QueueLen(0))
	cmds := g.Scheduler.GetCommandsForDevice(0, 10, n.Now(), 1000, packet.Novel)
	require.Len(t, cmds, 3)

	var epochsForType3 []uint8
	for _, c := range cmds {
		if c.CmdType == 3 {
			epochsForType3 = append(epochsForType3, c.Epoch)
		}
	}
	require.Equal(t, []uint8{1, 2}, epochsForType3)
}

func TestNovelUplinkSeedsGatewaySessionAndMarksSeen(t *testing.T) {
	g, _ := testGateway()
	n := &fakeNode{id: 1}

	sess := novel.NewDeviceSession(12, rand.New(rand.NewSource(1)))
	h := novel.Header{MsgType: novel.MsgTelemetry, Priority: novel.PrioNormal, TopicClass: novel.TopicTelemetry, Seq: 5, TokenShort: sess.TokenShort()}
	frame := novel.EncodeUplink(h, []byte{1, 2, 3})
	pkt := packet.New(0, 1, packet.Novel, packet.Uplink, frame)
	pkt.Seq = 5

	require.NoError(t, g.Handle(pkt, n))

	gs := g.sessionFor(0)
	require.Equal(t, novel.Seen, gs.State)
	require.Equal(t, uint16(5), gs.LastSeqUplink)
	require.Equal(t, 1, g.Acks.PendingCount(0))
}

func TestExpireSweepRemovesPastDeadlineCommands(t *testing.T) {
	g, mc := testGateway()
	_ = mc
	n := &fakeNode{id: 99}

	g.QueueCommand(0, 1, []byte{1}, 2, 1, 0.5, packet.Novel, n.Now())
	require.Equal(t, 1, g.Scheduler.QueueLen(0))

	removed := g.Scheduler.ExpireSweep(engine.Clock(5000))
	require.Len(t, removed, 1)
	require.Equal(t, 0, g.Scheduler.QueueLen(0))
}

