// SPDX-License-Identifier: GPL-3.0

package device

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

// sink is a minimal engine.Handler standing in for the gateway, just
// absorbing whatever uplinks a Device sends it.
type sink struct{}

func (sink) Handle(p engine.Packet, n engine.Node) error { return nil }

func testCfg() *config.Config {
	c := config.Default()
	c.Traffic.Uplink.IntervalS = 1
	c.Traffic.Uplink.JitterRatio = 0
	return c
}

func TestPowerIntegratorChargesElapsedAtPreviousLevel(t *testing.T) {
	cfg := testCfg()
	coord := network.NewLoRaWANCoordinator(cfg.Network.LoRaWAN.DutyCycle, 1000, 2000)
	mc := metrics.New(0, 0)
	d := New(1, cfg, coord, mc, metrics.NewRegistry(), []packet.Protocol{packet.Novel}, 1)

	d.powState = stateIdle
	d.powLastMs = 0
	d.changePowerState(stateTX, 1000)
	require.InDelta(t, 1000*cfg.Device.Power.IdleMw/1000, d.EnergyConsumedMj(), 1e-9)

	d.changePowerState(stateIdle, 1500)
	want := 1000*cfg.Device.Power.IdleMw/1000 + 500*d.txPowerMw()/1000
	require.InDelta(t, want, d.EnergyConsumedMj(), 1e-9)
}

func TestSequenceAdvancesOnEveryAttemptRegardlessOfDelivery(t *testing.T) {
	cfg := testCfg()
	coord := network.NewLoRaWANCoordinator(cfg.Network.LoRaWAN.DutyCycle, 1000, 2000)
	mc := metrics.New(0, 0)
	d := New(1, cfg, coord, mc, metrics.NewRegistry(), []packet.Protocol{packet.Novel}, 1)
	d.novelSess = novel.NewDeviceSession(cfg.Protocols.Novel.TokenSizeBytes, rand.New(rand.NewSource(1)))

	before := d.novelSess.NextSeqUplink

	d.advanceSeq(packet.Novel)
	require.Equal(t, before+1, d.novelSess.NextSeqUplink)

	d.advanceSeq(packet.Novel)
	require.Equal(t, before+2, d.novelSess.NextSeqUplink)
}

func TestWakeCycleSendsOncePerEnabledProtocol(t *testing.T) {
	cfg := testCfg()
	coord := network.NewLoRaWANCoordinator(cfg.Network.LoRaWAN.DutyCycle, 1000, 2000)
	mc := metrics.New(0, 0)
	protos := []packet.Protocol{packet.Novel, packet.CompactPS, packet.ReqResp}
	d := New(1, cfg, coord, mc, metrics.NewRegistry(), protos, 1)

	sim := engine.NewSim([]engine.Handler{d, sink{}})
	sim.Until(5000)
	require.NoError(t, sim.Run())

	rows := mc.Rows()
	seen := map[packet.Protocol]int{}
	for _, r := range rows {
		if r.Direction == packet.Uplink {
			seen[r.Protocol]++
		}
	}
	require.Greater(t, seen[packet.Novel], 0)
	require.Greater(t, seen[packet.CompactPS], 0)
	require.Greater(t, seen[packet.ReqResp], 0)
}
