// SPDX-License-Identifier: GPL-3.0

package metrics

import (
	"testing"

	"github.com/heistp/lpwansim/internal/engine"
	"github.com/heistp/lpwansim/internal/packet"
	"github.com/stretchr/testify/require"
)

func TestDeliveryRateBounded(t *testing.T) {
	c := New(0, 0)
	for i := 0; i < 7; i++ {
		p := &packet.Packet{Protocol: packet.Novel, Direction: packet.Uplink, Delivered: i%3 != 0}
		c.RecordTransmission(engine.Clock(i), 0, p, 1)
	}
	s := c.Finalize()[packet.Novel]
	require.GreaterOrEqual(t, s.DeliveryRate, 0.0)
	require.LessOrEqual(t, s.DeliveryRate, 1.0)
	require.InDelta(t, 4.0/7.0, s.DeliveryRate, 1e-9)
}

func TestAckEfficiencyAtLeastOneWhenBitsSet(t *testing.T) {
	c := New(0, 0)
	c.RecordAck(packet.Novel, 3)
	c.RecordAck(packet.Novel, 5)
	s := c.Finalize()[packet.Novel]
	require.GreaterOrEqual(t, s.AckEfficiency, 1.0)
	require.LessOrEqual(t, s.AckEfficiency, 16.0)
}

func TestEnergyPerMsgDerivation(t *testing.T) {
	c := New(0, 0)
	p := &packet.Packet{Protocol: packet.Novel, Direction: packet.Uplink, Delivered: true}
	c.RecordTransmission(0, 0, p, 10)
	c.RecordTransmission(1, 0, p, 20)
	s := c.Finalize()[packet.Novel]
	require.InDelta(t, 15.0, s.EnergyPerMsgMj, 1e-9)
}

func TestWarmupFilterExcludesEarlyRows(t *testing.T) {
	c := New(1000, 0)
	p := &packet.Packet{Protocol: packet.Novel, Direction: packet.Uplink, Delivered: true}
	c.RecordTransmission(500, 0, p, 1)
	c.RecordTransmission(1500, 0, p, 1)
	require.Len(t, c.Rows(), 1)
	require.Equal(t, engine.Clock(1500), c.Rows()[0].TimestampMs)
}
