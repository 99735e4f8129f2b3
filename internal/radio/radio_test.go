// SPDX-License-Identifier: GPL-3.0

package radio

import (
	"math"
	"math/rand"
	"testing"

	"github.com/heistp/lpwansim/internal/engine"
	"github.com/heistp/lpwansim/internal/units"
	"github.com/stretchr/testify/require"
)

func TestLongRangeAirtimeFormula(t *testing.T) {
	lr := NewLongRange(0.01, 1000, 2000)
	for sf := 7; sf <= 12; sf++ {
		size := units.Bytes(32)
		got := lr.AirtimeForSF(size, sf)
		want := Preamble(sf) + float64(size+8)*toaPerByte[sf]
		require.InDelta(t, want, float64(got), 0.5)
	}
}

func TestLongRangeRX1OnlyDelay(t *testing.T) {
	lr := NewLongRange(0.01, 1000, 2000)
	require.Equal(t, engine.Clock(1000), lr.RXWindowDelay())
}

func TestDutyCycleSlidingWindow(t *testing.T) {
	lr := NewLongRange(0.01, 1000, 2000)
	dev := engine.NodeID(0)
	budget := engine.Clock(float64(engine.Hour) * 0.01)

	var now engine.Clock
	for i := 0; i < 100; i++ {
		airtime := engine.Clock(50)
		if lr.CanTransmit(dev, now, airtime) {
			lr.RecordTransmit(dev, now, airtime)
		}
		require.LessOrEqual(t, int64(lr.DutyCycleUsed(dev, now)*float64(engine.Hour)), int64(budget)+50)
		now += 100
	}
}

func TestNarrowBandAirtimeRateBased(t *testing.T) {
	nb := NewNarrowBand()
	size := units.Bytes(20)
	ms, tag := nb.Airtime(size, Up)
	require.Equal(t, 0, tag)
	want := float64(size) * 8 / nb.UplinkRate.Kbps()
	// Airtime is a whole-millisecond Clock: the fractional part is truncated.
	require.Equal(t, engine.Clock(want), ms)
}

func TestNarrowBandLowPER(t *testing.T) {
	nb := NewNarrowBand()
	rng := rand.New(rand.NewSource(1))
	fails := 0
	const n = 100000
	for i := 0; i < n; i++ {
		if !nb.Success(0, rng) {
			fails++
		}
	}
	require.InDelta(t, narrowBandPER, float64(fails)/float64(n), 0.002)
}

func TestLongRangeSFWeightedSelection(t *testing.T) {
	lr := NewLongRange(0.01, 1000, 2000)
	rng := rand.New(rand.NewSource(42))
	counts := make(map[int]int)
	const n = 100000
	for i := 0; i < n; i++ {
		counts[lr.SelectSF(rng)]++
	}
	require.InDelta(t, 0.30, float64(counts[7])/n, 0.02)
	require.InDelta(t, 0.03, float64(counts[12])/n, 0.01)
	var total int
	for _, c := range counts {
		total += c
	}
	require.Equal(t, n, total)
}

func TestLongRangePEROverride(t *testing.T) {
	lr := NewLongRange(0.01, 1000, 2000)
	lr.OverridePER(0)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		require.True(t, lr.Success(7, rng))
	}
}

func TestPreambleMonotonicInSF(t *testing.T) {
	var last float64
	for sf := 7; sf <= 12; sf++ {
		p := Preamble(sf)
		require.Greater(t, p, last)
		last = p
	}
	require.False(t, math.IsNaN(Preamble(7)))
}
