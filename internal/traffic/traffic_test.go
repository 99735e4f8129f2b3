// SPDX-License-Identifier: GPL-3.0

package traffic

import (
	"math/rand"
	"testing"

	"github.com/heistp/lpwansim/internal/config"
	"github.com/heistp/lpwansim/internal/packet"
	"github.com/stretchr/testify/require"
)

func TestNextUplinkDelayPeriodicJitterBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const intervalS = 600.0
	const jitter = 0.1
	for i := 0; i < 1000; i++ {
		ms := NextUplinkDelay(rng, "periodic", intervalS, jitter)
		require.GreaterOrEqual(t, int64(ms), int64(intervalS*1000*(1-jitter)))
		require.LessOrEqual(t, int64(ms), int64(intervalS*1000*(1+jitter))+1)
	}
}

func TestNextUplinkDelayFloor(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	ms := NextUplinkDelay(rng, "poisson", 0.001, 0.1)
	require.GreaterOrEqual(t, int64(ms), int64(1000))
}

func TestSampleUplinkQoSDistribution(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	normal := 0
	const n = 100000
	for i := 0; i < n; i++ {
		if SampleUplinkQoS(rng) != packet.BestEffort {
			normal++
		}
	}
	require.InDelta(t, 0.3, float64(normal)/n, 0.02)
}

func TestGenerateTelemetryPayloadSize(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p := GenerateTelemetryPayload(rng, 20)
	require.Len(t, p, 20)
	p2 := GenerateTelemetryPayload(rng, 0)
	require.Len(t, p2, 20)
}

func TestSamplePriorityWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	w := config.PriorityWeights{Critical: 0.05, Normal: 0.25, BestEffort: 0.70}
	counts := map[uint8]int{}
	const n = 100000
	for i := 0; i < n; i++ {
		counts[SamplePriority(rng, w).Priority]++
	}
	require.InDelta(t, 0.05, float64(counts[0])/n, 0.01)
	require.InDelta(t, 0.25, float64(counts[1])/n, 0.01)
	require.InDelta(t, 0.70, float64(counts[2])/n, 0.01)
}

func TestSampleCmdTypeRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		ct := SampleCmdType(rng)
		require.Less(t, ct, uint8(8))
	}
}

func TestGenerateCommandPayloadShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	require.Len(t, GenerateCommandPayload(rng, 0, 8), 2)
	require.Len(t, GenerateCommandPayload(rng, 1, 8), 4)
	require.Len(t, GenerateCommandPayload(rng, 2, 8), 1)
	require.Len(t, GenerateCommandPayload(rng, 3, 8), 1)
	require.Len(t, GenerateCommandPayload(rng, 4, 8), 4)
	require.Len(t, GenerateCommandPayload(rng, 7, 8), 8)
}

func TestNextDownlinkDelayFloor(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	ms := NextDownlinkDelay(rng, "uniform", 0, 0)
	require.GreaterOrEqual(t, int64(ms), int64(100))
}
