// SPDX-License-Identifier: GPL-3.0

// Package traffic provides the pure sampling functions behind the uplink
// and downlink traffic generators (§4.11). The generators themselves have
// no independent timeline of their own — like the network coordinator,
// they are invoked synchronously from the Device and Gateway handlers that
// do own timelines — so this package only supplies the random draws.
package traffic

import (
	"math"
	"math/rand"

	"github.com/heistp/lpwansim/internal/config"
	"github.com/heistp/lpwansim/internal/engine"
	"github.com/heistp/lpwansim/internal/packet"
)

// NextUplinkDelay samples the next uplink inter-arrival time in
// milliseconds for the given pattern, floored at one second.
func NextUplinkDelay(rng *rand.Rand, pattern string, intervalS, jitterRatio float64) engine.Clock {
	intervalMs := intervalS * 1000
	var ms float64
	switch pattern {
	case "poisson":
		ms = -intervalMs * math.Log(1-rng.Float64())
	case "event_driven":
		ms = -2 * intervalMs * math.Log(1-rng.Float64())
	default: // periodic
		jitter := (rng.Float64()*2 - 1) * jitterRatio
		ms = intervalMs * (1 + jitter)
	}
	if ms < 1000 {
		ms = 1000
	}
	return engine.Clock(ms)
}

// SampleUplinkQoS draws telemetry QoS per §4.11: 30% normal, 70% best_effort.
func SampleUplinkQoS(rng *rand.Rand) packet.QoS {
	if rng.Float64() < 0.3 {
		return packet.Normal
	}
	return packet.BestEffort
}

// GenerateTelemetryPayload builds a synthetic sensor reading (temperature,
// humidity, battery as big-endian float32s) padded or truncated to size.
func GenerateTelemetryPayload(rng *rand.Rand, size int) []byte {
	if size <= 0 {
		size = 20
	}
	b := make([]byte, size)
	putFloat32(b, 0, float32(15+rng.Float64()*20))
	putFloat32(b, 4, float32(30+rng.Float64()*50))
	putFloat32(b, 8, float32(2.8+rng.Float64()*1.4))
	return b
}

func putFloat32(b []byte, off int, v float32) {
	if off+4 > len(b) {
		return
	}
	bits := math.Float32bits(v)
	b[off] = byte(bits >> 24)
	b[off+1] = byte(bits >> 16)
	b[off+2] = byte(bits >> 8)
	b[off+3] = byte(bits)
}

// CmdPriority is a sampled downlink command priority with its associated
// deadline and target delivery probability, per §4.11's fixed per-priority
// table.
type CmdPriority struct {
	Priority    uint8 // novel.PrioCritical/Normal/BestEffort
	DeadlineS   float64
	Probability float64
}

// SamplePriority draws a command priority from the configured distribution
// and returns its fixed deadline/probability pair.
func SamplePriority(rng *rand.Rand, w config.PriorityWeights) CmdPriority {
	r := rng.Float64()
	switch {
	case r < w.Critical:
		return CmdPriority{0, 600, 0.99}
	case r < w.Critical+w.Normal:
		return CmdPriority{1, 3600, 0.90}
	default:
		return CmdPriority{2, 86400, 0.50}
	}
}

// SampleCmdType draws a command type in [0,8), matching the NOVEL cmd_type
// range.
func SampleCmdType(rng *rand.Rand) uint8 {
	return uint8(rng.Intn(8))
}

// GenerateCommandPayload builds a synthetic command payload shaped by
// cmd_type, matching the reference generator's per-type encodings.
func GenerateCommandPayload(rng *rand.Rand, cmdType uint8, defaultSize int) []byte {
	switch cmdType {
	case 0: // configuration update: new reporting interval, seconds
		v := uint16(60 + rng.Intn(840))
		return []byte{byte(v >> 8), byte(v)}
	case 1: // threshold update
		bits := math.Float32bits(float32(rng.Float64() * 100))
		return []byte{byte(bits >> 24), byte(bits >> 16), byte(bits >> 8), byte(bits)}
	case 2: // mode change
		return []byte{byte(rng.Intn(4))}
	case 3: // actuator command
		return []byte{byte(rng.Intn(2))}
	case 4: // time sync
		ts := uint32(rng.Int31())
		return []byte{byte(ts >> 24), byte(ts >> 16), byte(ts >> 8), byte(ts)}
	default:
		if defaultSize <= 0 {
			defaultSize = 8
		}
		b := make([]byte, defaultSize)
		rng.Read(b)
		return b
	}
}

// NextDownlinkDelay samples the next downlink-command arrival time in
// milliseconds, given the aggregate rate across all devices.
func NextDownlinkDelay(rng *rand.Rand, pattern string, meanRatePerHour float64, numDevices int) engine.Clock {
	totalRatePerMs := meanRatePerHour * float64(numDevices) / 3600000
	var ms float64
	switch pattern {
	case "bursty":
		if rng.Float64() < 0.1 {
			ms = -1000 * math.Log(1-rng.Float64())
		} else if totalRatePerMs > 0 {
			ms = -(1 / totalRatePerMs) * math.Log(1-rng.Float64())
		} else {
			ms = 60000
		}
	case "scheduled":
		if meanRatePerHour > 0 {
			ms = 3600000 / meanRatePerHour
		} else {
			ms = 3600000
		}
	default: // uniform
		if totalRatePerMs > 0 {
			ms = 1 / totalRatePerMs
		} else {
			ms = 60000
		}
	}
	if ms < 100 {
		ms = 100
	}
	return engine.Clock(ms)
}
