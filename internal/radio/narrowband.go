// SPDX-License-Identifier: GPL-3.0

package radio

import (
	"math/rand"

	"github.com/heistp/lpwansim/internal/engine"
	"github.com/heistp/lpwansim/internal/units"
)

// Direction distinguishes uplink from downlink for channels whose airtime
// or loss model depends on direction (narrow-band).
type Direction uint8

const (
	Up Direction = iota
	Down
)

// defaultUplinkRate and defaultDownlinkRate are the narrow-band channel's
// fixed rates.
const (
	defaultUplinkRate   = 62.5 * units.Kbps
	defaultDownlinkRate = 27.2 * units.Kbps
	narrowBandPER       = 0.001
)

// NarrowBand models the NB-IoT-like cellular channel: rate-based airtime, a
// fixed low packet error rate, and no duty-cycle constraint.
type NarrowBand struct {
	UplinkRate   units.Bitrate
	DownlinkRate units.Bitrate
	overridePER  *float64
}

// NewNarrowBand returns a NarrowBand channel with the default rates.
func NewNarrowBand() *NarrowBand {
	return &NarrowBand{
		UplinkRate:   defaultUplinkRate,
		DownlinkRate: defaultDownlinkRate,
	}
}

// OverridePER forces the packet error rate to the given value.
func (n *NarrowBand) OverridePER(per float64) {
	n.overridePER = &per
}

// Airtime returns the time on air in milliseconds for a frame of the given
// size and direction. sfOrRate carries back 0 for uplink, 1 for downlink,
// since NarrowBand has no per-frame spreading factor; Success looks the
// direction back up via that tag.
func (n *NarrowBand) Airtime(size units.Bytes, dir Direction) (engine.Clock, int) {
	rate := n.UplinkRate
	tag := 0
	if dir == Down {
		rate = n.DownlinkRate
		tag = 1
	}
	return engine.Clock(rate.TransmitMillis(size)), tag
}

// Success reports whether a transmission succeeds, given the direction tag
// returned by Airtime.
func (n *NarrowBand) Success(sfOrRate int, rng *rand.Rand) bool {
	per := narrowBandPER
	if n.overridePER != nil {
		per = *n.overridePER
	}
	return rng.Float64() >= per
}

// RXWindowDelay returns the downlink RX-window delay; NB-IoT has none modeled.
func (n *NarrowBand) RXWindowDelay() engine.Clock {
	return 0
}
