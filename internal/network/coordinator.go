// SPDX-License-Identifier: GPL-3.0

// Package network implements the coordinator that owns the radio channel
// and per-device duty-cycle accounting, and mediates every transmission
// between devices and the gateway (§4.3).
package network

import (
	"math/rand"

	"github.com/heistp/lpwansim/internal/engine"
	"github.com/heistp/lpwansim/internal/radio"
	"github.com/heistp/lpwansim/internal/units"
)

// NetworkType selects which radio channel model the coordinator uses.
type NetworkType uint8

const (
	LoRaWAN NetworkType = iota
	NBIoT
)

// TxResult describes the outcome of one physical transmission.
type TxResult struct {
	AirtimeMs       engine.Clock
	SFOrRate        int
	Success         bool
	DutyCycleExceed bool
}

// Coordinator owns the channel model shared by every device and the
// gateway. It is not an engine node: it has no independent timeline of its
// own in the reference simulator either, so it is invoked synchronously by
// the Device and Gateway handlers that do own timelines.
type Coordinator struct {
	Type     NetworkType
	LongR    *radio.LongRange
	NarrowB  *radio.NarrowBand
	rxWindow engine.Clock
}

// NewLoRaWANCoordinator returns a Coordinator over the long-range channel.
func NewLoRaWANCoordinator(dutyCycle float64, rx1DelayMs, rx2DelayMs engine.Clock) *Coordinator {
	lr := radio.NewLongRange(dutyCycle, rx1DelayMs, rx2DelayMs)
	return &Coordinator{Type: LoRaWAN, LongR: lr, rxWindow: lr.RXWindowDelay()}
}

// NewNBIoTCoordinator returns a Coordinator over the narrow-band channel.
func NewNBIoTCoordinator() *Coordinator {
	nb := radio.NewNarrowBand()
	return &Coordinator{Type: NBIoT, NarrowB: nb, rxWindow: nb.RXWindowDelay()}
}

// RXWindowDelay returns the delay before a downlink transmission begins.
func (c *Coordinator) RXWindowDelay() engine.Clock {
	return c.rxWindow
}

// TransmitUplink selects channel parameters, computes airtime, updates the
// device's duty-cycle budget (long-range only) and decides success. It does
// not itself advance virtual time; the caller is expected to schedule a
// Timer for AirtimeMs and act on the result when it fires.
func (c *Coordinator) TransmitUplink(rng *rand.Rand, dev engine.NodeID, now engine.Clock, size units.Bytes) TxResult {
	return c.transmit(rng, dev, now, size, radio.Up)
}

// TransmitDownlink is symmetric to TransmitUplink for the downlink
// direction. It does not include RXWindowDelay; the gateway adds that delay
// to AirtimeMs when it schedules delivery.
func (c *Coordinator) TransmitDownlink(rng *rand.Rand, dev engine.NodeID, now engine.Clock, size units.Bytes) TxResult {
	return c.transmit(rng, dev, now, size, radio.Down)
}

func (c *Coordinator) transmit(rng *rand.Rand, dev engine.NodeID, now engine.Clock, size units.Bytes, dir radio.Direction) TxResult {
	switch c.Type {
	case LoRaWAN:
		sf := c.LongR.SelectSF(rng)
		airtime := c.LongR.AirtimeForSF(size, sf)
		exceed := !c.LongR.CanTransmit(dev, now, airtime)
		c.LongR.RecordTransmit(dev, now, airtime)
		success := c.LongR.Success(sf, rng)
		return TxResult{AirtimeMs: airtime, SFOrRate: sf, Success: success, DutyCycleExceed: exceed}
	default:
		airtime, tag := c.NarrowB.Airtime(size, dir)
		success := c.NarrowB.Success(tag, rng)
		return TxResult{AirtimeMs: airtime, SFOrRate: tag, Success: success}
	}
}

// DutyCycleUsed returns the fraction of the trailing hour a device has
// used, for metrics/logging; zero for non-LoRaWAN coordinators.
func (c *Coordinator) DutyCycleUsed(dev engine.NodeID, now engine.Clock) float64 {
	if c.Type != LoRaWAN {
		return 0
	}
	return c.LongR.DutyCycleUsed(dev, now)
}
