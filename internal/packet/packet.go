// SPDX-License-Identifier: GPL-3.0

// Package packet defines the wire-agnostic Packet record shared by every
// protocol codec, radio channel and the metrics collector.
package packet

import (
	"github.com/heistp/lpwansim/internal/engine"
	"github.com/heistp/lpwansim/internal/units"
)

// Direction is the direction of travel of a Packet.
type Direction uint8

const (
	Uplink Direction = iota
	Downlink
)

func (d Direction) String() string {
	if d == Uplink {
		return "uplink"
	}
	return "downlink"
}

// Protocol identifies which of the three compared protocols produced a
// Packet.
type Protocol uint8

const (
	Novel Protocol = iota
	CompactPS
	ReqResp
)

func (p Protocol) String() string {
	switch p {
	case Novel:
		return "novel"
	case CompactPS:
		return "compact-ps"
	case ReqResp:
		return "reqresp"
	default:
		return "unknown"
	}
}

// QoS is the priority/QoS class of a Packet or command, shared across
// protocols even though only NOVEL names it QoS-D.
type QoS uint8

const (
	Critical QoS = iota
	Normal
	BestEffort
)

func (q QoS) String() string {
	switch q {
	case Critical:
		return "critical"
	case Normal:
		return "normal"
	case BestEffort:
		return "best_effort"
	default:
		return "unknown"
	}
}

// Packet is a single radio transmission, uplink or downlink, in any of the
// three protocols. Fields not meaningful for a given protocol or direction
// are left at their zero value. The channel sets AirtimeMs, SFOrRate and
// Delivered exactly once, during transmission; every other field is set by
// the codec or the gateway at creation.
type Packet struct {
	ID        uint64
	Src       engine.NodeID
	Dst       engine.NodeID
	Protocol  Protocol
	Direction Direction
	Payload   []byte
	Size      units.Bytes
	TsMs      engine.Clock
	QosTag    QoS
	Priority  uint8
	Seq       uint16

	// NOVEL-only ACK/epoch fields.
	AckBase   uint16
	AckBitmap uint16
	Epoch     uint8

	// Cmds carries per-command bookkeeping (creation time, for latency
	// metrics) alongside a downlink's wire payload. It is simulator-only:
	// never encoded on the wire, and parallel to whatever commands the
	// protocol codec packed into Payload.
	Cmds []CmdMeta

	// Set exactly once by the channel during transmission.
	AirtimeMs engine.Clock
	SFOrRate  int
	Delivered bool
	Retries   int
}

// CmdMeta is the simulator-only bookkeeping carried alongside a downlink
// command, used to compute commands_applied latency without re-deriving it
// from the wire frame.
type CmdMeta struct {
	CmdType   uint8
	CreatedMs engine.Clock
}

// Destination implements engine.Packet.
func (p *Packet) Destination() engine.NodeID {
	return p.Dst
}

// New returns a Packet with Size derived from len(payload), matching the
// size == len(payload) invariant.
func New(src, dst engine.NodeID, proto Protocol, dir Direction, payload []byte) *Packet {
	return &Packet{
		Src:       src,
		Dst:       dst,
		Protocol:  proto,
		Direction: dir,
		Payload:   payload,
		Size:      units.Bytes(len(payload)),
	}
}
