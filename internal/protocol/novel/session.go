// SPDX-License-Identifier: GPL-3.0

package novel

import (
	"math/rand"

	"github.com/heistp/lpwansim/internal/engine"
)

// QoSClass is a QoS-D definition: a target delivery probability, a
// deadline, and a retry budget.
type QoSClass struct {
	Name       string
	Probability float64
	DeadlineS   float64
	MaxRetries  int
}

// DefaultQoSClasses are the three built-in QoS-D classes, keyed by priority.
var DefaultQoSClasses = map[uint8]QoSClass{
	PrioCritical:   {"critical", .99, 60, 3},
	PrioNormal:     {"normal", .90, 3600, 2},
	PrioBestEffort: {"best_effort", .50, 86400, 0},
}

// DeviceSession is the minimal per-device state NOVEL requires, held only
// at the device: a session token, uplink/downlink sequence counters, and a
// per-cmd_type epoch high-water mark.
type DeviceSession struct {
	Token                   []byte
	NextSeqUplink           uint16
	NextSeqDownlinkExpected uint16
	Flags                   uint8
	Epochs                  map[uint8]uint8
}

// NewDeviceSession returns a DeviceSession with a randomly seeded token of
// tokenSize bytes.
func NewDeviceSession(tokenSize int, rng *rand.Rand) *DeviceSession {
	tok := make([]byte, tokenSize)
	rng.Read(tok)
	return &DeviceSession{
		Token:  tok,
		Epochs: make(map[uint8]uint8),
	}
}

// TokenShort returns the LSB of the session token, carried in every header.
func (s *DeviceSession) TokenShort() uint8 {
	if len(s.Token) == 0 {
		return 0
	}
	return s.Token[len(s.Token)-1]
}

// StateSizeBytes approximates the on-device footprint: token + 2 seq
// fields + flags + one epoch byte per tracked cmd_type.
func (s *DeviceSession) StateSizeBytes() int {
	return len(s.Token) + 2 + 2 + 1 + len(s.Epochs)
}

// Apply enforces the epoch idempotency rule for cmd_type: returns true if
// epoch is newer than the last applied epoch for this cmd_type (and
// records it), false if it's a duplicate to be discarded.
func (s *DeviceSession) Apply(cmdType, epoch uint8) bool {
	last, ok := s.Epochs[cmdType]
	if ok && epoch <= last {
		return false
	}
	s.Epochs[cmdType] = epoch
	return true
}

// GatewayDeviceState is the gateway-side per-device state machine.
type GatewayDeviceState uint8

const (
	Unknown GatewayDeviceState = iota
	Seen
	Active
)

// GatewaySession is the server-side NOVEL session the gateway keeps per
// device: the gateway is the source of truth for command epochs.
type GatewaySession struct {
	Token         []byte
	LastSeqUplink uint16
	LastSeenMs    engine.Clock
	Epochs        map[uint8]uint8
	State         GatewayDeviceState
}

// NewGatewaySession creates a lazily-initialized gateway-side session.
func NewGatewaySession() *GatewaySession {
	return &GatewaySession{Epochs: make(map[uint8]uint8), State: Unknown}
}

// NextEpoch returns the next epoch value for cmd_type, advancing and
// recording it so the gateway remains the single source of truth.
func (s *GatewaySession) NextEpoch(cmdType uint8) uint8 {
	e := (s.Epochs[cmdType] + 1) % 256
	s.Epochs[cmdType] = e
	return e
}
