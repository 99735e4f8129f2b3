// SPDX-License-Identifier: GPL-3.0

// Package novel implements the NOVEL LPWAN-native protocol: a 5-byte
// compact header, a micro-session token, windowed bitmap ACKs, QoS-D and
// epoch-based idempotent commands.
package novel

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Message types, 3 bits.
const (
	MsgTelemetry uint8 = iota
	MsgCmdPull
	MsgCmdResp
	MsgAckBitmap
	MsgControl
)

// Priority classes, 2 bits.
const (
	PrioCritical uint8 = iota
	PrioNormal
	PrioBestEffort
)

// Topic classes, 3 bits.
const (
	TopicTelemetry uint8 = iota
	TopicAlarm
	TopicConfig
	TopicFirmware
	TopicStatus
	TopicCmd
	TopicAck
	TopicReserved
)

// HeaderSize is the fixed size of a NOVEL header in bytes.
const HeaderSize = 5

// Header is the 5-byte NOVEL frame header shared by uplink and downlink.
type Header struct {
	MsgType    uint8
	Priority   uint8
	TopicClass uint8
	Seq        uint16
	Flags      uint8
	TokenShort uint8
}

// Encode serializes the header to its 5-byte wire form.
func (h Header) Encode() []byte {
	b := make([]byte, HeaderSize)
	b[0] = (h.MsgType&0x07)<<5 | (h.Priority&0x03)<<3 | (h.TopicClass & 0x07)
	binary.BigEndian.PutUint16(b[1:3], h.Seq)
	b[3] = h.Flags
	b[4] = h.TokenShort
	return b
}

// DecodeHeader parses a 5-byte NOVEL header, returning a decode-failure
// error if data is shorter than HeaderSize.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, errors.Errorf("novel: header too short: %d bytes", len(data))
	}
	b0 := data[0]
	return Header{
		MsgType:    (b0 >> 5) & 0x07,
		Priority:   (b0 >> 3) & 0x03,
		TopicClass: b0 & 0x07,
		Seq:        binary.BigEndian.Uint16(data[1:3]),
		Flags:      data[3],
		TokenShort: data[4],
	}, nil
}
