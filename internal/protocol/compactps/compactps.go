// SPDX-License-Identifier: GPL-3.0

// Package compactps implements COMPACT-PS, a compact publish/subscribe
// protocol patterned on MQTT-SN, used as a baseline against NOVEL.
package compactps

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Message types.
const (
	MsgAdvertise uint8 = 0x00
	MsgConnect   uint8 = 0x04
	MsgConnAck   uint8 = 0x05
	MsgRegister  uint8 = 0x0A
	MsgRegAck    uint8 = 0x0B
	MsgPublish   uint8 = 0x0C
	MsgPubAck    uint8 = 0x0D
	MsgPingReq   uint8 = 0x16
	MsgPingResp  uint8 = 0x17
)

// Fixed frame sizes used for overhead bookkeeping, matching the reference
// protocol's distinct ACK/connect/register/keep-alive frames.
const (
	PublishHeaderSize = 7 // length + msg_type + flags + topic_id(2) + msg_id(2)
	ConnectSize       = 10
	ConnAckSize       = 3
	PubAckSize        = 7
	PingReqSize       = 2
	PingRespSize      = 2
)

// QoS levels, carried in bits 5-6 of flags.
const (
	QoS0        uint8 = 0
	QoS1        uint8 = 1
	QoS2        uint8 = 2
	QoSNegative uint8 = 3 // encodes QoS -1 ("no connection" publish)
)

// Publish is a decoded COMPACT-PS PUBLISH frame.
type Publish struct {
	Flags   uint8
	TopicID uint16
	MsgID   uint16
	Data    []byte
}

// QoS returns the QoS level carried in bits 5-6 of Flags.
func (p Publish) QoS() uint8 {
	return (p.Flags >> 5) & 0x03
}

// EncodePublish builds a PUBLISH frame:
// {length:8, msg_type:8, flags:8, topic_id:16, msg_id:16, data:*}. length
// is the total frame size, including the length byte itself.
func EncodePublish(flags uint8, topicID, msgID uint16, data []byte) []byte {
	total := PublishHeaderSize + len(data)
	b := make([]byte, 0, total)
	b = append(b, uint8(total), MsgPublish, flags)
	tb := make([]byte, 4)
	binary.BigEndian.PutUint16(tb[0:2], topicID)
	binary.BigEndian.PutUint16(tb[2:4], msgID)
	b = append(b, tb...)
	b = append(b, data...)
	return b
}

// DecodePublish parses a PUBLISH frame.
func DecodePublish(frame []byte) (Publish, error) {
	if len(frame) < PublishHeaderSize {
		return Publish{}, errors.Errorf("compactps: publish frame too short: %d bytes", len(frame))
	}
	if frame[1] != MsgPublish {
		return Publish{}, errors.Errorf("compactps: expected PUBLISH, got msg_type %#x", frame[1])
	}
	return Publish{
		Flags:   frame[2],
		TopicID: binary.BigEndian.Uint16(frame[3:5]),
		MsgID:   binary.BigEndian.Uint16(frame[5:7]),
		Data:    frame[7:],
	}, nil
}

// QoSFromClass maps a telemetry QoS class to a COMPACT-PS QoS level,
// matching the reference protocol's mapping.
func QoSFromClass(critical, bestEffort bool) uint8 {
	switch {
	case critical:
		return QoS1
	case bestEffort:
		return QoS0
	default:
		return QoS1
	}
}

// KeepaliveOverheadPerHour returns the PINGREQ/PINGRESP overhead per hour
// for a given keep-alive interval in seconds.
func KeepaliveOverheadPerHour(keepAliveS float64) int {
	pingsPerHour := 3600 / keepAliveS
	return int(pingsPerHour * float64(PingReqSize+PingRespSize))
}
