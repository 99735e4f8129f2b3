// SPDX-License-Identifier: GPL-3.0

// Package reqresp implements REQ-RESP, a constrained-node request/response
// protocol patterned on CoAP, used as a baseline against NOVEL.
package reqresp

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Message types.
const (
	TypeCON uint8 = 0
	TypeNON uint8 = 1
	TypeACK uint8 = 2
	TypeRST uint8 = 3
)

// Methods and response codes.
const (
	MethodGet  uint8 = 1
	MethodPost uint8 = 2
	MethodPut  uint8 = 3

	CodeContent uint8 = 0x45 // 2.05, used for downlink command responses
)

// DefaultTokenSize is the default token length in bytes.
const DefaultTokenSize = 4

// payloadMarker separates options from the payload, as in CoAP.
const payloadMarker = 0xFF

// uriPathData is the fixed single-option Uri-Path ("/data") the reference
// protocol attaches to every uplink request.
var uriPathData = append([]byte{0xB4}, []byte("data")...)

// Request is a decoded REQ-RESP uplink request.
type Request struct {
	Type    uint8
	Code    uint8
	MsgID   uint16
	Token   []byte
	Payload []byte
}

// Response is a decoded REQ-RESP downlink response.
type Response struct {
	Type    uint8
	Code    uint8
	MsgID   uint16
	Token   []byte
	Payload []byte
}

// EncodeRequest builds an uplink frame:
// {ver:2, type:2, tkl:4, code:8, msg_id:16, token:tkl*8, options:*, 0xFF, payload:*}.
func EncodeRequest(typ uint8, msgID uint16, token, payload []byte) []byte {
	tkl := len(token)
	b0 := (uint8(1) << 6) | (typ << 4) | uint8(tkl&0x0F)
	b := make([]byte, 0, 4+tkl+len(uriPathData)+1+len(payload))
	b = append(b, b0, MethodPost)
	mid := make([]byte, 2)
	binary.BigEndian.PutUint16(mid, msgID)
	b = append(b, mid...)
	b = append(b, token...)
	b = append(b, uriPathData...)
	b = append(b, payloadMarker)
	b = append(b, payload...)
	return b
}

// DecodeRequest parses an uplink frame.
func DecodeRequest(frame []byte) (Request, error) {
	if len(frame) < 4 {
		return Request{}, errors.Errorf("reqresp: request too short: %d bytes", len(frame))
	}
	b0 := frame[0]
	typ := (b0 >> 4) & 0x03
	tkl := int(b0 & 0x0F)
	code := frame[1]
	msgID := binary.BigEndian.Uint16(frame[2:4])
	if 4+tkl > len(frame) {
		return Request{}, errors.Errorf("reqresp: token length exceeds frame")
	}
	token := frame[4 : 4+tkl]
	payload, err := splitPayload(frame[4+tkl:])
	if err != nil {
		return Request{}, err
	}
	return Request{typ, code, msgID, token, payload}, nil
}

// EncodeResponse builds a downlink response frame, used for command
// delivery: {ver:2, type:2, tkl:4, code:8, msg_id:16, token:tkl*8, 0xFF, payload:*}.
func EncodeResponse(msgID uint16, token, payload []byte) []byte {
	tkl := len(token)
	b0 := (uint8(1) << 6) | (TypeACK << 4) | uint8(tkl&0x0F)
	b := make([]byte, 0, 4+tkl+1+len(payload))
	b = append(b, b0, CodeContent)
	mid := make([]byte, 2)
	binary.BigEndian.PutUint16(mid, msgID)
	b = append(b, mid...)
	b = append(b, token...)
	b = append(b, payloadMarker)
	b = append(b, payload...)
	return b
}

// DecodeResponse parses a downlink response frame.
func DecodeResponse(frame []byte) (Response, error) {
	if len(frame) < 4 {
		return Response{}, errors.Errorf("reqresp: response too short: %d bytes", len(frame))
	}
	b0 := frame[0]
	typ := (b0 >> 4) & 0x03
	tkl := int(b0 & 0x0F)
	code := frame[1]
	msgID := binary.BigEndian.Uint16(frame[2:4])
	if 4+tkl > len(frame) {
		return Response{}, errors.Errorf("reqresp: token length exceeds frame")
	}
	token := frame[4 : 4+tkl]
	payload, err := splitPayload(frame[4+tkl:])
	if err != nil {
		return Response{}, err
	}
	return Response{typ, code, msgID, token, payload}, nil
}

// splitPayload scans options for the 0xFF marker and returns everything
// after it; it is valid for a frame to carry no payload marker at all, in
// which case there is no payload.
func splitPayload(rest []byte) ([]byte, error) {
	for i, b := range rest {
		if b == payloadMarker {
			return rest[i+1:], nil
		}
	}
	return nil, nil
}
