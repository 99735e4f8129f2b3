// SPDX-License-Identifier: GPL-3.0

package novel

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Command is one downlink command as carried in a NOVEL downlink frame:
// {cmd_type:8, epoch:8, len:8, data:len*8}.
type Command struct {
	CmdType uint8
	Epoch   uint8
	Payload []byte
}

// cmdOverheadBytes is the per-command header overhead (cmd_type, epoch, len).
const cmdOverheadBytes = 3

// EncodeUplink builds an uplink frame: 5-byte header followed by the
// application payload.
func EncodeUplink(h Header, payload []byte) []byte {
	return append(h.Encode(), payload...)
}

// DecodeUplink parses an uplink frame into its header and application
// payload.
func DecodeUplink(data []byte) (Header, []byte, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return Header{}, nil, err
	}
	return h, data[HeaderSize:], nil
}

// EncodeDownlink builds a downlink frame: 5-byte header, 2-byte ack_bitmap,
// then zero or more commands.
func EncodeDownlink(h Header, ackBitmap uint16, cmds []Command) []byte {
	b := h.Encode()
	bm := make([]byte, 2)
	binary.BigEndian.PutUint16(bm, ackBitmap)
	b = append(b, bm...)
	for _, c := range cmds {
		b = append(b, c.CmdType, c.Epoch, uint8(len(c.Payload)))
		b = append(b, c.Payload...)
	}
	return b
}

// DecodeDownlink parses a downlink frame into its header, ack_bitmap, and
// command list.
func DecodeDownlink(data []byte) (Header, uint16, []Command, error) {
	if len(data) < HeaderSize+2 {
		return Header{}, 0, nil, errors.Errorf("novel: downlink too short: %d bytes", len(data))
	}
	h, err := DecodeHeader(data)
	if err != nil {
		return Header{}, 0, nil, err
	}
	ackBitmap := binary.BigEndian.Uint16(data[HeaderSize : HeaderSize+2])
	offset := HeaderSize + 2
	var cmds []Command
	for offset < len(data) {
		if offset+cmdOverheadBytes > len(data) {
			break
		}
		cmdType := data[offset]
		epoch := data[offset+1]
		length := int(data[offset+2])
		offset += cmdOverheadBytes
		if offset+length > len(data) {
			break
		}
		cmds = append(cmds, Command{cmdType, epoch, data[offset : offset+length]})
		offset += length
	}
	return h, ackBitmap, cmds, nil
}

// CommandSize returns the wire size of a command including its overhead.
func CommandSize(payload []byte) int {
	return cmdOverheadBytes + len(payload)
}
