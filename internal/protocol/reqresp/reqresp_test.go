// SPDX-License-Identifier: GPL-3.0

package reqresp

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRequestRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		typ := uint8(rapid.IntRange(0, 3).Draw(rt, "type"))
		msgID := uint16(rapid.IntRange(0, 65535).Draw(rt, "msgID"))
		token := rapid.SliceOfN(rapid.Byte(), 0, 8).Draw(rt, "token")
		payload := rapid.SliceOfN(rapid.Byte(), 0, 32).Draw(rt, "payload")

		frame := EncodeRequest(typ, msgID, token, payload)
		got, err := DecodeRequest(frame)
		require.NoError(t, err)
		require.Equal(t, typ, got.Type)
		require.Equal(t, msgID, got.MsgID)
		require.Equal(t, token, got.Token)
		require.Equal(t, payload, got.Payload)
	})
}

func TestResponseRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		msgID := uint16(rapid.IntRange(0, 65535).Draw(rt, "msgID"))
		token := rapid.SliceOfN(rapid.Byte(), 0, 8).Draw(rt, "token")
		payload := rapid.SliceOfN(rapid.Byte(), 0, 32).Draw(rt, "payload")

		frame := EncodeResponse(msgID, token, payload)
		got, err := DecodeResponse(frame)
		require.NoError(t, err)
		require.Equal(t, CodeContent, got.Code)
		require.Equal(t, msgID, got.MsgID)
		require.Equal(t, token, got.Token)
		require.Equal(t, payload, got.Payload)
	})
}

func TestDecodeRequestRejectsShortFrame(t *testing.T) {
	_, err := DecodeRequest([]byte{1, 2})
	require.Error(t, err)
}
