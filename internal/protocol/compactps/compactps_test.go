// SPDX-License-Identifier: GPL-3.0

package compactps

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPublishRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		flags := uint8(rapid.IntRange(0, 255).Draw(rt, "flags"))
		topicID := uint16(rapid.IntRange(0, 65535).Draw(rt, "topicID"))
		msgID := uint16(rapid.IntRange(0, 65535).Draw(rt, "msgID"))
		data := rapid.SliceOfN(rapid.Byte(), 0, 32).Draw(rt, "data")

		frame := EncodePublish(flags, topicID, msgID, data)
		require.Equal(t, int(frame[0]), len(frame))

		got, err := DecodePublish(frame)
		require.NoError(t, err)
		require.Equal(t, flags, got.Flags)
		require.Equal(t, topicID, got.TopicID)
		require.Equal(t, msgID, got.MsgID)
		require.Equal(t, data, got.Data)
	})
}

func TestDecodePublishRejectsShortFrame(t *testing.T) {
	_, err := DecodePublish([]byte{1, 2})
	require.Error(t, err)
}

func TestDecodePublishRejectsWrongType(t *testing.T) {
	frame := EncodePublish(0, 1, 1, nil)
	frame[1] = MsgConnect
	_, err := DecodePublish(frame)
	require.Error(t, err)
}

func TestDeviceSessionMsgIDMonotonic(t *testing.T) {
	s := NewDeviceSession("dev-1", 60)
	a := s.NextMsgID()
	b := s.NextMsgID()
	require.Equal(t, a+1, b)
}
