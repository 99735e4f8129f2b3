// SPDX-License-Identifier: GPL-3.0

package novel

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestHeaderRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := Header{
			MsgType:    uint8(rapid.IntRange(0, 7).Draw(rt, "msgType")),
			Priority:   uint8(rapid.IntRange(0, 3).Draw(rt, "priority")),
			TopicClass: uint8(rapid.IntRange(0, 7).Draw(rt, "topicClass")),
			Seq:        uint16(rapid.IntRange(0, 65535).Draw(rt, "seq")),
			Flags:      uint8(rapid.IntRange(0, 255).Draw(rt, "flags")),
			TokenShort: uint8(rapid.IntRange(0, 255).Draw(rt, "tokenShort")),
		}
		got, err := DecodeHeader(h.Encode())
		require.NoError(t, err)
		require.Equal(t, h, got)
	})
}

func TestUplinkRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := Header{Seq: uint16(rapid.IntRange(0, 65535).Draw(rt, "seq"))}
		payload := rapid.SliceOfN(rapid.Byte(), 0, 32).Draw(rt, "payload")
		frame := EncodeUplink(h, payload)
		gotH, gotPayload, err := DecodeUplink(frame)
		require.NoError(t, err)
		require.Equal(t, h.Seq, gotH.Seq)
		require.Equal(t, payload, gotPayload)
	})
}

func TestDownlinkRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := Header{Seq: uint16(rapid.IntRange(0, 65535).Draw(rt, "base"))}
		ackBitmap := uint16(rapid.IntRange(0, 65535).Draw(rt, "bitmap"))
		n := rapid.IntRange(0, 4).Draw(rt, "n")
		cmds := make([]Command, n)
		for i := range cmds {
			cmds[i] = Command{
				CmdType: uint8(rapid.IntRange(0, 255).Draw(rt, "cmdType")),
				Epoch:   uint8(rapid.IntRange(0, 255).Draw(rt, "epoch")),
				Payload: rapid.SliceOfN(rapid.Byte(), 0, 8).Draw(rt, "payload"),
			}
		}
		frame := EncodeDownlink(h, ackBitmap, cmds)
		gotH, gotBitmap, gotCmds, err := DecodeDownlink(frame)
		require.NoError(t, err)
		require.Equal(t, h.Seq, gotH.Seq)
		require.Equal(t, ackBitmap, gotBitmap)
		if n == 0 {
			require.Empty(t, gotCmds)
		} else {
			require.Equal(t, cmds, gotCmds)
		}
	})
}

func TestDecodeHeaderTooShort(t *testing.T) {
	_, err := DecodeHeader([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestDeviceSessionEpochIdempotency(t *testing.T) {
	s := NewDeviceSession(12, rand.New(rand.NewSource(1)))
	require.Len(t, s.Token, 12)

	require.True(t, s.Apply(3, 1))
	require.True(t, s.Apply(3, 2))
	require.False(t, s.Apply(3, 2)) // duplicate of already-applied epoch
	require.False(t, s.Apply(3, 1)) // stale epoch delivered late
	require.True(t, s.Apply(3, 5))
}

func TestGatewaySessionEpochMonotonic(t *testing.T) {
	s := NewGatewaySession()
	e1 := s.NextEpoch(0)
	e2 := s.NextEpoch(0)
	require.Greater(t, int(e2), int(e1))
}
