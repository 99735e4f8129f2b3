// SPDX-License-Identifier: GPL-3.0

package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// echoPacket routes straight back to its source, used to test addressed
// delivery without pulling in the packet package.
type echoPacket struct {
	from NodeID
	to   NodeID
}

func (p echoPacket) Destination() NodeID { return p.to }

type recorder struct {
	id     NodeID
	peer   NodeID
	pings  int
	wake   int
	stopped bool
}

func (r *recorder) Start(n Node) error {
	n.Timer(10, "wake")
	return nil
}

func (r *recorder) Ding(data any, n Node) error {
	r.wake++
	if r.id == 0 {
		n.Send(echoPacket{from: r.id, to: r.peer})
	}
	return nil
}

func (r *recorder) Handle(pkt Packet, n Node) error {
	r.pings++
	ep := pkt.(echoPacket)
	if ep.to == r.id && r.id == 1 {
		n.Send(echoPacket{from: r.id, to: ep.from})
	}
	return nil
}

func (r *recorder) Stop(n Node) error {
	r.stopped = true
	return nil
}

func TestSimFIFOTimerOrder(t *testing.T) {
	var order []int
	h1 := &orderHandler{tag: 1, order: &order}
	h2 := &orderHandler{tag: 2, order: &order}

	s := NewSim([]Handler{h1, h2})
	require.NoError(t, s.Run())
	require.Equal(t, []int{1, 2}, order)
}

// orderHandler schedules a single timer at the same virtual timestamp as its
// peer; the engine must dispatch them in scheduling (FIFO) order.
type orderHandler struct {
	tag   int
	order *[]int
}

func (h *orderHandler) Start(n Node) error {
	n.Timer(100, nil)
	return nil
}

func (h *orderHandler) Ding(data any, n Node) error {
	*h.order = append(*h.order, h.tag)
	return nil
}

func (h *orderHandler) Handle(pkt Packet, n Node) error { return nil }

func TestSimAddressedDelivery(t *testing.T) {
	r0 := &recorder{id: 0, peer: 1}
	r1 := &recorder{id: 1, peer: 0}
	s := NewSim([]Handler{r0, r1})
	require.NoError(t, s.Run())
	require.Equal(t, 1, r0.pings)
	require.Equal(t, 1, r1.pings)
	require.True(t, r0.stopped)
	require.True(t, r1.stopped)
}

// dinglessHandler calls Timer without implementing Dinger, which must abort
// the run with an error rather than panicking.
type dinglessHandler struct{}

func (dinglessHandler) Start(n Node) error {
	n.Timer(5, nil)
	return nil
}

func (dinglessHandler) Handle(pkt Packet, n Node) error { return nil }

func TestSimRequiresDingerWhenTimerUsed(t *testing.T) {
	s := NewSim([]Handler{dinglessHandler{}})
	err := s.Run()
	require.Error(t, err)
}
