// SPDX-License-Identifier: GPL-3.0

package engine

import "fmt"

// NodeID identifies a node (a device or the gateway) by the order it was
// added to the Sim.
type NodeID int

// node is the per-handler runtime wrapper. It runs the handler's lifecycle
// in its own goroutine, but only ever does useful work while holding the
// rendezvous with the Sim's single dispatch loop, so handler code never
// races against any other node.
type node struct {
	handler Handler
	in      chan input
	out     chan output
	now     Clock
	id      NodeID
	onEvent func()
}

func newNode(handler Handler, in chan input, out chan output, id NodeID, onEvent func()) *node {
	return &node{handler, in, out, 0, id, onEvent}
}

// run runs the node until its input channel is closed.
func (n *node) run() {
	var err error
	defer func() {
		n.out <- done{err}
		close(n.out)
	}()
	if s, ok := n.handler.(Starter); ok {
		if err = s.Start(n); err != nil {
			return
		}
	}
	n.out <- wait{}
	for i := range n.in {
		n.now = i.timestamp()
		if err = i.handleNode(n); err != nil {
			return
		}
		if n.onEvent != nil {
			n.onEvent()
		}
		n.out <- wait{}
	}
	if s, ok := n.handler.(Stopper); ok && err == nil {
		err = s.Stop(n)
	}
}

// Timer implements Node.
func (n *node) Timer(delay Clock, data any) {
	n.out <- timer{n.id, n.now + delay, data}
}

// Send implements Node.
func (n *node) Send(p Packet) {
	n.out <- pktOutput{p}
}

// Now implements Node.
func (n *node) Now() Clock {
	return n.now
}

// ID implements Node.
func (n *node) ID() NodeID {
	return n.id
}

// input is sent to a node over its in channel.
type input interface {
	handleNode(node *node) error
	timestamp() Clock
}

// Node provides the API a Handler uses to interact with the simulation.
type Node interface {
	Now() Clock
	ID() NodeID
	Timer(delay Clock, data any)
	Send(Packet)
}

// Packet is anything routable through the engine to a destination node.
// Concrete implementations live in the packet package; the engine only
// needs to know where to deliver them.
type Packet interface {
	Destination() NodeID
}

// ding is sent by the simulator to a node after a Timer has elapsed.
type ding struct {
	data   any
	nowVal Clock
}

func (d ding) handleNode(node *node) (err error) {
	if r, ok := node.handler.(Dinger); ok {
		err = r.Ding(d.data, node)
	} else {
		err = fmt.Errorf("node %d called Timer so must implement Dinger", node.id)
	}
	return
}

func (d ding) timestamp() Clock {
	return d.nowVal
}

// pktInput carries a Packet delivered to a node's Handle method.
type pktInput struct {
	pkt    Packet
	nowVal Clock
}

func (p pktInput) handleNode(node *node) error {
	return node.handler.Handle(p.pkt, node)
}

func (p pktInput) timestamp() Clock {
	return p.nowVal
}

// A Starter runs once at the start of the simulation, in the node's
// goroutine.
type Starter interface {
	Start(node Node) error
}

// A Handler processes packets routed to its node.
type Handler interface {
	Handle(pkt Packet, node Node) error
}

// Dinger handles a Timer firing.
type Dinger interface {
	Ding(data any, node Node) error
}

// A Stopper runs once when the simulation ends.
type Stopper interface {
	Stop(node Node) error
}
