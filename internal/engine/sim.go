// SPDX-License-Identifier: GPL-3.0

package engine

import (
	"sort"

	"github.com/pkg/errors"
)

// Sim is a single-threaded cooperative discrete-event simulator over a
// virtual millisecond Clock. Each Handler runs in its own goroutine, but the
// dispatch loop below only ever allows one node to make progress between
// rendezvous points, so state touched only from within a Handler's
// lifecycle needs no locking.
type Sim struct {
	handler []Handler
	node    []*node
	now     Clock
	in      []chan input
	out     []chan output
	timer   []timer
	table
	done    bool
	errVal  error
	onEvent func()
}

// OnEvent installs a callback invoked once per Ding/Handle event a node
// processes, for operational counters external to the simulation itself
// (e.g. a Prometheus registry). Must be called before Run.
func (s *Sim) OnEvent(f func()) {
	s.onEvent = f
}

// NewSim returns a new Sim over the given handlers. A handler's position in
// the slice is its NodeID for the lifetime of the run.
func NewSim(handler []Handler) *Sim {
	in := make([]chan input, len(handler))
	out := make([]chan output, len(handler))
	for i := range handler {
		in[i] = make(chan input)
		out[i] = make(chan output)
	}
	return &Sim{
		handler: handler,
		node:    make([]*node, len(handler)),
		in:      in,
		out:     out,
		table:   newTable(len(handler)),
	}
}

// Until stops the run once virtual time reaches the given Clock, after all
// events scheduled strictly before it have been processed. A zero or
// negative value runs until deadlock (every node waiting, no timers).
func (s *Sim) Until(limit Clock) {
	s.untilSet = limit > 0
	s.untilLimit = limit
}

// Run runs the simulation to completion (until every node exits and has no
// more timers, or Until's limit is reached) and returns the first error
// encountered, if any.
func (s *Sim) Run() (err error) {
	for i, h := range s.handler {
		id := NodeID(i)
		n := newNode(h, s.in[id], s.out[id], id, s.onEvent)
		s.node[id] = n
		s.setState(id, Running)
		go n.run()
	}

	n := NodeID(0)
	oo := make([]*output, len(s.handler))
	for {
		if s.State[n] == Running {
			var o output
			if oo[n] != nil {
				o = *oo[n]
			} else {
				o = <-s.out[n]
			}
			var ok bool
			if err, ok = o.handleSim(s, n); err != nil {
				break
			}
			if !ok {
				oo[n] = &o
			} else {
				oo[n] = nil
			}
		}

		if s.done {
			break
		}

		if s.Waiting == len(s.handler) {
			if len(s.timer) == 0 {
				break
			}
			t := s.timer[0]
			if s.untilSet && t.at >= s.untilLimit {
				break
			}
			s.timer = s.timer[1:]
			s.now = t.at
			s.in[t.from] <- ding{t.data, s.now}
			s.setState(t.from, Running)
			n = t.from
		} else {
			n = s.next(n)
		}
	}

	for i := range s.handler {
		close(s.in[i])
		for range s.out[i] {
		}
	}

	if err != nil {
		err = errors.Wrap(err, "simulation aborted")
	}
	return
}

// Now returns the current virtual time. Valid only while Run is executing
// or after it has returned.
func (s *Sim) Now() Clock {
	return s.now
}

// next returns the node after the given node, wrapping around.
func (s *Sim) next(from NodeID) NodeID {
	if from >= NodeID(len(s.handler)-1) {
		return 0
	}
	return from + 1
}

// State represents the status of a node between rendezvous points.
type State int

const (
	Running State = iota
	Waiting
)

// table tracks the State of every node and how many are in each State.
type table struct {
	State      []State
	Running    int
	Waiting    int
	untilSet   bool
	untilLimit Clock
}

func newTable(size int) table {
	return table{State: make([]State, size), Running: size}
}

func (t *table) setState(node NodeID, state State) {
	if t.State[node] == state {
		return
	}
	switch t.State[node] {
	case Running:
		t.Running--
	case Waiting:
		t.Waiting--
	}
	t.State[node] = state
	switch state {
	case Running:
		t.Running++
	case Waiting:
		t.Waiting++
	}
}

// output is sent by a node to request the Sim take some action.
type output interface {
	handleSim(sim *Sim, from NodeID) (err error, ok bool)
}

// done is sent when a node's goroutine returns.
type done struct {
	Err error
}

func (d done) handleSim(s *Sim, from NodeID) (error, bool) {
	s.done = true
	return d.Err, true
}

// wait signals that a node is ready for its next input.
type wait struct{}

func (wait) handleSim(sim *Sim, from NodeID) (error, bool) {
	sim.setState(from, Waiting)
	return nil, true
}

// timer is a delayed ding request from a node.
type timer struct {
	from NodeID
	at   Clock
	data any
}

func (t timer) handleSim(sim *Sim, from NodeID) (error, bool) {
	i := sort.Search(len(sim.timer), func(i int) bool {
		return sim.timer[i].at > t.at
	})
	if len(sim.timer) == i {
		sim.timer = append(sim.timer, t)
		return nil, true
	}
	sim.timer = append(sim.timer[:i+1], sim.timer[i:]...)
	sim.timer[i] = t
	return nil, true
}

// pktOutput is a Packet send request from a node, addressed by
// Packet.Destination().
type pktOutput struct {
	pkt Packet
}

func (p pktOutput) handleSim(sim *Sim, from NodeID) (error, bool) {
	dst := p.pkt.Destination()
	if int(dst) < 0 || int(dst) >= len(sim.handler) {
		return errors.Errorf("packet from node %d addressed to invalid node %d", from, dst), true
	}
	if sim.State[dst] == Running {
		return nil, false
	}
	sim.in[dst] <- pktInput{p.pkt, sim.now}
	sim.setState(dst, Running)
	return nil, true
}
