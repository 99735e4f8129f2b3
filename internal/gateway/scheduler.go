// SPDX-License-Identifier: GPL-3.0

// Package gateway implements the LPWAN gateway: per-device session state,
// the downlink command scheduler, and the NOVEL ACK tracker.
package gateway

import (
	"sort"

	"github.com/heistp/lpwansim/internal/engine"
	"github.com/heistp/lpwansim/internal/packet"
)

// PendingCommand is a downlink command waiting in a per-device queue.
type PendingCommand struct {
	CmdID       uint64
	Device      engine.NodeID
	Protocol    packet.Protocol
	CmdType     uint8
	Payload     []byte
	Epoch       uint8
	Priority    uint8
	DeadlineMs  engine.Clock
	CreatedMs   engine.Clock
	ProbTarget  float64
	Retries     int
	MaxRetries  int
	seq         uint64 // insertion order, breaks (priority, deadline) ties
}

// queue is a per-device priority queue over PendingCommand, kept sorted by
// (priority ascending, deadline ascending, insertion order ascending).
// Capacity is bounded: Enqueue evicts the worst entries by the same
// comparator rather than growing without limit.
type queue struct {
	cmds     []*PendingCommand
	capacity int
	evicted  uint64
}

func less(a, b *PendingCommand) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if a.DeadlineMs != b.DeadlineMs {
		return a.DeadlineMs < b.DeadlineMs
	}
	return a.seq < b.seq
}

// insert inserts c in sorted position and returns any entries evicted by a
// resulting capacity overflow (the worst entries, by the same comparator).
func (q *queue) insert(c *PendingCommand) []*PendingCommand {
	i := sort.Search(len(q.cmds), func(i int) bool { return less(c, q.cmds[i]) })
	q.cmds = append(q.cmds, nil)
	copy(q.cmds[i+1:], q.cmds[i:])
	q.cmds[i] = c
	if len(q.cmds) > q.capacity {
		evicted := append([]*PendingCommand(nil), q.cmds[q.capacity:]...)
		q.evicted += uint64(len(evicted))
		q.cmds = q.cmds[:q.capacity]
		return evicted
	}
	return nil
}

// Scheduler is the per-device priority+deadline command scheduler (§4.5).
type Scheduler struct {
	QueueSize       int
	MaxPayloadBytes int
	queues          map[engine.NodeID]*queue
	nextCmdID       uint64
	nextSeq         uint64
	expiredCount    uint64
}

// NewScheduler returns a Scheduler with the given per-device queue capacity
// and per-downlink command payload budget.
func NewScheduler(queueSize, maxPayloadBytes int) *Scheduler {
	return &Scheduler{
		QueueSize:       queueSize,
		MaxPayloadBytes: maxPayloadBytes,
		queues:          make(map[engine.NodeID]*queue),
	}
}

func (s *Scheduler) queueFor(dev engine.NodeID) *queue {
	q, ok := s.queues[dev]
	if !ok {
		q = &queue{capacity: s.QueueSize}
		s.queues[dev] = q
	}
	return q
}

// NextCmdID returns a fresh monotonically-increasing command identifier.
func (s *Scheduler) NextCmdID() uint64 {
	s.nextCmdID++
	return s.nextCmdID
}

// Enqueue inserts cmd into its device's queue, evicting the worst entries by
// (priority, deadline) if the queue is over capacity, and returns them.
func (s *Scheduler) Enqueue(cmd *PendingCommand) []*PendingCommand {
	cmd.seq = s.nextSeq
	s.nextSeq++
	return s.queueFor(cmd.Device).insert(cmd)
}

// cmdOverheadBytes is the fixed per-command overhead counted against the
// downlink payload budget, whatever the protocol's own framing costs.
const cmdOverheadBytes = 4

// GetCommandsForDevice returns up to budget live commands for device and
// protocol whose cumulative (payload+overhead) size fits maxPayload,
// removing them from the queue. Entries are already sorted by
// (priority, deadline, insertion order); ties extract in insertion order.
func (s *Scheduler) GetCommandsForDevice(dev engine.NodeID, budget int, now engine.Clock, maxPayload int, proto packet.Protocol) []*PendingCommand {
	q := s.queueFor(dev)
	if len(q.cmds) == 0 {
		return nil
	}
	var selected []*PendingCommand
	var remaining []*PendingCommand
	budgetLeft := maxPayload
	for _, c := range q.cmds {
		if c.Protocol != proto || c.DeadlineMs < now {
			remaining = append(remaining, c)
			continue
		}
		size := len(c.Payload) + cmdOverheadBytes
		if len(selected) < budget && size <= budgetLeft {
			selected = append(selected, c)
			budgetLeft -= size
			continue
		}
		remaining = append(remaining, c)
	}
	q.cmds = remaining
	return selected
}

// RequeueFailed re-inserts cmd after a failed delivery if it still has
// retry budget and hasn't passed its deadline; otherwise it is dropped.
// Reports whether cmd was requeued, plus any entries evicted by the
// re-insertion's capacity overflow.
func (s *Scheduler) RequeueFailed(cmd *PendingCommand, now engine.Clock) (bool, []*PendingCommand) {
	if cmd.Retries >= cmd.MaxRetries || cmd.DeadlineMs < now {
		return false, nil
	}
	cmd.Retries++
	return true, s.Enqueue(cmd)
}

// ExpireSweep removes entries whose deadline has passed across every
// device's queue, returning the removed commands. Called every 60s.
func (s *Scheduler) ExpireSweep(now engine.Clock) []*PendingCommand {
	var removed []*PendingCommand
	for _, q := range s.queues {
		kept := q.cmds[:0:0]
		for _, c := range q.cmds {
			if c.DeadlineMs < now {
				removed = append(removed, c)
				continue
			}
			kept = append(kept, c)
		}
		q.cmds = kept
	}
	s.expiredCount += uint64(len(removed))
	return removed
}

// ExpiredCount returns the cumulative number of commands removed by expiry.
func (s *Scheduler) ExpiredCount() uint64 {
	return s.expiredCount
}

// QueueLen returns the current queue length for a device, for tests.
func (s *Scheduler) QueueLen(dev engine.NodeID) int {
	return len(s.queueFor(dev).cmds)
}

// EvictedCount returns the cumulative number of commands dropped by
// capacity-overflow eviction for a device.
func (s *Scheduler) EvictedCount(dev engine.NodeID) uint64 {
	return s.queueFor(dev).evicted
}
