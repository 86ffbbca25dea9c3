package consensus

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Event is an outbound intent emitted by the engine. The event channel is the
// engine's only output: the orchestrator turns events into network broadcasts
// and disk writes, which keeps the engine testable without either.
type Event interface {
	isEvent()
}

// BroadcastProposal asks the orchestrator to gossip a signed proposal.
type BroadcastProposal struct {
	Proposal Proposal
}

// BroadcastPrevote asks the orchestrator to gossip a signed prevote.
type BroadcastPrevote struct {
	Prevote Prevote
}

// BroadcastCommit asks the orchestrator to gossip a signed commit.
type BroadcastCommit struct {
	Commit Commit
}

// BlockFinalized announces that commit quorum formed for a block.
type BlockFinalized struct {
	Height      uint64
	BlockHash   common.Hash
	Certificate *FinalityCertificate
}

// RoundTimeout announces that a round expired and the engine advanced.
type RoundTimeout struct {
	Height uint64
	Round  uint64
}

// ExecuteBlock asks the runtime (via the orchestrator) to produce a block for
// the engine to propose.
type ExecuteBlock struct {
	Height       uint64
	PrevHash     common.Hash
	Transactions []byte
}

func (BroadcastProposal) isEvent() {}
func (BroadcastPrevote) isEvent()  {}
func (BroadcastCommit) isEvent()   {}
func (BlockFinalized) isEvent()    {}
func (RoundTimeout) isEvent()      {}
func (ExecuteBlock) isEvent()      {}

// eventQueue is an unbounded FIFO feeding the engine's outbound channel.
// Sends never block, so the engine can emit while holding its state lock
// without deadlocking against a slow consumer.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	notify chan struct{}
	out    chan Event
	done   chan struct{}
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		notify: make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
	}
	go q.pump()
	return q
}

// push enqueues an event. Never blocks.
func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pump drains the queue into the outbound channel in order.
func (q *eventQueue) pump() {
	for {
		q.mu.Lock()
		var next Event
		if len(q.items) > 0 {
			next = q.items[0]
			q.items = q.items[1:]
		}
		q.mu.Unlock()

		if next == nil {
			select {
			case <-q.notify:
				continue
			case <-q.done:
				return
			}
		}

		select {
		case q.out <- next:
		case <-q.done:
			return
		}
	}
}

// close stops the pump. Pending events are dropped.
func (q *eventQueue) close() {
	close(q.done)
}
