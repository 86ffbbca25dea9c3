package network

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/sanketsaagar/lumenchain/pkg/consensus"
	"github.com/sanketsaagar/lumenchain/pkg/types"
)

func newTestManager(id byte, maxPeers int) (*Manager, <-chan Event) {
	return NewManager(Config{
		NodeID:     types.BytesToAddress([]byte{id}),
		ListenPort: 30000 + uint16(id),
		MaxPeers:   maxPeers,
	})
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for network event")
		panic("unreachable")
	}
}

func TestConnectAndPeerEvents(t *testing.T) {
	a, aEvents := newTestManager(1, 10)
	b, bEvents := newTestManager(2, 10)

	require.NoError(t, a.Connect(b))
	require.Equal(t, 1, a.PeerCount())
	require.Equal(t, 1, b.PeerCount())

	evA := nextEvent(t, aEvents)
	require.Equal(t, PeerConnected{PeerID: b.NodeID()}, evA)
	evB := nextEvent(t, bEvents)
	require.Equal(t, PeerConnected{PeerID: a.NodeID()}, evB)

	a.Disconnect(b.NodeID())
	require.Equal(t, 0, a.PeerCount())
	require.Equal(t, 0, b.PeerCount())
}

func TestMaxPeersEnforced(t *testing.T) {
	a, _ := newTestManager(1, 1)
	b, _ := newTestManager(2, 10)
	c, _ := newTestManager(3, 10)

	require.NoError(t, a.Connect(b))
	require.Error(t, a.Connect(c))
}

func TestBroadcastReachesPeers(t *testing.T) {
	a, aEvents := newTestManager(1, 10)
	b, bEvents := newTestManager(2, 10)
	require.NoError(t, a.Connect(b))

	// Drain the connect events.
	nextEvent(t, aEvents)
	nextEvent(t, bEvents)

	msg := NewTransactionMessage([]byte("payload"))
	require.NoError(t, a.Broadcast(msg))

	ev := nextEvent(t, bEvents)
	received, ok := ev.(MessageReceived)
	require.True(t, ok)
	require.Equal(t, a.NodeID(), received.From)
	require.Equal(t, KindTransaction, received.Message.Kind)
	require.Equal(t, []byte("payload"), received.Message.Payload)
}

func TestRebroadcastDoesNotEcho(t *testing.T) {
	a, aEvents := newTestManager(1, 10)
	b, bEvents := newTestManager(2, 10)
	require.NoError(t, a.Connect(b))
	nextEvent(t, aEvents)
	nextEvent(t, bEvents)

	msg := NewTransactionMessage([]byte("gossip"))
	require.NoError(t, a.Broadcast(msg))
	nextEvent(t, bEvents)

	// B re-broadcasts the same message: A marked it seen at send time, so
	// nothing comes back.
	require.NoError(t, b.Broadcast(msg))
	select {
	case ev := <-aEvents:
		t.Fatalf("unexpected echo event: %#v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDuplicateDeliverySuppressed(t *testing.T) {
	a, _ := newTestManager(1, 10)
	b, bEvents := newTestManager(2, 10)
	c, _ := newTestManager(3, 10)
	require.NoError(t, a.Connect(b))
	require.NoError(t, c.Connect(b))
	nextEvent(t, bEvents) // a connected
	nextEvent(t, bEvents) // c connected

	msg := NewBlockMessage([]byte("block"), 4)
	require.NoError(t, a.Broadcast(msg))
	first := nextEvent(t, bEvents)
	require.IsType(t, MessageReceived{}, first)

	// The same frame arriving from another peer is dropped.
	require.NoError(t, c.Broadcast(msg))
	select {
	case ev := <-bEvents:
		t.Fatalf("duplicate not suppressed: %#v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMessageWireRoundTrip(t *testing.T) {
	msg := NewBlockMessage([]byte{1, 2, 3}, 42)

	data, err := msg.Encode()
	require.NoError(t, err)

	decoded, err := DecodeMessage(data)
	require.NoError(t, err)
	require.Equal(t, KindBlock, decoded.Kind)
	require.Equal(t, uint64(42), decoded.Height)
	require.Equal(t, []byte{1, 2, 3}, decoded.Payload)
}

func TestConsensusMessageCodec(t *testing.T) {
	proposer := types.BytesToAddress([]byte{7})

	proposal := &consensus.Proposal{
		Height:       3,
		Round:        1,
		PrevHash:     common.Hash{0x01},
		BlockHash:    common.Hash{0x02},
		StateRoot:    common.Hash{0x03},
		Transactions: []byte{9, 9},
		Proposer:     proposer,
	}
	msg, err := EncodeConsensusMessage(proposal)
	require.NoError(t, err)
	require.Equal(t, KindConsensus, msg.Kind)

	decoded, err := DecodeConsensusMessage(msg.Payload)
	require.NoError(t, err)
	restored, ok := decoded.(*consensus.Proposal)
	require.True(t, ok)
	require.Equal(t, proposal.Height, restored.Height)
	require.Equal(t, proposal.BlockHash, restored.BlockHash)
	require.Equal(t, proposal.Proposer, restored.Proposer)

	// Nil prevotes survive the wire.
	prevote := &consensus.Prevote{Height: 3, Round: 1, Validator: proposer}
	msg, err = EncodeConsensusMessage(prevote)
	require.NoError(t, err)

	decoded, err = DecodeConsensusMessage(msg.Payload)
	require.NoError(t, err)
	restoredVote, ok := decoded.(*consensus.Prevote)
	require.True(t, ok)
	require.True(t, restoredVote.IsNil())

	hash := common.Hash{0x0c}
	commit := &consensus.Commit{Height: 3, Round: 2, BlockHash: hash, Validator: proposer}
	msg, err = EncodeConsensusMessage(commit)
	require.NoError(t, err)

	decoded, err = DecodeConsensusMessage(msg.Payload)
	require.NoError(t, err)
	restoredCommit, ok := decoded.(*consensus.Commit)
	require.True(t, ok)
	require.Equal(t, hash, restoredCommit.BlockHash)

	// Unsupported payloads are refused.
	_, err = EncodeConsensusMessage("not a consensus message")
	require.Error(t, err)
}
