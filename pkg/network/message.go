package network

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/sanketsaagar/lumenchain/pkg/consensus"
	"github.com/sanketsaagar/lumenchain/pkg/types"
)

// Kind classifies a wire message so the orchestrator can route it without
// inspecting the payload.
type Kind uint8

const (
	// KindTransaction carries a signed transaction envelope.
	KindTransaction Kind = iota + 1

	// KindBlock carries a signed block envelope.
	KindBlock

	// KindConsensus carries a tagged consensus message.
	KindConsensus

	// KindHandshake carries the peer handshake.
	KindHandshake

	// KindPing is a liveness probe.
	KindPing

	// KindPong answers a ping.
	KindPong
)

func (k Kind) String() string {
	switch k {
	case KindTransaction:
		return "transaction"
	case KindBlock:
		return "block"
	case KindConsensus:
		return "consensus"
	case KindHandshake:
		return "handshake"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is the framed unit exchanged between peers. Payload semantics
// depend on Kind; the bus never interprets them.
type Message struct {
	// Kind selects the routing topic.
	Kind Kind

	// Height annotates block messages for cheap relevance checks.
	Height uint64

	// Nonce carries the ping/pong sequence number.
	Nonce uint64

	// Payload is the opaque message body.
	Payload []byte
}

// NewTransactionMessage frames a signed transaction envelope.
func NewTransactionMessage(payload []byte) Message {
	return Message{Kind: KindTransaction, Payload: payload}
}

// NewBlockMessage frames a signed block envelope.
func NewBlockMessage(payload []byte, height uint64) Message {
	return Message{Kind: KindBlock, Height: height, Payload: payload}
}

// Encode returns the RLP wire form of the message.
func (m *Message) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(m)
}

// DecodeMessage parses a wire message.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := rlp.DecodeBytes(data, &m); err != nil {
		return Message{}, fmt.Errorf("failed to decode message: %w", err)
	}
	return m, nil
}

// Handshake is exchanged when two peers connect.
type Handshake struct {
	// Version of the wire protocol.
	Version uint32

	// ChainID digest; peers on different chains disconnect.
	ChainID [32]byte

	// Height is the sender's current block height.
	Height uint64

	// NodeID is the sender's public identity.
	NodeID types.Address
}

// NewHandshake builds a version-1 handshake.
func NewHandshake(chainID [32]byte, height uint64, nodeID types.Address) Handshake {
	return Handshake{Version: 1, ChainID: chainID, Height: height, NodeID: nodeID}
}

// Consensus payload tags inside a KindConsensus message.
const (
	consensusProposal uint8 = iota + 1
	consensusPrevote
	consensusCommit
)

// consensusEnvelope is the tagged-union wire form of a consensus message.
type consensusEnvelope struct {
	Tag  uint8
	Data []byte
}

// EncodeConsensusMessage wraps a proposal, prevote, or commit into a
// KindConsensus message.
func EncodeConsensusMessage(msg any) (Message, error) {
	var tag uint8
	switch msg.(type) {
	case *consensus.Proposal:
		tag = consensusProposal
	case *consensus.Prevote:
		tag = consensusPrevote
	case *consensus.Commit:
		tag = consensusCommit
	default:
		return Message{}, fmt.Errorf("unsupported consensus message type %T", msg)
	}

	data, err := rlp.EncodeToBytes(msg)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode consensus message: %w", err)
	}
	payload, err := rlp.EncodeToBytes(&consensusEnvelope{Tag: tag, Data: data})
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode consensus envelope: %w", err)
	}
	return Message{Kind: KindConsensus, Payload: payload}, nil
}

// DecodeConsensusMessage unwraps a KindConsensus payload into a
// *consensus.Proposal, *consensus.Prevote, or *consensus.Commit.
func DecodeConsensusMessage(payload []byte) (any, error) {
	var env consensusEnvelope
	if err := rlp.DecodeBytes(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to decode consensus envelope: %w", err)
	}

	switch env.Tag {
	case consensusProposal:
		var p consensus.Proposal
		if err := rlp.DecodeBytes(env.Data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode proposal: %w", err)
		}
		return &p, nil
	case consensusPrevote:
		var v consensus.Prevote
		if err := rlp.DecodeBytes(env.Data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode prevote: %w", err)
		}
		return &v, nil
	case consensusCommit:
		var c consensus.Commit
		if err := rlp.DecodeBytes(env.Data, &c); err != nil {
			return nil, fmt.Errorf("failed to decode commit: %w", err)
		}
		return &c, nil
	default:
		return nil, fmt.Errorf("unknown consensus message tag %d", env.Tag)
	}
}

// Event is what the bus hands to the orchestrator.
type Event interface {
	isEvent()
}

// MessageReceived delivers an inbound message with its originating peer.
type MessageReceived struct {
	From    types.Address
	Message Message
}

// PeerConnected announces a new peer.
type PeerConnected struct {
	PeerID types.Address
}

// PeerDisconnected announces a dropped peer.
type PeerDisconnected struct {
	PeerID types.Address
}

func (MessageReceived) isEvent()  {}
func (PeerConnected) isEvent()    {}
func (PeerDisconnected) isEvent() {}

// PeerInfo describes a connected peer.
type PeerInfo struct {
	ID        types.Address
	Addr      string
	Connected time.Time
}
