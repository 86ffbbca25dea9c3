// Package network is the message bus for LumenChain L1.
//
// The bus only frames, classifies, and deduplicates messages: it never
// validates payloads. Everything inbound is handed to the orchestrator, which
// routes it through the crypto firewall before the runtime or the consensus
// engine sees it.
package network

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/sanketsaagar/lumenchain/pkg/types"
)

// seenLimit bounds the dedup set; when exceeded the set is halved.
const seenLimit = 10000

// Config holds bus settings.
type Config struct {
	// NodeID is our public identity on the wire.
	NodeID types.Address

	// ListenPort for the transport (advertised in handshakes).
	ListenPort uint16

	// MaxPeers caps simultaneous connections.
	MaxPeers int

	// BootstrapPeers to dial on startup.
	BootstrapPeers []string
}

// Manager is the in-process message bus. Peers are other Manager instances
// wired together with Connect; a socket transport plugs in behind the same
// surface.
type Manager struct {
	cfg Config

	mu    sync.RWMutex
	peers map[types.Address]*peerLink
	seen  map[common.Hash]struct{}

	events chan Event
	logger log.Logger
}

// peerLink is one live connection.
type peerLink struct {
	info   PeerInfo
	remote *Manager
}

// NewManager creates a bus and returns it with its event stream.
func NewManager(cfg Config) (*Manager, <-chan Event) {
	m := &Manager{
		cfg:    cfg,
		peers:  make(map[types.Address]*peerLink),
		seen:   make(map[common.Hash]struct{}),
		events: make(chan Event, 1024),
		logger: log.New("module", "network"),
	}
	return m, m.events
}

// NodeID returns our identity.
func (m *Manager) NodeID() types.Address { return m.cfg.NodeID }

// PeerCount returns the number of connected peers.
func (m *Manager) PeerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}

// Connect wires two managers together bidirectionally.
func (m *Manager) Connect(remote *Manager) error {
	if err := m.addPeer(remote); err != nil {
		return err
	}
	if err := remote.addPeer(m); err != nil {
		m.removePeer(remote.cfg.NodeID)
		return err
	}
	return nil
}

func (m *Manager) addPeer(remote *Manager) error {
	m.mu.Lock()
	if len(m.peers) >= m.cfg.MaxPeers {
		m.mu.Unlock()
		return fmt.Errorf("max peers reached (%d)", m.cfg.MaxPeers)
	}
	id := remote.cfg.NodeID
	m.peers[id] = &peerLink{
		info:   PeerInfo{ID: id, Addr: fmt.Sprintf("peer:%d", remote.cfg.ListenPort)},
		remote: remote,
	}
	m.mu.Unlock()

	m.logger.Debug("Peer connected", "peer", id.Short())
	m.emit(PeerConnected{PeerID: id})
	return nil
}

func (m *Manager) removePeer(id types.Address) {
	m.mu.Lock()
	_, ok := m.peers[id]
	delete(m.peers, id)
	m.mu.Unlock()

	if ok {
		m.emit(PeerDisconnected{PeerID: id})
	}
}

// Disconnect drops a peer on both sides.
func (m *Manager) Disconnect(id types.Address) {
	m.mu.RLock()
	link := m.peers[id]
	m.mu.RUnlock()

	m.removePeer(id)
	if link != nil {
		link.remote.removePeer(m.cfg.NodeID)
	}
}

// Peers lists connected peer info.
func (m *Manager) Peers() []PeerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PeerInfo, 0, len(m.peers))
	for _, link := range m.peers {
		out = append(out, link.info)
	}
	return out
}

// Broadcast sends a message to every connected peer. The message is marked
// seen locally so our own gossip echo is dropped.
func (m *Manager) Broadcast(msg Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	hash := gethcrypto.Keccak256Hash(data)
	m.markSeen(hash)

	m.mu.RLock()
	links := make([]*peerLink, 0, len(m.peers))
	for _, link := range m.peers {
		links = append(links, link)
	}
	m.mu.RUnlock()

	for _, link := range links {
		link.remote.deliver(m.cfg.NodeID, msg, hash)
	}
	return nil
}

// deliver is the receive path: dedup, then hand to the event stream.
func (m *Manager) deliver(from types.Address, msg Message, hash common.Hash) {
	if m.isDuplicate(hash) {
		return
	}
	if !m.emit(MessageReceived{From: from, Message: msg}) {
		// Forget the hash so a later redelivery is not taken for a duplicate.
		m.mu.Lock()
		delete(m.seen, hash)
		m.mu.Unlock()
	}
}

// isDuplicate checks and records a message hash.
func (m *Manager) isDuplicate(hash common.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[hash]; ok {
		return true
	}
	m.seen[hash] = struct{}{}

	if len(m.seen) > seenLimit {
		// Crude eviction: drop half the set.
		n := len(m.seen) / 2
		for h := range m.seen {
			if n == 0 {
				break
			}
			delete(m.seen, h)
			n--
		}
	}
	return false
}

func (m *Manager) markSeen(hash common.Hash) {
	m.mu.Lock()
	m.seen[hash] = struct{}{}
	m.mu.Unlock()
}

// emit pushes an event without blocking; if the orchestrator has fallen this
// far behind the message is dropped and gossip redelivery covers the gap.
// Reports whether the event was queued.
func (m *Manager) emit(ev Event) bool {
	select {
	case m.events <- ev:
		return true
	default:
		m.logger.Warn("Event channel full, dropping network event")
		return false
	}
}
