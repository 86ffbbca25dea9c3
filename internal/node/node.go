// Package node wires the runtime, store, network, and consensus engine into
// a running LumenChain L1 node.
package node

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/sanketsaagar/lumenchain/internal/config"
	"github.com/sanketsaagar/lumenchain/internal/metrics"
	"github.com/sanketsaagar/lumenchain/pkg/consensus"
	"github.com/sanketsaagar/lumenchain/pkg/crypto"
	"github.com/sanketsaagar/lumenchain/pkg/genesis"
	"github.com/sanketsaagar/lumenchain/pkg/network"
	"github.com/sanketsaagar/lumenchain/pkg/runtime"
	"github.com/sanketsaagar/lumenchain/pkg/store"
)

// snapshotInterval is the finalized-height period for named state snapshots.
const snapshotInterval = 100

// Node is the orchestrator: it owns the event loop that couples the four
// core subsystems and is the only component that talks to all of them.
type Node struct {
	cfg     *config.Config
	keypair *crypto.Keypair
	chainID [32]byte

	runtime *runtime.Runtime
	store   *store.Store
	engine  *consensus.Engine
	net     *network.Manager
	metrics *metrics.Metrics

	netEvents  <-chan network.Event
	roundTimer *time.Timer
	metricsSrv *http.Server
	logger     log.Logger
}

// New builds a node from configuration, recovering persisted state when the
// data directory already holds some.
func New(cfg *config.Config) (*Node, error) {
	logger := log.New("module", "node")

	st, err := store.New(cfg.Node.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	keypair, err := loadKeypair(cfg)
	if err != nil {
		return nil, err
	}

	doc, validators, err := loadValidatorSet(cfg, st, keypair)
	if err != nil {
		return nil, err
	}

	rt, err := recoverRuntime(st, doc, logger)
	if err != nil {
		return nil, err
	}

	engine := consensus.NewEngine(consensus.Config{
		ProposeTimeout: cfg.Consensus.ProposeTimeoutDuration(),
		PrevoteTimeout: cfg.Consensus.PrevoteTimeoutDuration(),
		CommitTimeout:  cfg.Consensus.CommitTimeoutDuration(),
		TimeoutDelta:   cfg.Consensus.TimeoutDeltaDuration(),
		MaxRounds:      cfg.Consensus.MaxRounds,
	}, validators, keypair)

	if rs, err := st.LoadRoundState(); err == nil {
		engine.RestoreRoundState(rs)
		logger.Info("Recovered round state", "height", rs.Height, "round", rs.Round)
	} else if !store.IsNotFound(err) {
		return nil, fmt.Errorf("failed to load round state: %w", err)
	}

	if height, ok, err := st.LatestFinalizedHeight(); err != nil {
		return nil, fmt.Errorf("failed to scan finality certificates: %w", err)
	} else if ok {
		cert, err := st.LoadFinalityCert(height)
		if err != nil {
			return nil, fmt.Errorf("failed to load finality certificate: %w", err)
		}
		engine.RestoreFinalityCertificate(cert)
		logger.Info("Recovered finality certificate", "height", height)
	}

	net, netEvents := network.NewManager(network.Config{
		NodeID:         keypair.PublicKey(),
		ListenPort:     cfg.Network.ListenPort,
		MaxPeers:       cfg.Network.MaxPeers,
		BootstrapPeers: cfg.Network.BootstrapPeers,
	})

	return &Node{
		cfg:       cfg,
		keypair:   keypair,
		chainID:   gethcrypto.Keccak256Hash([]byte(cfg.Runtime.ChainID)),
		runtime:   rt,
		store:     st,
		engine:    engine,
		net:       net,
		metrics:   metrics.New(),
		netEvents: netEvents,
		logger:    logger,
	}, nil
}

// loadKeypair derives the node identity from the producer key, or generates
// an ephemeral one for non-producing nodes.
func loadKeypair(cfg *config.Config) (*crypto.Keypair, error) {
	if cfg.Runtime.ProducerKey == "" {
		return crypto.GenerateKeypair()
	}
	raw, err := hex.DecodeString(cfg.Runtime.ProducerKey)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("runtime.producer_key must be 32 bytes of hex")
	}
	var seed [32]byte
	copy(seed[:], raw)
	return crypto.KeypairFromSeed(seed), nil
}

// loadValidatorSet resolves the active validator set: persisted set first,
// then the genesis document, then the built-in dev genesis.
func loadValidatorSet(cfg *config.Config, st *store.Store, kp *crypto.Keypair) (*genesis.Document, *consensus.ValidatorSet, error) {
	var doc *genesis.Document
	if cfg.Node.GenesisPath != "" {
		loaded, err := genesis.Load(cfg.Node.GenesisPath)
		if err != nil {
			return nil, nil, err
		}
		doc = loaded
	} else {
		doc = genesis.Dev(kp.PublicKey())
	}

	if set, err := st.LoadValidatorSet(); err == nil {
		return doc, set, nil
	} else if !store.IsNotFound(err) {
		return nil, nil, fmt.Errorf("failed to load validator set: %w", err)
	}

	set, err := doc.ValidatorSet()
	if err != nil {
		return nil, nil, err
	}
	if err := st.SaveValidatorSet(set); err != nil {
		return nil, nil, fmt.Errorf("failed to persist validator set: %w", err)
	}
	return doc, set, nil
}

// recoverRuntime rebuilds the runtime from disk, replaying any block whose
// state snapshot did not make it through a crash.
func recoverRuntime(st *store.Store, doc *genesis.Document, logger log.Logger) (*runtime.Runtime, error) {
	if !st.HasState() {
		state, err := doc.State()
		if err != nil {
			return nil, err
		}
		return runtime.WithState(state, runtime.GenesisBlock().Hash()), nil
	}

	state, err := st.LoadState()
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	lastHash := runtime.GenesisBlock().Hash()
	if state.Height > 0 {
		block, err := st.LoadBlock(state.Height)
		if err != nil {
			return nil, fmt.Errorf("failed to load block %d: %w", state.Height, err)
		}
		lastHash = block.Hash()
	}
	rt := runtime.WithState(state, lastHash)

	// A block written without its state snapshot marks an interrupted
	// Commit. Replay forward to catch up.
	latest, ok, err := st.LatestBlockHeight()
	if err != nil {
		return nil, err
	}
	for ok && rt.Height() < latest {
		height := rt.Height() + 1
		block, err := st.LoadBlock(height)
		if err != nil {
			return nil, fmt.Errorf("failed to load block %d for replay: %w", height, err)
		}
		if err := rt.ApplyBlock(block); err != nil {
			return nil, fmt.Errorf("failed to replay block %d: %w", height, err)
		}
		if err := st.SaveState(rt.State()); err != nil {
			return nil, err
		}
		logger.Info("Replayed block after incomplete commit", "height", height)
	}

	return rt, nil
}

// Network returns the node's message bus (for wiring peers).
func (n *Node) Network() *network.Manager { return n.net }

// Engine returns the consensus engine (read-only queries).
func (n *Node) Engine() *consensus.Engine { return n.engine }

// Height returns the runtime's current height.
func (n *Node) Height() uint64 { return n.runtime.Height() }

// MempoolSize returns the number of pending transactions.
func (n *Node) MempoolSize() int { return n.runtime.MempoolSize() }

// Run drives the node until the context is cancelled.
func (n *Node) Run(ctx context.Context) error {
	n.logger.Info("🚀 Starting LumenChain L1 node",
		"chain", n.cfg.Runtime.ChainID,
		"height", n.runtime.Height(),
		"validator", n.keypair.PublicKey().Short(),
		"producer", n.cfg.Runtime.ProducerEnabled)

	if n.cfg.Metrics.Enabled {
		n.metricsSrv = n.metrics.Serve(n.cfg.Metrics.ListenAddr)
		n.logger.Info("Metrics listener up", "addr", n.cfg.Metrics.ListenAddr)
	}
	n.metrics.ChainHeight.Set(float64(n.runtime.Height()))

	n.roundTimer = time.NewTimer(n.engine.Config().ProposeTimeout)
	n.roundTimer.Stop()

	hs := network.NewHandshake(n.chainID, n.runtime.Height(), n.net.NodeID())
	if payload, err := rlp.EncodeToBytes(&hs); err == nil {
		_ = n.net.Broadcast(network.Message{Kind: network.KindHandshake, Payload: payload})
	}

	blockTick := time.NewTicker(n.cfg.Runtime.BlockIntervalDuration())
	defer blockTick.Stop()

	n.engine.StartHeight(n.runtime.Height() + 1)
	n.syncRoundTimer()

	var fatal error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case ev := <-n.netEvents:
			if err := n.handleNetworkEvent(ev); err != nil {
				if isFatal(err) {
					fatal = err
					break loop
				}
				n.logger.Debug("Network event dropped", "err", err)
			}

		case ev := <-n.engine.Events():
			if err := n.handleConsensusEvent(ev); err != nil {
				if isFatal(err) {
					fatal = err
					break loop
				}
				n.logger.Warn("Consensus event failed", "err", err)
			}

		case <-blockTick.C:
			if n.cfg.Runtime.ProducerEnabled {
				n.handleProductionTick()
			}

		case <-n.roundTimer.C:
			n.engine.OnTimeout()
			n.metrics.RoundTimeouts.Inc()
			n.syncRoundTimer()
		}
	}

	n.shutdown()
	if fatal != nil {
		n.logger.Crit("Node halted on critical invariant violation", "err", fatal)
		return fatal
	}
	n.logger.Info("✅ Node stopped cleanly")
	return nil
}

// shutdown stops the round timer, persists the round state, closes the
// engine's event stream, and stops the metrics listener. Engine events not
// yet consumed by the loop are dropped, not handled. Disk writes are allowed
// to finish: fsync plus rename must complete.
func (n *Node) shutdown() {
	n.logger.Info("🛑 Shutting down node...")

	if n.roundTimer != nil {
		n.roundTimer.Stop()
	}

	rs := n.engine.RoundState()
	if err := n.store.SaveRoundState(&rs); err != nil {
		n.logger.Error("Failed to persist round state on shutdown", "err", err)
	}

	n.engine.Close()

	if n.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = n.metricsSrv.Shutdown(shutdownCtx)
	}
}

// handleProductionTick nudges consensus forward when we produce blocks: if
// the engine has finalized its height (or is lagging the runtime), open the
// next one.
func (n *Node) handleProductionTick() {
	current := n.engine.CurrentHeight()
	if n.engine.IsFinalized(current) || current <= n.runtime.Height() {
		n.engine.StartHeight(n.runtime.Height() + 1)
		n.syncRoundTimer()
	}
}

// handleNetworkEvent routes one inbound bus event.
func (n *Node) handleNetworkEvent(ev network.Event) error {
	switch ev := ev.(type) {
	case network.MessageReceived:
		return n.handleMessage(ev.Message)
	case network.PeerConnected:
		n.logger.Info("Peer connected", "peer", ev.PeerID.Short())
		n.metrics.PeerCount.Set(float64(n.net.PeerCount()))
	case network.PeerDisconnected:
		n.logger.Info("Peer disconnected", "peer", ev.PeerID.Short())
		n.metrics.PeerCount.Set(float64(n.net.PeerCount()))
	}
	return nil
}

// handleMessage dispatches an inbound wire message by topic.
func (n *Node) handleMessage(msg network.Message) error {
	switch msg.Kind {
	case network.KindTransaction:
		return n.handleTransaction(msg)
	case network.KindBlock:
		return n.handleBlock(msg)
	case network.KindConsensus:
		return n.handleConsensusMessage(msg)
	case network.KindPing:
		return n.net.Broadcast(network.Message{Kind: network.KindPong, Nonce: msg.Nonce})
	case network.KindPong, network.KindHandshake:
		// Liveness bookkeeping only.
		return nil
	default:
		return fmt.Errorf("unknown message kind %d", msg.Kind)
	}
}

// handleTransaction verifies, admits, and re-broadcasts a gossiped
// transaction.
func (n *Node) handleTransaction(msg network.Message) error {
	verified, err := crypto.VerifyTransaction(msg.Payload)
	if err != nil {
		n.logger.Warn("Rejected transaction envelope", "err", err)
		return nil
	}

	var tx runtime.Transaction
	if err := rlp.DecodeBytes(verified.Data(), &tx); err != nil {
		n.logger.Warn("Undecodable transaction payload", "err", err)
		return nil
	}

	if err := n.runtime.SubmitTransaction(tx); err != nil {
		n.metrics.TxsRejected.Inc()
		n.logger.Debug("Transaction refused", "err", err)
		return nil
	}

	n.metrics.TxsAdmitted.Inc()
	n.metrics.MempoolSize.Set(float64(n.runtime.MempoolSize()))
	return n.net.Broadcast(msg)
}

// handleBlock verifies, validates, applies, persists, and re-broadcasts a
// gossiped block.
func (n *Node) handleBlock(msg network.Message) error {
	verified, err := crypto.VerifyBlock(msg.Payload)
	if err != nil {
		n.logger.Warn("Rejected block envelope", "err", err)
		return nil
	}

	var block runtime.Block
	if err := rlp.DecodeBytes(verified.Data(), &block); err != nil {
		n.logger.Warn("Undecodable block payload", "err", err)
		return nil
	}

	if err := n.runtime.ValidateBlock(&block); err != nil {
		var hm *runtime.HeightMismatchError
		if errors.As(err, &hm) && hm.Got <= n.runtime.Height() {
			// Stale gossip for a block we already hold.
			return nil
		}
		n.logger.Warn("Invalid block", "height", block.Height, "err", err)
		return nil
	}
	if err := n.runtime.ApplyBlock(&block); err != nil {
		return fmt.Errorf("failed to apply block %d: %w", block.Height, err)
	}
	if err := n.store.Commit(block.Height, &block, n.runtime.State()); err != nil {
		return fmt.Errorf("failed to persist block %d: %w", block.Height, err)
	}

	n.metrics.ChainHeight.Set(float64(n.runtime.Height()))
	n.metrics.MempoolSize.Set(float64(n.runtime.MempoolSize()))
	n.logger.Info("⛓️  Applied block", "height", block.Height, "txs", block.TxCount())

	return n.net.Broadcast(msg)
}

// handleConsensusMessage dispatches a consensus wire message to the engine.
func (n *Node) handleConsensusMessage(msg network.Message) error {
	decoded, err := network.DecodeConsensusMessage(msg.Payload)
	if err != nil {
		n.logger.Warn("Undecodable consensus message", "err", err)
		return nil
	}

	switch m := decoded.(type) {
	case *consensus.Proposal:
		_, err = n.engine.OnProposal(*m)
	case *consensus.Prevote:
		_, err = n.engine.OnPrevote(*m)
	case *consensus.Commit:
		_, err = n.engine.OnCommit(*m)
	}
	if err != nil {
		if isFatal(err) {
			return err
		}
		// Byzantine-signal errors: log and drop.
		n.logger.Warn("Consensus message rejected", "err", err)
	}

	n.syncRoundTimer()
	return nil
}

// handleConsensusEvent reacts to one engine event: broadcasts go out on the
// bus (and loop back into our own engine so our votes count), finality goes
// to disk.
func (n *Node) handleConsensusEvent(ev consensus.Event) error {
	switch ev := ev.(type) {
	case consensus.BroadcastProposal:
		return n.gossipConsensus(&ev.Proposal)

	case consensus.BroadcastPrevote:
		if err := n.gossipConsensus(&ev.Prevote); err != nil {
			return err
		}
		if _, err := n.engine.OnPrevote(ev.Prevote); err != nil && isFatal(err) {
			return err
		}
		n.syncRoundTimer()
		return nil

	case consensus.BroadcastCommit:
		if err := n.gossipConsensus(&ev.Commit); err != nil {
			return err
		}
		if _, err := n.engine.OnCommit(ev.Commit); err != nil && isFatal(err) {
			return err
		}
		n.syncRoundTimer()
		return nil

	case consensus.BlockFinalized:
		return n.handleFinalized(ev)

	case consensus.RoundTimeout:
		n.logger.Warn("⏱️  Round timed out", "height", ev.Height, "round", ev.Round)
		return nil

	case consensus.ExecuteBlock:
		return n.handleExecuteBlock(ev)
	}
	return nil
}

// gossipConsensus encodes and broadcasts a consensus message.
func (n *Node) gossipConsensus(msg any) error {
	wire, err := network.EncodeConsensusMessage(msg)
	if err != nil {
		return err
	}
	return n.net.Broadcast(wire)
}

// handleFinalized persists the certificate and opens the next height.
func (n *Node) handleFinalized(ev consensus.BlockFinalized) error {
	if err := n.store.SaveFinalityCert(ev.Height, ev.Certificate); err != nil {
		return fmt.Errorf("failed to persist finality certificate %d: %w", ev.Height, err)
	}
	rs := n.engine.RoundState()
	if err := n.store.SaveRoundState(&rs); err != nil {
		return fmt.Errorf("failed to persist round state: %w", err)
	}

	if ev.Height%snapshotInterval == 0 {
		if err := n.store.SaveSnapshot(ev.Height, n.runtime.State()); err != nil {
			n.logger.Warn("Failed to write state snapshot", "height", ev.Height, "err", err)
		}
	}

	n.metrics.BlocksFinalized.Inc()
	n.logger.Info("✅ Block finalized",
		"height", ev.Height,
		"block", ev.BlockHash.TerminalString(),
		"weight", ev.Certificate.TotalWeight)

	n.engine.StartHeight(ev.Height + 1)
	n.syncRoundTimer()
	return nil
}

// handleExecuteBlock produces and proposes the block for a height we lead.
func (n *Node) handleExecuteBlock(ev consensus.ExecuteBlock) error {
	if !n.cfg.Runtime.ProducerEnabled {
		return nil
	}
	if n.runtime.Height()+1 != ev.Height {
		n.logger.Warn("Skipping proposal, runtime out of sync",
			"runtime", n.runtime.Height(), "consensus", ev.Height)
		return nil
	}

	block := n.runtime.ProduceBlock(n.keypair.PublicKey())
	if err := n.store.Commit(block.Height, block, n.runtime.State()); err != nil {
		return fmt.Errorf("failed to persist produced block %d: %w", block.Height, err)
	}

	n.metrics.ChainHeight.Set(float64(n.runtime.Height()))
	n.metrics.MempoolSize.Set(float64(n.runtime.MempoolSize()))
	n.logger.Info("⛏️  Produced block", "height", block.Height, "txs", block.TxCount())

	data, err := rlp.EncodeToBytes(block)
	if err != nil {
		return fmt.Errorf("failed to encode block %d: %w", block.Height, err)
	}
	sealed := crypto.SealEnvelope(n.keypair, data)
	if err := n.net.Broadcast(network.NewBlockMessage(sealed, block.Height)); err != nil {
		return err
	}

	txs, err := rlp.EncodeToBytes(block.Txs)
	if err != nil {
		return fmt.Errorf("failed to encode transactions: %w", err)
	}
	if err := n.engine.Propose(block.ParentHash, block.Hash(), block.StateRoot, txs); err != nil {
		return err
	}
	n.syncRoundTimer()
	return nil
}

// syncRoundTimer aligns the round timer with the engine's current phase.
// Past MaxRounds the timer stops and the height stalls until operators
// intervene.
func (n *Node) syncRoundTimer() {
	if n.roundTimer == nil {
		return
	}
	if !n.roundTimer.Stop() {
		select {
		case <-n.roundTimer.C:
		default:
		}
	}

	round := n.engine.CurrentRound()
	if round >= n.engine.Config().MaxRounds {
		n.logger.Error("Max rounds exhausted, consensus stalled",
			"height", n.engine.CurrentHeight(), "round", round)
		return
	}

	cfg := n.engine.Config()
	var d time.Duration
	switch n.engine.CurrentPhase() {
	case consensus.PhasePropose:
		d = cfg.ProposeTimeoutForRound(round)
	case consensus.PhasePrevote:
		d = cfg.PrevoteTimeoutForRound(round)
	case consensus.PhaseCommit:
		d = cfg.CommitTimeoutForRound(round)
	case consensus.PhaseCompleted:
		return
	}
	n.roundTimer.Reset(d)
}

// isFatal reports whether an error must halt the node. ForkAfterFinality is
// the only unrecoverable condition.
func isFatal(err error) bool {
	var fork *consensus.ForkAfterFinalityError
	return errors.As(err, &fork)
}
