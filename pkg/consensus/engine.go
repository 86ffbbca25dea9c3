// Package consensus implements the round-based BFT agreement protocol for
// LumenChain L1.
//
// The engine coordinates Propose → Prevote → Commit phases across a fixed
// validator set and tolerates up to (n-1)/3 faulty validators. It respects
// hard trust boundaries:
//
//   - never mutates chain state directly (runtime only)
//   - never touches the network (orchestrator only)
//   - never persists data directly (store only)
//
// Consensus decides WHICH block becomes canonical, nothing else.
package consensus

import (
	"bytes"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/sanketsaagar/lumenchain/pkg/crypto"
	"github.com/sanketsaagar/lumenchain/pkg/types"
)

// Result classifies the outcome of processing one consensus message.
type Result int

const (
	// ResultContinue: message accepted, protocol continues.
	ResultContinue Result = iota

	// ResultFinalized: the message completed commit quorum.
	ResultFinalized

	// ResultNeedMoreVotes: accepted, quorum not yet reached.
	ResultNeedMoreVotes

	// ResultIgnored: stale, off-round, or duplicate message.
	ResultIgnored
)

// Engine is the BFT consensus state machine for one validator.
//
// RoundState and the finalized map live behind a reader-writer lock. Message
// handlers hold the write lock for one logical transition and drop it before
// self-voting; the self-vote path reacquires and re-checks the prevoted /
// committed flags because another handler may have raced in between.
type Engine struct {
	cfg        Config
	validators *ValidatorSet
	keypair    *crypto.Keypair
	ourID      types.Address

	mu        sync.RWMutex
	state     *RoundState
	finalized map[uint64]*FinalityCertificate

	queue  *eventQueue
	logger log.Logger
}

// NewEngine creates an engine starting at height 1, round 0.
func NewEngine(cfg Config, validators *ValidatorSet, keypair *crypto.Keypair) *Engine {
	return &Engine{
		cfg:        cfg,
		validators: validators,
		keypair:    keypair,
		ourID:      keypair.PublicKey(),
		state:      NewRoundState(1, 0),
		finalized:  make(map[uint64]*FinalityCertificate),
		queue:      newEventQueue(),
		logger:     log.New("module", "consensus"),
	}
}

// Events returns the outbound event stream. The orchestrator is the only
// consumer.
func (e *Engine) Events() <-chan Event { return e.queue.out }

// Close stops the event pump. Call once the orchestrator loop has exited.
func (e *Engine) Close() { e.queue.close() }

// OurID returns this validator's identity.
func (e *Engine) OurID() types.Address { return e.ourID }

// Config returns the engine's timeout schedule.
func (e *Engine) Config() Config { return e.cfg }

// CurrentHeight returns the height being decided.
func (e *Engine) CurrentHeight() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Height
}

// CurrentRound returns the current round number.
func (e *Engine) CurrentRound() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Round
}

// CurrentPhase returns the current round phase.
func (e *Engine) CurrentPhase() Phase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Phase
}

// IsLeader reports whether we lead the current round.
func (e *Engine) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.validators.LeaderForRound(e.state.Round).ID == e.ourID
}

// RoundState returns a shallow copy of the current round state, for
// persistence.
func (e *Engine) RoundState() RoundState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return *e.state
}

// RestoreRoundState replaces the current round state (crash recovery).
func (e *Engine) RestoreRoundState(rs *RoundState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = rs
}

// StartHeight resets the engine to (height, 0). If we lead round 0, an
// ExecuteBlock event asks the runtime to produce the block to propose.
func (e *Engine) StartHeight(height uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = NewRoundState(height, 0)
	e.logger.Info("Starting consensus for new height", "height", height)

	if e.validators.LeaderForRound(0).ID == e.ourID {
		e.logger.Info("We are the leader for round 0", "height", height)
		e.queue.push(ExecuteBlock{Height: height})
	}
}

// Propose signs and broadcasts our proposal for the current round. Only the
// round leader may call this; the proposal is stored locally and our own
// prevote follows immediately.
func (e *Engine) Propose(prevHash, blockHash common.Hash, stateRoot common.Hash, transactions []byte) error {
	e.mu.Lock()

	leader := e.validators.LeaderForRound(e.state.Round)
	if leader.ID != e.ourID {
		e.mu.Unlock()
		return &WrongLeaderError{Expected: leader.ID, Got: e.ourID}
	}

	proposal := Proposal{
		Height:       e.state.Height,
		Round:        e.state.Round,
		PrevHash:     prevHash,
		BlockHash:    blockHash,
		StateRoot:    stateRoot,
		Transactions: transactions,
		Proposer:     e.ourID,
	}
	proposal.Signature = e.keypair.Sign(proposal.SigningPayload())

	e.state.Proposal = &proposal
	e.state.Phase = PhasePrevote

	e.logger.Info("Broadcasting proposal",
		"height", proposal.Height, "round", proposal.Round, "block", blockHash.TerminalString())
	e.queue.push(BroadcastProposal{Proposal: proposal})

	e.mu.Unlock()
	e.prevote(&blockHash)
	return nil
}

// OnProposal processes an inbound proposal. A valid proposal from the
// expected leader moves the round to Prevote and triggers our own prevote.
func (e *Engine) OnProposal(proposal Proposal) (Result, error) {
	e.mu.Lock()

	if proposal.Height != e.state.Height || proposal.Round != e.state.Round {
		e.mu.Unlock()
		return ResultIgnored, nil
	}

	leader := e.validators.LeaderForRound(e.state.Round)
	if proposal.Proposer != leader.ID {
		e.mu.Unlock()
		e.logger.Warn("Proposal from wrong leader",
			"expected", leader.ID.Short(), "got", proposal.Proposer.Short())
		return ResultIgnored, &WrongLeaderError{Expected: leader.ID, Got: proposal.Proposer}
	}

	if err := e.verifySignature(proposal.Proposer, proposal.SigningPayload(), proposal.Signature, "proposal"); err != nil {
		e.mu.Unlock()
		return ResultIgnored, err
	}

	e.state.Proposal = &proposal
	e.state.Phase = PhasePrevote

	e.logger.Info("Received valid proposal, moving to prevote",
		"height", proposal.Height, "round", proposal.Round, "block", proposal.BlockHash.TerminalString())

	alreadyPrevoted := e.state.Prevoted
	blockHash := proposal.BlockHash
	e.mu.Unlock()

	if !alreadyPrevoted {
		e.prevote(&blockHash)
	}
	return ResultContinue, nil
}

// prevote casts our prevote for a block hash (nil for a nil vote). Safe to
// call without holding the lock; re-checks the prevoted flag after acquiring.
func (e *Engine) prevote(blockHash *common.Hash) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Prevoted {
		return
	}

	vote := Prevote{
		Height:    e.state.Height,
		Round:     e.state.Round,
		BlockHash: blockHash,
		Validator: e.ourID,
	}
	vote.Signature = e.keypair.Sign(vote.SigningPayload())
	e.state.Prevoted = true

	e.logger.Debug("Casting prevote", "height", vote.Height, "round", vote.Round, "nil", blockHash == nil)
	e.queue.push(BroadcastPrevote{Prevote: vote})
}

// OnPrevote processes an inbound prevote. When prevote weight for the stored
// proposal reaches quorum the engine locks on the block and commits.
func (e *Engine) OnPrevote(vote Prevote) (Result, error) {
	e.mu.Lock()

	if vote.Height != e.state.Height || vote.Round != e.state.Round {
		e.mu.Unlock()
		return ResultIgnored, nil
	}

	if !e.validators.Contains(vote.Validator) {
		e.mu.Unlock()
		return ResultIgnored, &UnknownValidatorError{Validator: vote.Validator}
	}

	if err := e.verifySignature(vote.Validator, vote.SigningPayload(), vote.Signature, "prevote"); err != nil {
		e.mu.Unlock()
		return ResultIgnored, err
	}

	if !e.state.Prevotes.Add(vote) {
		e.mu.Unlock()
		return ResultIgnored, nil
	}

	e.logger.Debug("Received prevote",
		"height", vote.Height, "round", vote.Round,
		"from", vote.Validator.Short(), "votes", e.state.Prevotes.Count())

	if e.state.Proposal == nil {
		e.mu.Unlock()
		return ResultNeedMoreVotes, nil
	}

	blockHash := e.state.Proposal.BlockHash
	weight := e.state.Prevotes.WeightForBlock(blockHash, e.validators)
	quorum := e.validators.QuorumThreshold()

	if weight < quorum || e.state.Committed {
		e.mu.Unlock()
		return ResultNeedMoreVotes, nil
	}

	e.logger.Info("Prevote quorum reached, moving to commit",
		"height", e.state.Height, "round", e.state.Round, "weight", weight, "quorum", quorum)

	e.state.Phase = PhaseCommit
	lockedRound := e.state.Round
	e.state.LockedBlock = &blockHash
	e.state.LockedRound = &lockedRound

	e.mu.Unlock()
	e.commit(blockHash)
	return ResultContinue, nil
}

// commit casts our commit for a block hash. Safe to call without holding the
// lock; re-checks the committed flag after acquiring.
func (e *Engine) commit(blockHash common.Hash) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Committed {
		return
	}

	c := Commit{
		Height:    e.state.Height,
		Round:     e.state.Round,
		BlockHash: blockHash,
		Validator: e.ourID,
	}
	c.Signature = e.keypair.Sign(c.SigningPayload())
	e.state.Committed = true

	e.logger.Info("Casting commit vote",
		"height", c.Height, "round", c.Round, "block", blockHash.TerminalString())
	e.queue.push(BroadcastCommit{Commit: c})
}

// OnCommit processes an inbound commit. Commits only need to match the
// current height: an off-round commit still counts toward finality here.
// When commit weight for any hash reaches quorum, a finality certificate is
// built and BlockFinalized is emitted.
func (e *Engine) OnCommit(commit Commit) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if commit.Height != e.state.Height {
		return ResultIgnored, nil
	}

	if !e.validators.Contains(commit.Validator) {
		return ResultIgnored, &UnknownValidatorError{Validator: commit.Validator}
	}

	if err := e.verifySignature(commit.Validator, commit.SigningPayload(), commit.Signature, "commit"); err != nil {
		return ResultIgnored, err
	}

	if !e.state.Commits.Add(commit) {
		return ResultIgnored, nil
	}

	e.logger.Debug("Received commit",
		"height", commit.Height, "from", commit.Validator.Short(), "commits", e.state.Commits.Count())

	weight := e.state.Commits.WeightForBlock(commit.BlockHash, e.validators)
	if weight < e.validators.QuorumThreshold() {
		return ResultNeedMoreVotes, nil
	}

	height := e.state.Height
	if existing, ok := e.finalized[height]; ok {
		if existing.BlockHash == commit.BlockHash {
			return ResultIgnored, nil
		}
		return ResultIgnored, &ForkAfterFinalityError{
			Height:   height,
			Existing: existing.BlockHash,
			Got:      commit.BlockHash,
		}
	}

	e.logger.Info("BLOCK FINALIZED",
		"height", height, "round", e.state.Round,
		"block", commit.BlockHash.TerminalString(), "weight", weight)

	certificate := NewFinalityCertificate(
		height,
		commit.BlockHash,
		e.state.Commits.CommitsForBlock(commit.BlockHash),
		weight,
	)
	e.finalized[height] = certificate
	e.state.Phase = PhaseCompleted

	e.queue.push(BlockFinalized{
		Height:      height,
		BlockHash:   commit.BlockHash,
		Certificate: certificate,
	})

	return ResultFinalized, nil
}

// OnTimeout advances to the next round, carrying the lock forward. The
// prevoted/committed flags and vote sets reset; RoundTimeout is emitted for
// the expired round.
func (e *Engine) OnTimeout() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.logger.Warn("Round timeout",
		"height", e.state.Height, "round", e.state.Round, "phase", e.state.Phase.String())

	e.queue.push(RoundTimeout{Height: e.state.Height, Round: e.state.Round})
	e.state = e.state.NextRound()

	e.logger.Info("Advanced to next round", "height", e.state.Height, "round", e.state.Round)
	if e.validators.LeaderForRound(e.state.Round).ID == e.ourID {
		e.logger.Info("We are the leader for this round", "round", e.state.Round)
	}
}

// IsFinalized reports whether a height has a finality certificate.
func (e *Engine) IsFinalized(height uint64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.finalized[height]
	return ok
}

// GetFinalityCertificate returns the certificate for a height, if any.
func (e *Engine) GetFinalityCertificate(height uint64) (*FinalityCertificate, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cert, ok := e.finalized[height]
	return cert, ok
}

// RestoreFinalityCertificate reloads a certificate from disk (crash
// recovery).
func (e *Engine) RestoreFinalityCertificate(cert *FinalityCertificate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finalized[cert.Height] = cert
}

// ForkChoice returns the canonical block hash for a height:
//
//  1. the finality certificate's hash, if one exists;
//  2. at the current height, the hash with the highest commit weight in the
//     current commit set (ties broken by lexicographic byte order);
//  3. at the current height, the locked block, if any;
//  4. absent (always, for heights that are neither finalized nor current).
func (e *Engine) ForkChoice(height uint64) (common.Hash, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if cert, ok := e.finalized[height]; ok {
		return cert.BlockHash, true
	}

	if e.state.Height != height {
		return common.Hash{}, false
	}

	var (
		best       common.Hash
		bestWeight uint64
	)
	for _, h := range e.state.Commits.BlockHashes() {
		w := e.state.Commits.WeightForBlock(h, e.validators)
		if w > bestWeight || (w == bestWeight && w > 0 && bytes.Compare(h[:], best[:]) < 0) {
			best, bestWeight = h, w
		}
	}
	if bestWeight > 0 {
		return best, true
	}

	if e.state.LockedBlock != nil {
		return *e.state.LockedBlock, true
	}

	return common.Hash{}, false
}

// verifySignature checks a message signature against the validator's
// registered public key. Caller holds at least the read lock.
func (e *Engine) verifySignature(id types.Address, payload []byte, sig types.Signature, msgType string) error {
	validator, ok := e.validators.Get(id)
	if !ok {
		return &UnknownValidatorError{Validator: id}
	}
	if err := crypto.Verify(validator.PubKey, payload, sig); err != nil {
		return &InvalidSignatureError{MessageType: msgType}
	}
	return nil
}
