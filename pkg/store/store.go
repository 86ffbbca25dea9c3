// Package store is the crash-safe persistence layer for LumenChain L1.
//
// Layout under the configured base path:
//
//	blocks/{height:06}.block        one binary block file per height
//	state/latest.state              latest committed state snapshot
//	state/snapshot_{height:06}.state  optional named snapshots
//	consensus/round_state.json      live round state
//	consensus/finality_{height:08}.json  one certificate per finalized height
//	consensus/validators.json       active validator set
//
// Every write is serialize → temp file → fsync → rename; the rename is the
// atomic commit point.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sanketsaagar/lumenchain/pkg/consensus"
	"github.com/sanketsaagar/lumenchain/pkg/runtime"
)

// Store is the unified persistence facade over block, state, and consensus
// storage.
type Store struct {
	blocks    *BlockStore
	state     *StateStore
	consensus *ConsensusStore
	basePath  string
}

// New opens (or creates) a store rooted at basePath.
func New(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	blocks, err := NewBlockStore(filepath.Join(basePath, "blocks"))
	if err != nil {
		return nil, err
	}
	state, err := NewStateStore(filepath.Join(basePath, "state"))
	if err != nil {
		return nil, err
	}
	cons, err := NewConsensusStore(filepath.Join(basePath, "consensus"))
	if err != nil {
		return nil, err
	}

	return &Store{blocks: blocks, state: state, consensus: cons, basePath: basePath}, nil
}

// BasePath returns the store's root directory.
func (s *Store) BasePath() string { return s.basePath }

// SaveBlock persists a block at a height.
func (s *Store) SaveBlock(height uint64, block *runtime.Block) error {
	return s.blocks.Save(height, block)
}

// LoadBlock reads the block at a height.
func (s *Store) LoadBlock(height uint64) (*runtime.Block, error) {
	return s.blocks.Load(height)
}

// BlockExists reports whether a block is stored at a height.
func (s *Store) BlockExists(height uint64) bool {
	return s.blocks.Exists(height)
}

// LatestBlockHeight returns the highest stored block height.
func (s *Store) LatestBlockHeight() (uint64, bool, error) {
	return s.blocks.LatestHeight()
}

// SaveState persists the latest state snapshot.
func (s *Store) SaveState(state *runtime.State) error {
	return s.state.SaveLatest(state)
}

// LoadState reads the latest state snapshot.
func (s *Store) LoadState() (*runtime.State, error) {
	return s.state.LoadLatest()
}

// HasState reports whether a latest state snapshot exists.
func (s *Store) HasState() bool {
	return s.state.HasLatest()
}

// SaveSnapshot persists a named state snapshot at a height.
func (s *Store) SaveSnapshot(height uint64, state *runtime.State) error {
	return s.state.SaveSnapshot(height, state)
}

// LoadSnapshot reads a named state snapshot.
func (s *Store) LoadSnapshot(height uint64) (*runtime.State, error) {
	return s.state.LoadSnapshot(height)
}

// SaveRoundState persists the live consensus round state.
func (s *Store) SaveRoundState(state *consensus.RoundState) error {
	return s.consensus.SaveRoundState(state)
}

// LoadRoundState reads the persisted round state.
func (s *Store) LoadRoundState() (*consensus.RoundState, error) {
	return s.consensus.LoadRoundState()
}

// HasRoundState reports whether round state was persisted.
func (s *Store) HasRoundState() bool {
	return s.consensus.HasRoundState()
}

// SaveFinalityCert persists a finality certificate.
func (s *Store) SaveFinalityCert(height uint64, cert *consensus.FinalityCertificate) error {
	return s.consensus.SaveFinalityCertificate(height, cert)
}

// LoadFinalityCert reads the finality certificate for a height.
func (s *Store) LoadFinalityCert(height uint64) (*consensus.FinalityCertificate, error) {
	return s.consensus.LoadFinalityCertificate(height)
}

// LatestFinalizedHeight returns the highest height with a certificate.
func (s *Store) LatestFinalizedHeight() (uint64, bool, error) {
	return s.consensus.LatestFinalizedHeight()
}

// SaveValidatorSet persists the active validator set.
func (s *Store) SaveValidatorSet(set *consensus.ValidatorSet) error {
	return s.consensus.SaveValidatorSet(set)
}

// LoadValidatorSet reads the active validator set.
func (s *Store) LoadValidatorSet() (*consensus.ValidatorSet, error) {
	return s.consensus.LoadValidatorSet()
}

// Commit persists a block and then the matching state.
//
// Ordering matters for recovery: a block file without its state snapshot is
// treated as an incomplete commit and the block is re-applied on restart.
func (s *Store) Commit(height uint64, block *runtime.Block, state *runtime.State) error {
	if err := s.SaveBlock(height, block); err != nil {
		return err
	}
	return s.SaveState(state)
}
