package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sanketsaagar/lumenchain/pkg/consensus"
)

// ConsensusStore persists consensus artifacts for crash recovery: the live
// round state, one finality certificate per finalized height, and the
// validator set. Files are human-readable JSON with lowercase-hex signatures.
type ConsensusStore struct {
	basePath string
}

// NewConsensusStore creates the consensus directory if needed.
func NewConsensusStore(basePath string) (*ConsensusStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create consensus store: %w", err)
	}
	return &ConsensusStore{basePath: basePath}, nil
}

func (cs *ConsensusStore) roundStatePath() string {
	return filepath.Join(cs.basePath, "round_state.json")
}

func (cs *ConsensusStore) certPath(height uint64) string {
	return filepath.Join(cs.basePath, fmt.Sprintf("finality_%08d.json", height))
}

func (cs *ConsensusStore) validatorsPath() string {
	return filepath.Join(cs.basePath, "validators.json")
}

// SaveRoundState persists the current round state.
func (cs *ConsensusStore) SaveRoundState(state *consensus.RoundState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return &SerializationError{Key: "round_state", Err: err}
	}
	return atomicWrite(cs.roundStatePath(), data)
}

// LoadRoundState reads the persisted round state.
func (cs *ConsensusStore) LoadRoundState() (*consensus.RoundState, error) {
	data, err := os.ReadFile(cs.roundStatePath())
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: round state", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read round state: %w", err)
	}

	var state consensus.RoundState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, &SerializationError{Key: "round_state", Err: err}
	}
	return &state, nil
}

// HasRoundState reports whether a round state file exists.
func (cs *ConsensusStore) HasRoundState() bool {
	_, err := os.Stat(cs.roundStatePath())
	return err == nil
}

// SaveFinalityCertificate persists a certificate for a finalized height.
func (cs *ConsensusStore) SaveFinalityCertificate(height uint64, cert *consensus.FinalityCertificate) error {
	data, err := json.MarshalIndent(cert, "", "  ")
	if err != nil {
		return &SerializationError{Key: fmt.Sprintf("finality:%d", height), Err: err}
	}
	return atomicWrite(cs.certPath(height), data)
}

// LoadFinalityCertificate reads the certificate for a height.
func (cs *ConsensusStore) LoadFinalityCertificate(height uint64) (*consensus.FinalityCertificate, error) {
	data, err := os.ReadFile(cs.certPath(height))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: finality certificate %d", ErrNotFound, height)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read finality certificate %d: %w", height, err)
	}

	var cert consensus.FinalityCertificate
	if err := json.Unmarshal(data, &cert); err != nil {
		return nil, &SerializationError{Key: fmt.Sprintf("finality:%d", height), Err: err}
	}
	return &cert, nil
}

// LatestFinalizedHeight scans for the highest finality certificate. Returns
// (0, false) when none are stored.
func (cs *ConsensusStore) LatestFinalizedHeight() (uint64, bool, error) {
	entries, err := os.ReadDir(cs.basePath)
	if err != nil {
		return 0, false, fmt.Errorf("failed to scan consensus store: %w", err)
	}

	var (
		highest uint64
		found   bool
	)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "finality_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		heightStr := strings.TrimSuffix(strings.TrimPrefix(name, "finality_"), ".json")
		height, err := strconv.ParseUint(heightStr, 10, 64)
		if err != nil {
			continue
		}
		if !found || height > highest {
			highest, found = height, true
		}
	}
	return highest, found, nil
}

// SaveValidatorSet persists the active validator set.
func (cs *ConsensusStore) SaveValidatorSet(set *consensus.ValidatorSet) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return &SerializationError{Key: "validators", Err: err}
	}
	return atomicWrite(cs.validatorsPath(), data)
}

// LoadValidatorSet reads the validator set, rebuilding its lookup index.
func (cs *ConsensusStore) LoadValidatorSet() (*consensus.ValidatorSet, error) {
	data, err := os.ReadFile(cs.validatorsPath())
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: validator set", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read validator set: %w", err)
	}

	var set consensus.ValidatorSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, &SerializationError{Key: "validators", Err: err}
	}
	set.RebuildIndex()
	return &set, nil
}

// Clear removes all consensus JSON artifacts (testing/reset).
func (cs *ConsensusStore) Clear() error {
	entries, err := os.ReadDir(cs.basePath)
	if err != nil {
		return fmt.Errorf("failed to scan consensus store: %w", err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".json" {
			if err := os.Remove(filepath.Join(cs.basePath, entry.Name())); err != nil {
				return fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
			}
		}
	}
	return nil
}
