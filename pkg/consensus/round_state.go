package consensus

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Phase is the stage of a consensus round.
type Phase int

const (
	// PhasePropose: waiting for the leader's proposal.
	PhasePropose Phase = iota

	// PhasePrevote: voting on proposal validity.
	PhasePrevote

	// PhaseCommit: committing to finalize.
	PhaseCommit

	// PhaseCompleted: round finished (finalized or abandoned).
	PhaseCompleted
)

var phaseNames = map[Phase]string{
	PhasePropose:   "Propose",
	PhasePrevote:   "Prevote",
	PhaseCommit:    "Commit",
	PhaseCompleted: "Completed",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// RoundState is the live state of one consensus round.
type RoundState struct {
	// Height being decided.
	Height uint64 `json:"height"`

	// Round within the height.
	Round uint64 `json:"round"`

	// Phase of the round.
	Phase Phase `json:"phase"`

	// Proposal received for this round, if any.
	Proposal *Proposal `json:"proposal"`

	// Prevotes collected this round.
	Prevotes *PrevoteSet `json:"prevotes"`

	// Commits collected at this height since this round began; commits
	// from any round of the height are accepted.
	Commits *CommitSet `json:"commits"`

	// Prevoted records whether we cast a prevote this round.
	Prevoted bool `json:"prevoted"`

	// Committed records whether we cast a commit this round.
	Committed bool `json:"committed"`

	// LockedBlock is the hash we committed to, carried across rounds.
	LockedBlock *common.Hash `json:"locked_block"`

	// LockedRound is the round the lock was taken in.
	LockedRound *uint64 `json:"locked_round"`
}

// NewRoundState creates the initial state for a (height, round).
func NewRoundState(height, round uint64) *RoundState {
	return &RoundState{
		Height:   height,
		Round:    round,
		Phase:    PhasePropose,
		Prevotes: NewPrevoteSet(),
		Commits:  NewCommitSet(),
	}
}

// NextRound returns a fresh state for the next round at the same height.
// Vote sets, proposal, and the prevoted/committed flags reset; the lock
// carries forward.
func (rs *RoundState) NextRound() *RoundState {
	next := NewRoundState(rs.Height, rs.Round+1)
	next.LockedBlock = rs.LockedBlock
	next.LockedRound = rs.LockedRound
	return next
}

// NextHeight returns a fresh round-0 state for the next height. Everything
// resets, including the lock.
func (rs *RoundState) NextHeight() *RoundState {
	return NewRoundState(rs.Height+1, 0)
}
