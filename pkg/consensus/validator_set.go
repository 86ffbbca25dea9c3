package consensus

import (
	"github.com/sanketsaagar/lumenchain/pkg/types"
)

// Validator is a consensus participant: identity, Ed25519 public key, and
// voting weight. Identity is the public key, so the two fields coincide.
type Validator struct {
	// ID is the unique validator identity.
	ID types.Address `json:"id"`

	// PubKey is the Ed25519 public key.
	PubKey types.Address `json:"pubkey"`

	// Weight is the voting weight (1 unless the genesis registry assigns more).
	Weight uint64 `json:"weight"`
}

// NewValidator creates a weight-1 validator from a public key.
func NewValidator(pubkey types.Address) Validator {
	return Validator{ID: pubkey, PubKey: pubkey, Weight: 1}
}

// ValidatorSet is the ordered set of active validators for a height.
//
// Order matters: leader rotation indexes into the sequence. The set is
// immutable for the lifetime of a height; reconfiguration happens only
// between heights.
type ValidatorSet struct {
	// Ordered validator list.
	Validators []Validator `json:"validators"`

	// Lookup by ID, rebuilt after deserialization.
	byID map[types.Address]int

	// Cached total voting weight.
	totalWeight uint64
}

// NewValidatorSet builds a set of weight-1 validators from public keys,
// preserving order.
func NewValidatorSet(pubkeys []types.Address) *ValidatorSet {
	validators := make([]Validator, len(pubkeys))
	for i, pk := range pubkeys {
		validators[i] = NewValidator(pk)
	}
	return NewValidatorSetWeighted(validators)
}

// NewValidatorSetWeighted builds a set from explicit validators.
func NewValidatorSetWeighted(validators []Validator) *ValidatorSet {
	vs := &ValidatorSet{Validators: validators}
	vs.RebuildIndex()
	return vs
}

// RebuildIndex recomputes the ID lookup and cached total weight. Must be
// called after deserialization.
func (vs *ValidatorSet) RebuildIndex() {
	vs.byID = make(map[types.Address]int, len(vs.Validators))
	vs.totalWeight = 0
	for i, v := range vs.Validators {
		vs.byID[v.ID] = i
		vs.totalWeight += v.Weight
	}
}

// Len returns the number of validators.
func (vs *ValidatorSet) Len() int { return len(vs.Validators) }

// TotalWeight returns the total voting weight.
func (vs *ValidatorSet) TotalWeight() uint64 { return vs.totalWeight }

// Get returns the validator with the given ID.
func (vs *ValidatorSet) Get(id types.Address) (Validator, bool) {
	i, ok := vs.byID[id]
	if !ok {
		return Validator{}, false
	}
	return vs.Validators[i], true
}

// Contains reports whether an ID is in the set.
func (vs *ValidatorSet) Contains(id types.Address) bool {
	_, ok := vs.byID[id]
	return ok
}

// LeaderForRound returns the proposer for a round: deterministic rotation
// through the ordered list with period Len().
func (vs *ValidatorSet) LeaderForRound(round uint64) Validator {
	return vs.Validators[round%uint64(len(vs.Validators))]
}

// QuorumThreshold returns the weight needed to finalize a decision:
// a strict supermajority, 2w/3 + 1.
func (vs *ValidatorSet) QuorumThreshold() uint64 {
	return vs.totalWeight*2/3 + 1
}

// MaxFaulty returns the maximum tolerated faulty weight, (w-1)/3.
func (vs *ValidatorSet) MaxFaulty() uint64 {
	return (vs.totalWeight - 1) / 3
}
