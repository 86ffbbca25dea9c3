package consensus

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sanketsaagar/lumenchain/pkg/types"
)

// PrevoteSet aggregates the prevotes of one (height, round).
//
// One authoritative validator→vote map plus two derived indexes: voters
// grouped by block hash and the nil-vote set. Only aggregate queries are
// exposed; the indexes are rebuilt on insert and after deserialization.
type PrevoteSet struct {
	votes    map[types.Address]Prevote
	byBlock  map[common.Hash]map[types.Address]struct{}
	nilVotes map[types.Address]struct{}
}

// NewPrevoteSet creates an empty prevote set.
func NewPrevoteSet() *PrevoteSet {
	return &PrevoteSet{
		votes:    make(map[types.Address]Prevote),
		byBlock:  make(map[common.Hash]map[types.Address]struct{}),
		nilVotes: make(map[types.Address]struct{}),
	}
}

// Add inserts a prevote. Returns false if the validator already voted in
// this set, regardless of which block the second vote names.
func (ps *PrevoteSet) Add(vote Prevote) bool {
	if _, dup := ps.votes[vote.Validator]; dup {
		return false
	}

	if vote.BlockHash != nil {
		voters, ok := ps.byBlock[*vote.BlockHash]
		if !ok {
			voters = make(map[types.Address]struct{})
			ps.byBlock[*vote.BlockHash] = voters
		}
		voters[vote.Validator] = struct{}{}
	} else {
		ps.nilVotes[vote.Validator] = struct{}{}
	}

	ps.votes[vote.Validator] = vote
	return true
}

// HasVote reports whether a validator has voted.
func (ps *PrevoteSet) HasVote(validator types.Address) bool {
	_, ok := ps.votes[validator]
	return ok
}

// WeightForBlock sums the weight of validators prevoting for a block hash.
func (ps *PrevoteSet) WeightForBlock(blockHash common.Hash, vs *ValidatorSet) uint64 {
	var weight uint64
	for voter := range ps.byBlock[blockHash] {
		if v, ok := vs.Get(voter); ok {
			weight += v.Weight
		}
	}
	return weight
}

// NilCount returns the number of nil votes.
func (ps *PrevoteSet) NilCount() int { return len(ps.nilVotes) }

// Count returns the total number of prevotes collected.
func (ps *PrevoteSet) Count() int { return len(ps.votes) }

// prevoteSetJSON is the serialized form: the authoritative vote list only.
type prevoteSetJSON struct {
	Votes []Prevote `json:"votes"`
}

// MarshalJSON implements json.Marshaler.
func (ps *PrevoteSet) MarshalJSON() ([]byte, error) {
	out := prevoteSetJSON{Votes: make([]Prevote, 0, len(ps.votes))}
	for _, v := range ps.votes {
		out.Votes = append(out.Votes, v)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler, rebuilding the derived indexes.
func (ps *PrevoteSet) UnmarshalJSON(data []byte) error {
	var in prevoteSetJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*ps = *NewPrevoteSet()
	for _, v := range in.Votes {
		ps.Add(v)
	}
	return nil
}

// CommitSet aggregates the commits of one height.
type CommitSet struct {
	commits map[types.Address]Commit
	byBlock map[common.Hash][]Commit
}

// NewCommitSet creates an empty commit set.
func NewCommitSet() *CommitSet {
	return &CommitSet{
		commits: make(map[types.Address]Commit),
		byBlock: make(map[common.Hash][]Commit),
	}
}

// Add inserts a commit. Returns false on a duplicate validator.
func (cs *CommitSet) Add(commit Commit) bool {
	if _, dup := cs.commits[commit.Validator]; dup {
		return false
	}
	cs.byBlock[commit.BlockHash] = append(cs.byBlock[commit.BlockHash], commit)
	cs.commits[commit.Validator] = commit
	return true
}

// HasCommit reports whether a validator has committed.
func (cs *CommitSet) HasCommit(validator types.Address) bool {
	_, ok := cs.commits[validator]
	return ok
}

// WeightForBlock sums the weight of validators committing to a block hash.
func (cs *CommitSet) WeightForBlock(blockHash common.Hash, vs *ValidatorSet) uint64 {
	var weight uint64
	for _, c := range cs.byBlock[blockHash] {
		if v, ok := vs.Get(c.Validator); ok {
			weight += v.Weight
		}
	}
	return weight
}

// CommitsForBlock returns the commits naming a block hash.
func (cs *CommitSet) CommitsForBlock(blockHash common.Hash) []Commit {
	commits := cs.byBlock[blockHash]
	out := make([]Commit, len(commits))
	copy(out, commits)
	return out
}

// BlockHashes returns every block hash present in the set.
func (cs *CommitSet) BlockHashes() []common.Hash {
	hashes := make([]common.Hash, 0, len(cs.byBlock))
	for h := range cs.byBlock {
		hashes = append(hashes, h)
	}
	return hashes
}

// Count returns the total number of commits collected.
func (cs *CommitSet) Count() int { return len(cs.commits) }

// commitSetJSON is the serialized form: the authoritative commit list only.
type commitSetJSON struct {
	Commits []Commit `json:"commits"`
}

// MarshalJSON implements json.Marshaler.
func (cs *CommitSet) MarshalJSON() ([]byte, error) {
	out := commitSetJSON{Commits: make([]Commit, 0, len(cs.commits))}
	for _, c := range cs.commits {
		out.Commits = append(out.Commits, c)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler, rebuilding the derived index.
func (cs *CommitSet) UnmarshalJSON(data []byte) error {
	var in commitSetJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*cs = *NewCommitSet()
	for _, c := range in.Commits {
		cs.Add(c)
	}
	return nil
}
