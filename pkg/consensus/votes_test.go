package consensus

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestPrevoteSetAggregation(t *testing.T) {
	keys := testKeys(4)
	vs := NewValidatorSet(keys)
	prevotes := NewPrevoteSet()

	blockHash := common.Hash{1}
	for i := 0; i < 3; i++ {
		hash := blockHash
		require.True(t, prevotes.Add(Prevote{
			Height: 1, Round: 0, BlockHash: &hash, Validator: keys[i],
		}))
	}

	require.Equal(t, 3, prevotes.Count())
	require.Equal(t, uint64(3), prevotes.WeightForBlock(blockHash, vs))
	require.Equal(t, uint64(0), prevotes.WeightForBlock(common.Hash{2}, vs))
}

func TestDuplicatePrevoteRejected(t *testing.T) {
	keys := testKeys(1)
	prevotes := NewPrevoteSet()

	hash := common.Hash{1}
	vote := Prevote{Height: 1, Round: 0, BlockHash: &hash, Validator: keys[0]}

	require.True(t, prevotes.Add(vote))
	require.False(t, prevotes.Add(vote))
	require.Equal(t, 1, prevotes.Count())

	// Even a different block hash from the same validator is a duplicate.
	other := common.Hash{2}
	require.False(t, prevotes.Add(Prevote{Height: 1, Round: 0, BlockHash: &other, Validator: keys[0]}))
	require.Equal(t, 1, prevotes.Count())

	// And so is a nil vote.
	require.False(t, prevotes.Add(Prevote{Height: 1, Round: 0, Validator: keys[0]}))
	require.Equal(t, 1, prevotes.Count())
}

func TestNilPrevotesTrackedSeparately(t *testing.T) {
	keys := testKeys(3)
	prevotes := NewPrevoteSet()

	hash := common.Hash{1}
	require.True(t, prevotes.Add(Prevote{Height: 1, Round: 0, BlockHash: &hash, Validator: keys[0]}))
	require.True(t, prevotes.Add(Prevote{Height: 1, Round: 0, Validator: keys[1]}))
	require.True(t, prevotes.Add(Prevote{Height: 1, Round: 0, Validator: keys[2]}))

	require.Equal(t, 3, prevotes.Count())
	require.Equal(t, 2, prevotes.NilCount())
}

func TestCommitSetAggregation(t *testing.T) {
	keys := testKeys(4)
	vs := NewValidatorSet(keys)
	commits := NewCommitSet()

	blockHash := common.Hash{7}
	for i := 0; i < 3; i++ {
		require.True(t, commits.Add(Commit{
			Height: 1, Round: 0, BlockHash: blockHash, Validator: keys[i],
		}))
	}
	require.False(t, commits.Add(Commit{Height: 1, Round: 0, BlockHash: blockHash, Validator: keys[0]}))

	require.Equal(t, 3, commits.Count())
	require.Equal(t, uint64(3), commits.WeightForBlock(blockHash, vs))
	require.Len(t, commits.CommitsForBlock(blockHash), 3)
	require.True(t, commits.HasCommit(keys[0]))
}

func TestVoteSetJSONRoundTrip(t *testing.T) {
	keys := testKeys(3)
	vs := NewValidatorSet(keys)

	prevotes := NewPrevoteSet()
	hash := common.Hash{9}
	prevotes.Add(Prevote{Height: 2, Round: 1, BlockHash: &hash, Validator: keys[0]})
	prevotes.Add(Prevote{Height: 2, Round: 1, Validator: keys[1]})

	data, err := json.Marshal(prevotes)
	require.NoError(t, err)

	restored := NewPrevoteSet()
	require.NoError(t, json.Unmarshal(data, restored))

	require.Equal(t, 2, restored.Count())
	require.Equal(t, 1, restored.NilCount())
	require.Equal(t, uint64(1), restored.WeightForBlock(hash, vs))
	require.False(t, restored.Add(Prevote{Height: 2, Round: 1, BlockHash: &hash, Validator: keys[0]}))

	commits := NewCommitSet()
	commits.Add(Commit{Height: 2, Round: 1, BlockHash: hash, Validator: keys[2]})

	data, err = json.Marshal(commits)
	require.NoError(t, err)

	restoredCommits := NewCommitSet()
	require.NoError(t, json.Unmarshal(data, restoredCommits))
	require.Equal(t, uint64(1), restoredCommits.WeightForBlock(hash, vs))
}
