package consensus

import (
	"bytes"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/sanketsaagar/lumenchain/pkg/crypto"
	"github.com/sanketsaagar/lumenchain/pkg/types"
)

// testCluster is a set of engines sharing one validator set, indexed in
// leader-rotation order.
type testCluster struct {
	keypairs []*crypto.Keypair
	set      *ValidatorSet
	engines  []*Engine
}

func newTestCluster(t *testing.T, n int) *testCluster {
	t.Helper()

	keypairs := make([]*crypto.Keypair, n)
	pubkeys := make([]types.Address, n)
	for i := range keypairs {
		kp, err := crypto.GenerateKeypair()
		require.NoError(t, err)
		keypairs[i] = kp
		pubkeys[i] = kp.PublicKey()
	}

	set := NewValidatorSet(pubkeys)
	engines := make([]*Engine, n)
	for i := range engines {
		engines[i] = NewEngine(DefaultConfig(), set, keypairs[i])
	}

	cluster := &testCluster{keypairs: keypairs, set: set, engines: engines}
	t.Cleanup(func() {
		for _, e := range engines {
			e.Close()
		}
	})
	return cluster
}

// nextEventOfType reads events until one of the wanted type appears.
func nextEventOfType[T Event](t *testing.T, ch <-chan Event) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for i := 0; i < 32; i++ {
		select {
		case ev := <-ch:
			if typed, ok := ev.(T); ok {
				return typed
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event")
		}
	}
	t.Fatalf("wanted event type not emitted")
	panic("unreachable")
}

func TestEngineCreation(t *testing.T) {
	c := newTestCluster(t, 4)
	e := c.engines[0]

	require.Equal(t, uint64(1), e.CurrentHeight())
	require.Equal(t, uint64(0), e.CurrentRound())
	require.Equal(t, PhasePropose, e.CurrentPhase())
}

func TestStartHeightEmitsExecuteForLeader(t *testing.T) {
	c := newTestCluster(t, 4)

	c.engines[0].StartHeight(5)
	require.Equal(t, uint64(5), c.engines[0].CurrentHeight())
	require.True(t, c.engines[0].IsLeader())

	exec := nextEventOfType[ExecuteBlock](t, c.engines[0].Events())
	require.Equal(t, uint64(5), exec.Height)

	// Non-leaders stay quiet in round 0.
	c.engines[1].StartHeight(5)
	require.False(t, c.engines[1].IsLeader())
	select {
	case ev := <-c.engines[1].Events():
		t.Fatalf("unexpected event from non-leader: %T", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

// Full quorum path across four validators: propose, prevote, commit,
// finalize on every engine.
func TestQuorumPathFourValidators(t *testing.T) {
	c := newTestCluster(t, 4)
	for _, e := range c.engines {
		e.StartHeight(1)
	}

	blockHash := common.BytesToHash(bytes.Repeat([]byte{0x11}, 32))
	require.NoError(t, c.engines[0].Propose(common.Hash{}, blockHash, common.Hash{}, nil))

	proposal := nextEventOfType[BroadcastProposal](t, c.engines[0].Events()).Proposal
	require.Equal(t, uint64(1), proposal.Height)
	require.Equal(t, blockHash, proposal.BlockHash)

	// Every follower prevotes the proposal; the leader prevoted on its own.
	prevotes := []Prevote{
		nextEventOfType[BroadcastPrevote](t, c.engines[0].Events()).Prevote,
	}
	for _, e := range c.engines[1:] {
		result, err := e.OnProposal(proposal)
		require.NoError(t, err)
		require.Equal(t, ResultContinue, result)
		require.Equal(t, PhasePrevote, e.CurrentPhase())
		prevotes = append(prevotes, nextEventOfType[BroadcastPrevote](t, e.Events()).Prevote)
	}
	require.Len(t, prevotes, 4)

	// Deliver all prevotes everywhere; quorum (3) flips each engine to
	// commit and locks it on the block.
	for _, e := range c.engines {
		for _, v := range prevotes {
			_, err := e.OnPrevote(v)
			require.NoError(t, err)
		}
		require.Equal(t, PhaseCommit, e.CurrentPhase())

		rs := e.RoundState()
		require.NotNil(t, rs.LockedBlock)
		require.Equal(t, blockHash, *rs.LockedBlock)
		require.Equal(t, uint64(0), *rs.LockedRound)
	}

	commits := make([]Commit, 0, 4)
	for _, e := range c.engines {
		commits = append(commits, nextEventOfType[BroadcastCommit](t, e.Events()).Commit)
	}

	// Deliver commits everywhere; the third reaches quorum and finalizes.
	for _, e := range c.engines {
		var finalized bool
		for _, cm := range commits {
			result, err := e.OnCommit(cm)
			require.NoError(t, err)
			if result == ResultFinalized {
				finalized = true
			}
		}
		require.True(t, finalized)

		ev := nextEventOfType[BlockFinalized](t, e.Events())
		require.Equal(t, uint64(1), ev.Height)
		require.Equal(t, blockHash, ev.BlockHash)
		require.Equal(t, uint64(3), ev.Certificate.TotalWeight)
		require.GreaterOrEqual(t, ev.Certificate.TotalWeight, c.set.QuorumThreshold())

		require.True(t, e.IsFinalized(1))
		cert, ok := e.GetFinalityCertificate(1)
		require.True(t, ok)
		require.Equal(t, blockHash, cert.BlockHash)

		hash, ok := e.ForkChoice(1)
		require.True(t, ok)
		require.Equal(t, blockHash, hash)
	}
}

func TestTimeoutAdvancesRound(t *testing.T) {
	c := newTestCluster(t, 4)
	e := c.engines[1]
	e.StartHeight(1)

	e.OnTimeout()

	timeout := nextEventOfType[RoundTimeout](t, e.Events())
	require.Equal(t, uint64(1), timeout.Height)
	require.Equal(t, uint64(0), timeout.Round)

	require.Equal(t, uint64(1), e.CurrentHeight())
	require.Equal(t, uint64(1), e.CurrentRound())
	require.Equal(t, PhasePropose, e.CurrentPhase())

	rs := e.RoundState()
	require.False(t, rs.Prevoted)
	require.False(t, rs.Committed)
}

func TestLockCarriesForwardAcrossTimeout(t *testing.T) {
	c := newTestCluster(t, 4)
	for _, e := range c.engines {
		e.StartHeight(1)
	}

	blockHash := common.Hash{0x42}
	require.NoError(t, c.engines[0].Propose(common.Hash{}, blockHash, common.Hash{}, nil))
	proposal := nextEventOfType[BroadcastProposal](t, c.engines[0].Events()).Proposal

	e := c.engines[1]
	_, err := e.OnProposal(proposal)
	require.NoError(t, err)

	prevotes := []Prevote{nextEventOfType[BroadcastPrevote](t, e.Events()).Prevote}
	for _, signer := range []int{0, 2} {
		other := c.engines[signer]
		if signer == 0 {
			prevotes = append(prevotes, nextEventOfType[BroadcastPrevote](t, other.Events()).Prevote)
			continue
		}
		_, err := other.OnProposal(proposal)
		require.NoError(t, err)
		prevotes = append(prevotes, nextEventOfType[BroadcastPrevote](t, other.Events()).Prevote)
	}

	for _, v := range prevotes {
		_, err := e.OnPrevote(v)
		require.NoError(t, err)
	}
	require.Equal(t, PhaseCommit, e.CurrentPhase())

	e.OnTimeout()
	rs := e.RoundState()
	require.Equal(t, uint64(1), rs.Round)
	require.NotNil(t, rs.LockedBlock)
	require.Equal(t, blockHash, *rs.LockedBlock)

	// Locked block is the fork-choice fallback while no commits exist.
	hash, ok := e.ForkChoice(1)
	require.True(t, ok)
	require.Equal(t, blockHash, hash)
}

func TestWrongLeaderRejected(t *testing.T) {
	c := newTestCluster(t, 4)
	e := c.engines[2]
	e.StartHeight(1)

	// Signed by V1, but V0 leads round 0.
	proposal := Proposal{
		Height:    1,
		Round:     0,
		BlockHash: common.Hash{0x11},
		Proposer:  c.keypairs[1].PublicKey(),
	}
	proposal.Signature = c.keypairs[1].Sign(proposal.SigningPayload())

	result, err := e.OnProposal(proposal)
	require.Equal(t, ResultIgnored, result)

	var wrongLeader *WrongLeaderError
	require.ErrorAs(t, err, &wrongLeader)
	require.Equal(t, c.keypairs[0].PublicKey(), wrongLeader.Expected)
	require.Equal(t, c.keypairs[1].PublicKey(), wrongLeader.Got)

	// Round state untouched.
	rs := e.RoundState()
	require.Nil(t, rs.Proposal)
	require.Equal(t, PhasePropose, rs.Phase)
	require.False(t, rs.Prevoted)
}

func TestProposeRejectsNonLeader(t *testing.T) {
	c := newTestCluster(t, 4)
	e := c.engines[1]
	e.StartHeight(1)

	err := e.Propose(common.Hash{}, common.Hash{0x11}, common.Hash{}, nil)
	var wrongLeader *WrongLeaderError
	require.ErrorAs(t, err, &wrongLeader)
}

func TestStaleAndOffRoundMessagesIgnored(t *testing.T) {
	c := newTestCluster(t, 4)
	e := c.engines[1]
	e.StartHeight(5)

	hash := common.Hash{0x11}

	// Wrong height prevote.
	vote := Prevote{Height: 4, Round: 0, BlockHash: &hash, Validator: c.keypairs[0].PublicKey()}
	vote.Signature = c.keypairs[0].Sign(vote.SigningPayload())
	result, err := e.OnPrevote(vote)
	require.NoError(t, err)
	require.Equal(t, ResultIgnored, result)

	// Wrong round prevote.
	vote = Prevote{Height: 5, Round: 3, BlockHash: &hash, Validator: c.keypairs[0].PublicKey()}
	vote.Signature = c.keypairs[0].Sign(vote.SigningPayload())
	result, err = e.OnPrevote(vote)
	require.NoError(t, err)
	require.Equal(t, ResultIgnored, result)

	// Off-round commits still count at the current height.
	commit := Commit{Height: 5, Round: 3, BlockHash: hash, Validator: c.keypairs[0].PublicKey()}
	commit.Signature = c.keypairs[0].Sign(commit.SigningPayload())
	result, err = e.OnCommit(commit)
	require.NoError(t, err)
	require.Equal(t, ResultNeedMoreVotes, result)

	// Wrong height commit is ignored.
	commit = Commit{Height: 4, Round: 0, BlockHash: hash, Validator: c.keypairs[2].PublicKey()}
	commit.Signature = c.keypairs[2].Sign(commit.SigningPayload())
	result, err = e.OnCommit(commit)
	require.NoError(t, err)
	require.Equal(t, ResultIgnored, result)
}

func TestUnknownValidatorRejected(t *testing.T) {
	c := newTestCluster(t, 4)
	e := c.engines[0]
	e.StartHeight(1)

	outsider, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	hash := common.Hash{0x11}
	vote := Prevote{Height: 1, Round: 0, BlockHash: &hash, Validator: outsider.PublicKey()}
	vote.Signature = outsider.Sign(vote.SigningPayload())

	result, voteErr := e.OnPrevote(vote)
	require.Equal(t, ResultIgnored, result)

	var unknown *UnknownValidatorError
	require.ErrorAs(t, voteErr, &unknown)
}

func TestInvalidSignatureRejected(t *testing.T) {
	c := newTestCluster(t, 4)
	e := c.engines[0]
	e.StartHeight(1)

	hash := common.Hash{0x11}
	vote := Prevote{Height: 1, Round: 0, BlockHash: &hash, Validator: c.keypairs[1].PublicKey()}
	// Signature left zeroed.

	result, err := e.OnPrevote(vote)
	require.Equal(t, ResultIgnored, result)

	var invalid *InvalidSignatureError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "prevote", invalid.MessageType)
}

func TestDuplicateVoteIgnoredByEngine(t *testing.T) {
	c := newTestCluster(t, 4)
	e := c.engines[0]
	e.StartHeight(1)

	hash := common.Hash{0x11}
	vote := Prevote{Height: 1, Round: 0, BlockHash: &hash, Validator: c.keypairs[1].PublicKey()}
	vote.Signature = c.keypairs[1].Sign(vote.SigningPayload())

	result, err := e.OnPrevote(vote)
	require.NoError(t, err)
	require.Equal(t, ResultNeedMoreVotes, result)

	result, err = e.OnPrevote(vote)
	require.NoError(t, err)
	require.Equal(t, ResultIgnored, result)
}

func TestForkChoicePrefersHighestCommitWeight(t *testing.T) {
	c := newTestCluster(t, 4)
	e := c.engines[3]
	e.StartHeight(1)

	hashA := common.Hash{0x0a}
	hashB := common.Hash{0x0b}

	for _, signer := range []int{0, 1} {
		commit := Commit{Height: 1, Round: 0, BlockHash: hashA, Validator: c.keypairs[signer].PublicKey()}
		commit.Signature = c.keypairs[signer].Sign(commit.SigningPayload())
		_, err := e.OnCommit(commit)
		require.NoError(t, err)
	}
	commit := Commit{Height: 1, Round: 0, BlockHash: hashB, Validator: c.keypairs[2].PublicKey()}
	commit.Signature = c.keypairs[2].Sign(commit.SigningPayload())
	_, err := e.OnCommit(commit)
	require.NoError(t, err)

	hash, ok := e.ForkChoice(1)
	require.True(t, ok)
	require.Equal(t, hashA, hash)

	// Unknown heights have no canonical hash.
	_, ok = e.ForkChoice(9)
	require.False(t, ok)
}

func TestForkChoiceBreaksTiesLexicographically(t *testing.T) {
	c := newTestCluster(t, 4)
	e := c.engines[3]
	e.StartHeight(1)

	hashA := common.Hash{0x0a}
	hashB := common.Hash{0x0b}

	commitA := Commit{Height: 1, Round: 0, BlockHash: hashA, Validator: c.keypairs[0].PublicKey()}
	commitA.Signature = c.keypairs[0].Sign(commitA.SigningPayload())
	commitB := Commit{Height: 1, Round: 0, BlockHash: hashB, Validator: c.keypairs[1].PublicKey()}
	commitB.Signature = c.keypairs[1].Sign(commitB.SigningPayload())

	_, err := e.OnCommit(commitB)
	require.NoError(t, err)
	_, err = e.OnCommit(commitA)
	require.NoError(t, err)

	hash, ok := e.ForkChoice(1)
	require.True(t, ok)
	require.Equal(t, hashA, hash)
}

func TestForkAfterFinalityHaltsProcessing(t *testing.T) {
	c := newTestCluster(t, 4)
	e := c.engines[3]
	e.StartHeight(1)

	hashA := common.Hash{0x0a}
	e.RestoreFinalityCertificate(NewFinalityCertificate(1, hashA, nil, 3))

	// Commit quorum forms for a different hash at the finalized height.
	hashB := common.Hash{0x0b}
	var lastErr error
	for _, signer := range []int{0, 1, 2} {
		commit := Commit{Height: 1, Round: 0, BlockHash: hashB, Validator: c.keypairs[signer].PublicKey()}
		commit.Signature = c.keypairs[signer].Sign(commit.SigningPayload())
		_, lastErr = e.OnCommit(commit)
	}

	var fork *ForkAfterFinalityError
	require.ErrorAs(t, lastErr, &fork)
	require.Equal(t, uint64(1), fork.Height)
	require.Equal(t, hashA, fork.Existing)
	require.Equal(t, hashB, fork.Got)
}

func TestTimeoutBackoffGrowsPerRound(t *testing.T) {
	cfg := DefaultConfig()

	t0 := cfg.ProposeTimeoutForRound(0)
	t1 := cfg.ProposeTimeoutForRound(1)
	t2 := cfg.ProposeTimeoutForRound(2)

	require.Greater(t, t1, t0)
	require.Greater(t, t2, t1)
	require.Equal(t, cfg.TimeoutDelta, t1-t0)
	require.Equal(t, cfg.PrevoteTimeout+3*cfg.TimeoutDelta, cfg.PrevoteTimeoutForRound(3))
	require.Equal(t, cfg.CommitTimeout+2*cfg.TimeoutDelta, cfg.CommitTimeoutForRound(2))
}
