package consensus

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/sanketsaagar/lumenchain/pkg/types"
)

// Domain-separation prefixes for message signing. Each class signs over a
// distinct prefix so a signature can never be replayed across classes.
var (
	proposalPrefix = []byte("PROPOSAL")
	prevotePrefix  = []byte("PREVOTE")
	commitPrefix   = []byte("COMMIT")
)

// Proposal is the round leader's block offer.
//
// Transactions travel as opaque bytes: consensus decides WHICH bytes become
// canonical, the runtime decides what they do.
type Proposal struct {
	// Height being decided.
	Height uint64 `json:"height"`

	// Round within the height.
	Round uint64 `json:"round"`

	// PrevHash is the hash of the previous block.
	PrevHash common.Hash `json:"prev_hash"`

	// BlockHash of the proposed block.
	BlockHash common.Hash `json:"block_hash"`

	// StateRoot after executing the proposed block.
	StateRoot common.Hash `json:"state_root"`

	// Transactions is the serialized transaction batch, opaque to consensus.
	Transactions hexutil.Bytes `json:"transactions"`

	// Proposer is the leader's validator ID.
	Proposer types.Address `json:"proposer"`

	// Signature over SigningPayload.
	Signature types.Signature `json:"signature"`
}

// SigningPayload returns the canonical signed bytes:
// "PROPOSAL" ‖ height (LE) ‖ round (LE) ‖ prev ‖ block ‖ state root.
func (p *Proposal) SigningPayload() []byte {
	buf := make([]byte, 0, len(proposalPrefix)+16+3*common.HashLength)
	buf = append(buf, proposalPrefix...)
	buf = binary.LittleEndian.AppendUint64(buf, p.Height)
	buf = binary.LittleEndian.AppendUint64(buf, p.Round)
	buf = append(buf, p.PrevHash.Bytes()...)
	buf = append(buf, p.BlockHash.Bytes()...)
	return append(buf, p.StateRoot.Bytes()...)
}

// Prevote endorses a proposal's validity. A nil BlockHash is a nil vote.
type Prevote struct {
	// Height being decided.
	Height uint64 `json:"height"`

	// Round within the height.
	Round uint64 `json:"round"`

	// BlockHash voted for; nil encodes a nil vote.
	BlockHash *common.Hash `json:"block_hash" rlp:"nil"`

	// Validator is the voter's ID.
	Validator types.Address `json:"validator"`

	// Signature over SigningPayload.
	Signature types.Signature `json:"signature"`
}

// IsNil reports whether this is a nil vote.
func (v *Prevote) IsNil() bool { return v.BlockHash == nil }

// SigningPayload returns the canonical signed bytes:
// "PREVOTE" ‖ height (LE) ‖ round (LE) ‖ block hash (32 zero bytes if nil).
func (v *Prevote) SigningPayload() []byte {
	buf := make([]byte, 0, len(prevotePrefix)+16+common.HashLength)
	buf = append(buf, prevotePrefix...)
	buf = binary.LittleEndian.AppendUint64(buf, v.Height)
	buf = binary.LittleEndian.AppendUint64(buf, v.Round)
	if v.BlockHash != nil {
		return append(buf, v.BlockHash.Bytes()...)
	}
	var zero common.Hash
	return append(buf, zero.Bytes()...)
}

// Commit binds the voter to finalize the named block if quorum forms.
type Commit struct {
	// Height being decided.
	Height uint64 `json:"height"`

	// Round within the height.
	Round uint64 `json:"round"`

	// BlockHash being committed.
	BlockHash common.Hash `json:"block_hash"`

	// Validator is the committer's ID.
	Validator types.Address `json:"validator"`

	// Signature over SigningPayload.
	Signature types.Signature `json:"signature"`
}

// SigningPayload returns the canonical signed bytes:
// "COMMIT" ‖ height (LE) ‖ round (LE) ‖ block hash.
func (c *Commit) SigningPayload() []byte {
	buf := make([]byte, 0, len(commitPrefix)+16+common.HashLength)
	buf = append(buf, commitPrefix...)
	buf = binary.LittleEndian.AppendUint64(buf, c.Height)
	buf = binary.LittleEndian.AppendUint64(buf, c.Round)
	return append(buf, c.BlockHash.Bytes()...)
}

// FinalityCertificate aggregates the commits proving a block is canonical.
// TotalWeight meets or exceeds the set's quorum threshold.
type FinalityCertificate struct {
	// Height of the finalized block.
	Height uint64 `json:"height"`

	// BlockHash of the finalized block.
	BlockHash common.Hash `json:"block_hash"`

	// Commits backing the certificate.
	Commits []Commit `json:"commits"`

	// TotalWeight of the commits.
	TotalWeight uint64 `json:"total_weight"`
}

// NewFinalityCertificate builds a certificate from collected commits.
func NewFinalityCertificate(height uint64, blockHash common.Hash, commits []Commit, totalWeight uint64) *FinalityCertificate {
	return &FinalityCertificate{
		Height:      height,
		BlockHash:   blockHash,
		Commits:     commits,
		TotalWeight: totalWeight,
	}
}
