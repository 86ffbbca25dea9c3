package runtime

import (
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/sanketsaagar/lumenchain/pkg/types"
)

// Block is an ordered batch of transactions at a height.
//
// Invariants:
//   - Height is exactly parent height + 1
//   - ParentHash matches the hash of the previous block
//   - StateRoot matches the state after applying all transactions
type Block struct {
	// Height of this block (0 = genesis).
	Height uint64

	// ParentHash is the hash of the previous block.
	ParentHash common.Hash

	// StateRoot after applying this block.
	StateRoot common.Hash

	// Timestamp in Unix epoch seconds.
	Timestamp uint64

	// Txs are the block's transactions, in canonical order.
	Txs []Transaction

	// Producer is the block producer's public key.
	Producer types.Address

	// Signature over SigningBytes.
	Signature types.Signature
}

// NewBlock creates an unsigned block stamped with the current time.
func NewBlock(height uint64, parentHash, stateRoot common.Hash, txs []Transaction, producer types.Address) *Block {
	return &Block{
		Height:     height,
		ParentHash: parentHash,
		StateRoot:  stateRoot,
		Timestamp:  uint64(time.Now().Unix()),
		Txs:        txs,
		Producer:   producer,
	}
}

// GenesisBlock returns the height-0 block: all fields zero.
func GenesisBlock() *Block {
	return &Block{}
}

// IsGenesis reports whether this is the genesis block.
func (b *Block) IsGenesis() bool { return b.Height == 0 }

// TxCount returns the number of transactions in the block.
func (b *Block) TxCount() int { return len(b.Txs) }

// SigningBytes returns the canonical byte string covered by the producer
// signature: height (LE) ‖ parent ‖ state root ‖ timestamp (LE) ‖
// tx count (LE) ‖ concat(tx signing bytes) ‖ producer.
func (b *Block) SigningBytes() []byte {
	buf := make([]byte, 0, 128+64*len(b.Txs))
	buf = binary.LittleEndian.AppendUint64(buf, b.Height)
	buf = append(buf, b.ParentHash.Bytes()...)
	buf = append(buf, b.StateRoot.Bytes()...)
	buf = binary.LittleEndian.AppendUint64(buf, b.Timestamp)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(b.Txs)))
	for i := range b.Txs {
		buf = append(buf, b.Txs[i].SigningBytes()...)
	}
	return append(buf, b.Producer.Bytes()...)
}

// Hash returns the Keccak-256 digest of the block's signing bytes. The
// signature is excluded so the hash is stable across signing.
func (b *Block) Hash() common.Hash {
	return crypto.Keccak256Hash(b.SigningBytes())
}
