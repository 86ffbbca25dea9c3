// Package runtime is the deterministic execution engine for LumenChain L1.
//
// The runtime validates transactions, produces blocks, and applies state
// transitions. It never touches the network or the disk: given the same state
// and the same ordered transactions, every honest node computes the same
// result byte for byte.
package runtime

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sanketsaagar/lumenchain/pkg/types"
)

// Runtime owns the chain state and the mempool.
//
// The mempool preserves insertion order: that order IS the canonical
// transaction order of the next produced block.
type Runtime struct {
	state *State

	// Pending transactions awaiting inclusion, in admission order.
	mempool []Transaction

	// Hash of the last applied block.
	lastBlockHash common.Hash
}

// New creates a runtime at genesis.
func New() *Runtime {
	return &Runtime{
		state:         NewState(),
		lastBlockHash: GenesisBlock().Hash(),
	}
}

// WithState creates a runtime from a recovered state and last block hash
// (restart path).
func WithState(state *State, lastBlockHash common.Hash) *Runtime {
	return &Runtime{
		state:         state,
		lastBlockHash: lastBlockHash,
	}
}

// State returns the current chain state.
func (r *Runtime) State() *State { return r.state }

// Height returns the current block height.
func (r *Runtime) Height() uint64 { return r.state.Height }

// LastBlockHash returns the hash of the last applied block.
func (r *Runtime) LastBlockHash() common.Hash { return r.lastBlockHash }

// MempoolSize returns the number of pending transactions.
func (r *Runtime) MempoolSize() int { return len(r.mempool) }

// ClearMempool drops all pending transactions.
func (r *Runtime) ClearMempool() { r.mempool = r.mempool[:0] }

// SubmitTransaction validates a transaction against committed state plus the
// pending mempool and admits it.
func (r *Runtime) SubmitTransaction(tx Transaction) error {
	if err := r.ValidateTransaction(&tx); err != nil {
		return err
	}
	r.mempool = append(r.mempool, tx)
	return nil
}

// ValidateTransaction checks a transaction against current state, treating
// the mempool as an extension of the committed nonce and balance sequence.
//
// Nonces are strictly sequential per sender: the expected nonce is the
// committed nonce plus the sender's pending mempool count. The spendable
// balance is the committed balance minus pending outgoing amounts.
func (r *Runtime) ValidateTransaction(tx *Transaction) error {
	var pendingCount, pendingAmount uint64
	for i := range r.mempool {
		if r.mempool[i].From == tx.From {
			pendingCount++
			pendingAmount += r.mempool[i].Amount
		}
	}

	expectedNonce := r.state.Nonce(tx.From) + pendingCount
	if tx.Nonce != expectedNonce {
		return &DuplicateNonceError{Nonce: tx.Nonce}
	}

	balance := r.state.Balance(tx.From)
	available := balance - pendingAmount
	if pendingAmount > balance {
		available = 0
	}
	if available < tx.Amount {
		return &InvalidTransactionError{
			Reason: fmt.Sprintf("insufficient balance: have %d, need %d", available, tx.Amount),
		}
	}

	return nil
}

// applyTransaction debits the sender, credits the recipient, and bumps the
// sender nonce. Callers must have validated the transaction first.
func (r *Runtime) applyTransaction(tx *Transaction) {
	r.state.SetBalance(tx.From, r.state.Balance(tx.From)-tx.Amount)
	r.state.SetBalance(tx.To, r.state.Balance(tx.To)+tx.Amount)
	r.state.IncrementNonce(tx.From)
}

// ProduceBlock drains the mempool into a new unsigned block at the next
// height and applies it to state.
//
// Mempool admission order is preserved as the block's transaction order.
func (r *Runtime) ProduceBlock(producer types.Address) *Block {
	txs := make([]Transaction, len(r.mempool))
	copy(txs, r.mempool)
	r.mempool = r.mempool[:0]

	for i := range txs {
		r.applyTransaction(&txs[i])
	}

	r.state.Height++
	r.state.ComputeStateRoot()

	block := NewBlock(r.state.Height, r.lastBlockHash, r.state.StateRoot, txs, producer)
	r.lastBlockHash = block.Hash()
	return block
}

// ValidateBlock checks a network block against current state.
//
// Transactions are validated individually against block-start state and the
// local mempool, not in sequence: a transaction that only becomes valid after
// an earlier transaction of the same block is rejected here.
func (r *Runtime) ValidateBlock(block *Block) error {
	expected := r.state.Height + 1
	if block.Height != expected {
		return &HeightMismatchError{Expected: expected, Got: block.Height}
	}

	if block.ParentHash != r.lastBlockHash {
		return &InvalidBlockError{Reason: "parent hash mismatch"}
	}

	for i := range block.Txs {
		if err := r.ValidateTransaction(&block.Txs[i]); err != nil {
			return err
		}
	}

	return nil
}

// ApplyBlock applies a validated block to state. Call ValidateBlock first.
func (r *Runtime) ApplyBlock(block *Block) error {
	for i := range block.Txs {
		r.applyTransaction(&block.Txs[i])
	}

	r.state.Height = block.Height
	r.state.StateRoot = block.StateRoot
	r.lastBlockHash = block.Hash()
	return nil
}
