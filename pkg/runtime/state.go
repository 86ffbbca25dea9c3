package runtime

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/sanketsaagar/lumenchain/pkg/types"
)

// State is the canonical chain state: account balances and nonces at a height.
//
// Invariants:
//   - Height is monotonically increasing
//   - StateRoot is recomputed after every block application
//   - Balances never underflow (u64 accounting, checked before debit)
type State struct {
	// Height of the last applied block.
	Height uint64

	// StateRoot digest of the state.
	StateRoot common.Hash

	// Balances per account.
	Balances map[types.Address]uint64

	// Nonces per account, for replay protection.
	Nonces map[types.Address]uint64
}

// NewState creates an empty genesis state.
func NewState() *State {
	return &State{
		Balances: make(map[types.Address]uint64),
		Nonces:   make(map[types.Address]uint64),
	}
}

// Balance returns the balance for an address (zero if absent).
func (s *State) Balance(addr types.Address) uint64 {
	return s.Balances[addr]
}

// Nonce returns the nonce for an address (zero if absent).
func (s *State) Nonce(addr types.Address) uint64 {
	return s.Nonces[addr]
}

// SetBalance sets the balance for an address.
func (s *State) SetBalance(addr types.Address, balance uint64) {
	s.Balances[addr] = balance
}

// IncrementNonce bumps the nonce for an address.
func (s *State) IncrementNonce(addr types.Address) {
	s.Nonces[addr]++
}

// ComputeStateRoot recomputes the state root digest.
//
// Placeholder scheme: the root is a function of the height alone. A Merkle
// root can be substituted without changing any caller contract.
func (s *State) ComputeStateRoot() {
	var root common.Hash
	binary.LittleEndian.PutUint64(root[0:8], s.Height)
	s.StateRoot = root
}

// Copy returns a deep copy of the state.
func (s *State) Copy() *State {
	cp := &State{
		Height:    s.Height,
		StateRoot: s.StateRoot,
		Balances:  make(map[types.Address]uint64, len(s.Balances)),
		Nonces:    make(map[types.Address]uint64, len(s.Nonces)),
	}
	for a, b := range s.Balances {
		cp.Balances[a] = b
	}
	for a, n := range s.Nonces {
		cp.Nonces[a] = n
	}
	return cp
}

// stateAccount is one account row in the serialized snapshot.
type stateAccount struct {
	Address types.Address
	Balance uint64
	Nonce   uint64
}

// stateSnapshot is the RLP wire form of State. Accounts are sorted by address
// so encoding is byte-deterministic regardless of map iteration order.
type stateSnapshot struct {
	Height    uint64
	StateRoot common.Hash
	Accounts  []stateAccount
}

// EncodeRLP implements rlp.Encoder.
func (s *State) EncodeRLP(w io.Writer) error {
	seen := make(map[types.Address]struct{}, len(s.Balances)+len(s.Nonces))
	addrs := make([]types.Address, 0, len(s.Balances)+len(s.Nonces))
	for a := range s.Balances {
		seen[a] = struct{}{}
		addrs = append(addrs, a)
	}
	for a := range s.Nonces {
		if _, ok := seen[a]; !ok {
			addrs = append(addrs, a)
		}
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})

	snap := stateSnapshot{
		Height:    s.Height,
		StateRoot: s.StateRoot,
		Accounts:  make([]stateAccount, 0, len(addrs)),
	}
	for _, a := range addrs {
		snap.Accounts = append(snap.Accounts, stateAccount{
			Address: a,
			Balance: s.Balances[a],
			Nonce:   s.Nonces[a],
		})
	}
	return rlp.Encode(w, &snap)
}

// DecodeRLP implements rlp.Decoder.
func (s *State) DecodeRLP(stream *rlp.Stream) error {
	var snap stateSnapshot
	if err := stream.Decode(&snap); err != nil {
		return err
	}
	s.Height = snap.Height
	s.StateRoot = snap.StateRoot
	s.Balances = make(map[types.Address]uint64, len(snap.Accounts))
	s.Nonces = make(map[types.Address]uint64, len(snap.Accounts))
	for _, acct := range snap.Accounts {
		if acct.Balance != 0 {
			s.Balances[acct.Address] = acct.Balance
		}
		if acct.Nonce != 0 {
			s.Nonces[acct.Address] = acct.Nonce
		}
	}
	return nil
}
