package runtime

import (
	"encoding/binary"

	"github.com/sanketsaagar/lumenchain/pkg/types"
)

// Transaction is the atomic unit of state mutation.
//
// Signatures are produced and checked by the crypto package; the runtime only
// sees transactions that already passed the envelope firewall.
type Transaction struct {
	// From is the sender's public key.
	From types.Address

	// To is the recipient's address.
	To types.Address

	// Amount to transfer.
	Amount uint64

	// Nonce is the sender's replay-protection counter.
	Nonce uint64

	// Payload is optional opaque data.
	Payload []byte

	// Signature over SigningBytes.
	Signature types.Signature
}

// NewTransaction creates an unsigned transaction without payload.
func NewTransaction(from, to types.Address, amount, nonce uint64) Transaction {
	return Transaction{From: from, To: to, Amount: amount, Nonce: nonce}
}

// SigningBytes returns the canonical byte string covered by the signature:
// from ‖ to ‖ amount (LE) ‖ nonce (LE) ‖ payload.
func (tx *Transaction) SigningBytes() []byte {
	buf := make([]byte, 0, 2*types.AddressLength+16+len(tx.Payload))
	buf = append(buf, tx.From.Bytes()...)
	buf = append(buf, tx.To.Bytes()...)
	buf = binary.LittleEndian.AppendUint64(buf, tx.Amount)
	buf = binary.LittleEndian.AppendUint64(buf, tx.Nonce)
	return append(buf, tx.Payload...)
}
