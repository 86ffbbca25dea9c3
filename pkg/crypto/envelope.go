package crypto

import (
	"github.com/sanketsaagar/lumenchain/pkg/types"
)

// envelopeTrailer is pubkey (32) followed by signature (64).
const envelopeTrailer = types.AddressLength + types.SignatureLength

// VerifiedTransaction is a transaction payload that has passed signature
// verification. It can only be produced by VerifyTransaction, so holding one
// is proof the signature was checked.
type VerifiedTransaction struct {
	data      []byte
	signer    types.Address
	signature types.Signature
}

// Data returns the transaction bytes (signature and pubkey stripped).
func (v *VerifiedTransaction) Data() []byte { return v.data }

// Signer returns the verified signer's public key.
func (v *VerifiedTransaction) Signer() types.Address { return v.signer }

// Signature returns the verified signature.
func (v *VerifiedTransaction) Signature() types.Signature { return v.signature }

// VerifiedBlock is a block payload that has passed producer signature
// verification. It can only be produced by VerifyBlock.
type VerifiedBlock struct {
	data      []byte
	producer  types.Address
	signature types.Signature
}

// Data returns the block bytes (signature and producer key stripped).
func (v *VerifiedBlock) Data() []byte { return v.data }

// Producer returns the verified block producer's public key.
func (v *VerifiedBlock) Producer() types.Address { return v.producer }

// Signature returns the verified signature.
func (v *VerifiedBlock) Signature() types.Signature { return v.signature }

// splitEnvelope separates a transport payload into data, pubkey, and
// signature. The envelope format is data ‖ pubkey(32) ‖ signature(64).
func splitEnvelope(payload []byte) (data []byte, pubkey types.Address, sig types.Signature, err error) {
	if len(payload) < envelopeTrailer {
		return nil, types.Address{}, types.Signature{}, &InvalidFormatError{
			Reason: "payload too short",
			Length: len(payload),
		}
	}

	sigStart := len(payload) - types.SignatureLength
	keyStart := sigStart - types.AddressLength

	data = payload[:keyStart]
	pubkey = types.BytesToAddress(payload[keyStart:sigStart])
	sig, err = types.SignatureFromBytes(payload[sigStart:])
	return data, pubkey, sig, err
}

// VerifyTransaction verifies a raw transaction envelope from the network.
//
// The trailing 96 bytes are interpreted as pubkey ‖ signature over the data
// prefix. Payloads shorter than 96 bytes are rejected with InvalidFormatError.
func VerifyTransaction(payload []byte) (*VerifiedTransaction, error) {
	data, pubkey, sig, err := splitEnvelope(payload)
	if err != nil {
		return nil, err
	}
	if err := Verify(pubkey, data, sig); err != nil {
		return nil, err
	}
	return &VerifiedTransaction{data: data, signer: pubkey, signature: sig}, nil
}

// VerifyBlock verifies a raw block envelope from the network. Same framing as
// VerifyTransaction, with the key position holding the producer identity.
func VerifyBlock(payload []byte) (*VerifiedBlock, error) {
	data, producer, sig, err := splitEnvelope(payload)
	if err != nil {
		return nil, err
	}
	if err := Verify(producer, data, sig); err != nil {
		return nil, err
	}
	return &VerifiedBlock{data: data, producer: producer, signature: sig}, nil
}

// SealEnvelope appends the signer's pubkey and signature over data, producing
// the transport form consumed by VerifyTransaction / VerifyBlock.
func SealEnvelope(kp *Keypair, data []byte) []byte {
	out := make([]byte, 0, len(data)+envelopeTrailer)
	out = append(out, data...)
	pub := kp.PublicKey()
	out = append(out, pub.Bytes()...)
	sig := kp.Sign(data)
	return append(out, sig.Bytes()...)
}
