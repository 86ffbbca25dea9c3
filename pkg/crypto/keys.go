// Package crypto is the cryptographic firewall for LumenChain L1.
//
// It owns Ed25519 key handling and the transport envelope format. Nothing
// crosses from the network into the runtime without passing through this
// package first: network spam cannot corrupt state, and malformed payloads
// cannot reach block processing.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/sanketsaagar/lumenchain/pkg/types"
)

// Keypair holds an Ed25519 signing key and its public identity.
type Keypair struct {
	priv ed25519.PrivateKey
}

// GenerateKeypair creates a new random keypair.
func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromSeed derives a keypair from a 32-byte seed. The same seed always
// yields the same keypair, which is how producer keys are loaded from config.
func KeypairFromSeed(seed [32]byte) *Keypair {
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed[:])}
}

// PublicKey returns the 32-byte public key, which doubles as the validator
// identity.
func (k *Keypair) PublicKey() types.Address {
	return types.BytesToAddress(k.priv.Public().(ed25519.PublicKey))
}

// Sign signs a message and returns the 64-byte signature.
func (k *Keypair) Sign(message []byte) types.Signature {
	sig, _ := types.SignatureFromBytes(ed25519.Sign(k.priv, message))
	return sig
}

// Verify checks an Ed25519 signature against a 32-byte public key.
//
// Returns ErrInvalidPublicKey if the key is not ed25519.PublicKeySize bytes
// long and ErrInvalidSignature if the signature does not verify. The key is
// not checked for being a valid curve point: such a key fails with
// ErrInvalidSignature.
func Verify(pubkey types.Address, message []byte, signature types.Signature) error {
	key := ed25519.PublicKey(pubkey.Bytes())
	if len(key) != ed25519.PublicKeySize {
		return ErrInvalidPublicKey
	}
	if !ed25519.Verify(key, message, signature.Bytes()) {
		return ErrInvalidSignature
	}
	return nil
}
