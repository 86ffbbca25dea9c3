package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the byte length of an account address / validator identity.
// Addresses are raw Ed25519 public keys, so identity and signing key coincide.
const AddressLength = 32

// SignatureLength is the byte length of an Ed25519 signature.
const SignatureLength = 64

// Address is a 32-byte account identifier. For validators the address IS the
// Ed25519 public key.
type Address [AddressLength]byte

// BytesToAddress converts a byte slice to an Address, left-truncating or
// zero-padding as needed.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// HexToAddress parses a hex string (with or without 0x prefix) into an Address.
func HexToAddress(s string) (Address, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address hex: %w", err)
	}
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("invalid address length: %d bytes, want %d", len(b), AddressLength)
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte { return a[:] }

// Hex returns the full lowercase hex encoding.
func (a Address) Hex() string { return hex.EncodeToString(a[:]) }

// Short returns an abbreviated form for log lines.
func (a Address) Short() string { return hex.EncodeToString(a[:8]) }

// IsZero reports whether the address is all zero bytes.
func (a Address) IsZero() bool { return a == Address{} }

func (a Address) String() string { return a.Short() }

// MarshalText implements encoding.TextMarshaler (lowercase hex).
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := HexToAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Signature is a 64-byte Ed25519 signature. Text serializations use lowercase
// hex; binary serializations use the raw bytes.
type Signature [SignatureLength]byte

// SignatureFromBytes converts a 64-byte slice into a Signature.
func SignatureFromBytes(b []byte) (Signature, error) {
	if len(b) != SignatureLength {
		return Signature{}, fmt.Errorf("invalid signature length: %d bytes, want %d", len(b), SignatureLength)
	}
	var s Signature
	copy(s[:], b)
	return s, nil
}

// Bytes returns the signature as a byte slice.
func (s Signature) Bytes() []byte { return s[:] }

// Hex returns the lowercase hex encoding.
func (s Signature) Hex() string { return hex.EncodeToString(s[:]) }

// IsZero reports whether the signature is all zero bytes.
func (s Signature) IsZero() bool { return s == Signature{} }

// MarshalText implements encoding.TextMarshaler (lowercase hex).
func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Signature) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(strings.TrimPrefix(string(text), "0x"))
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	parsed, err := SignatureFromBytes(b)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
