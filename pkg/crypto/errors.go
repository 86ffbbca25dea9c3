package crypto

import (
	"errors"
	"fmt"
)

// ErrInvalidSignature means signature verification failed.
var ErrInvalidSignature = errors.New("invalid signature")

// ErrInvalidPublicKey means the public key is malformed.
var ErrInvalidPublicKey = errors.New("invalid public key")

// InvalidFormatError means a transport payload does not match the
// data ‖ pubkey ‖ signature envelope framing.
type InvalidFormatError struct {
	Reason string
	Length int
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid envelope format: %s (%d bytes, minimum 96)", e.Reason, e.Length)
}
