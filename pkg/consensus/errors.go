package consensus

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sanketsaagar/lumenchain/pkg/types"
)

// WrongLeaderError means a proposal came from someone other than the
// expected round leader. Byzantine signal: logged and dropped.
type WrongLeaderError struct {
	Expected types.Address
	Got      types.Address
}

func (e *WrongLeaderError) Error() string {
	return fmt.Sprintf("proposal from %s but expected leader %s", e.Got.Short(), e.Expected.Short())
}

// UnknownValidatorError means a message came from outside the active set.
type UnknownValidatorError struct {
	Validator types.Address
}

func (e *UnknownValidatorError) Error() string {
	return fmt.Sprintf("unknown validator: %s", e.Validator.Short())
}

// InvalidSignatureError means a consensus message's signature did not verify.
type InvalidSignatureError struct {
	MessageType string
}

func (e *InvalidSignatureError) Error() string {
	return fmt.Sprintf("invalid signature on %s", e.MessageType)
}

// ForkAfterFinalityError means commit quorum formed for a second block hash
// at an already-finalized height. Impossible under an honest supermajority;
// the node must halt.
type ForkAfterFinalityError struct {
	Height   uint64
	Existing common.Hash
	Got      common.Hash
}

func (e *ForkAfterFinalityError) Error() string {
	return fmt.Sprintf("CRITICAL: fork detected after finality at height %d: %s vs %s",
		e.Height, e.Existing.Hex(), e.Got.Hex())
}
