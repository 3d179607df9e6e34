package chain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrRPC                 = errors.New("rpc error")
	ErrContractRevert      = errors.New("contract reverted")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrMetadataDecode      = errors.New("metadata decode error")
)

// TxError reports a submitted transaction whose outcome was not Confirmed.
type TxError struct {
	Hash    common.Hash
	Outcome Outcome
	Err     error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("tx %s %s: %v", e.Hash.Hex(), e.Outcome, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
