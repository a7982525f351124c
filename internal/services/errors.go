package services

import (
	"errors"
	"fmt"
)

var (
	ErrChainUnavailable    = errors.New("chain unavailable")
	ErrBridgeNotConfigured = errors.New("bridge not configured on chain")
	ErrRecordNotFound      = errors.New("record not found")
	ErrNotActionable       = errors.New("withdraw is not actionable")
	ErrUserRejected        = errors.New("transaction canceled")
	ErrUndecodableRecord   = errors.New("record destination is not an EVM chain/address")
	ErrUnknownQuery        = errors.New("unknown refresh query")

	errBatchLength = errors.New("batch result length mismatch")
)

// ActionError a failed approve/execute. Reason is the short operator-facing message.
type ActionError struct {
	Op      string
	ChainID uint64
	Reason  string
	Err     error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s on chain %d: %s", e.Op, e.ChainID, e.Reason)
}

func (e *ActionError) Unwrap() error { return e.Err }
