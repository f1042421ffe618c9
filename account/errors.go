package account

import (
	"fmt"

	"github.com/withobsrvr/asset-ledger/types"
)

// ErrorCode enumerates the account aggregate's domain rejections.
type ErrorCode string

const (
	CodeInsufficientFunds    ErrorCode = "InsufficientFunds"
	CodeAccountNotFound      ErrorCode = "AccountNotFound"
	CodeAccountAlreadyExists ErrorCode = "AccountAlreadyExists"
	CodeAccountNotDisabled   ErrorCode = "AccountNotDisabled"
	CodeAccountNotInService  ErrorCode = "AccountNotInService"
	CodeAccountNotEmpty      ErrorCode = "AccountNotEmpty"
	CodeLockNotFound         ErrorCode = "LockNotFound"
	CodeInvalidTransaction   ErrorCode = "InvalidTransaction"
	CodeDuplicateLock        ErrorCode = "DuplicateLock"
	CodeDuplicateTransaction ErrorCode = "DuplicateTransaction"
	CodeTransactionNotFound  ErrorCode = "TransactionNotFound"
)

// Error is a command rejection. DuplicateTransaction carries the timestamp
// the original transaction was first seen at.
type Error struct {
	Code      ErrorCode
	FirstSeen types.Timestamp
}

func (e *Error) Error() string {
	switch e.Code {
	case CodeInsufficientFunds:
		return "insufficient funds"
	case CodeAccountNotFound:
		return "account not found"
	case CodeAccountAlreadyExists:
		return "account already exists"
	case CodeAccountNotDisabled:
		return "account is not disabled"
	case CodeAccountNotInService:
		return "account is not in service"
	case CodeAccountNotEmpty:
		return "account is not empty"
	case CodeLockNotFound:
		return "lock not found, check the transaction id and make sure it has not expired"
	case CodeInvalidTransaction:
		return "invalid transaction"
	case CodeDuplicateLock:
		return "duplicate lock, this lock has already been processed"
	case CodeDuplicateTransaction:
		return fmt.Sprintf("duplicate transaction, already processed at %d", e.FirstSeen)
	case CodeTransactionNotFound:
		return "transaction not found, check the transaction and make sure it has not expired"
	}
	return string(e.Code)
}

// Is matches by code so sentinel comparisons work regardless of the
// first-seen timestamp.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Code == e.Code
}

var (
	ErrInsufficientFunds    = &Error{Code: CodeInsufficientFunds}
	ErrAccountNotFound      = &Error{Code: CodeAccountNotFound}
	ErrAccountAlreadyExists = &Error{Code: CodeAccountAlreadyExists}
	ErrAccountNotDisabled   = &Error{Code: CodeAccountNotDisabled}
	ErrAccountNotInService  = &Error{Code: CodeAccountNotInService}
	ErrAccountNotEmpty      = &Error{Code: CodeAccountNotEmpty}
	ErrLockNotFound         = &Error{Code: CodeLockNotFound}
	ErrInvalidTransaction   = &Error{Code: CodeInvalidTransaction}
	ErrDuplicateLock        = &Error{Code: CodeDuplicateLock}
	ErrDuplicateTransaction = &Error{Code: CodeDuplicateTransaction}
	ErrTransactionNotFound  = &Error{Code: CodeTransactionNotFound}
)

// NewDuplicateTransactionError reports a replayed txid with the timestamp
// of the original effect.
func NewDuplicateTransactionError(firstSeen types.Timestamp) *Error {
	return &Error{Code: CodeDuplicateTransaction, FirstSeen: firstSeen}
}
