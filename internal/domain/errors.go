package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error types for consistent error handling across the ledger.

// ErrNotFound indicates a profile, account, transaction or beneficiary is missing.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrInvalidState indicates an illegal transfer state transition.
type ErrInvalidState struct {
	TransactionID string
	Current       TransactionStatus
	Want          []TransactionStatus
}

func (e *ErrInvalidState) Error() string {
	if e.Current.Terminal() {
		return fmt.Sprintf("transfer already processed: %s is %s", e.TransactionID, e.Current)
	}
	return fmt.Sprintf("invalid transfer state: %s is %s, want %v", e.TransactionID, e.Current, e.Want)
}

// ErrInsufficientFunds indicates not enough balance for the operation.
type ErrInsufficientFunds struct {
	AccountID string
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient balance: account=%s available=%s required=%s",
		e.AccountID, e.Available.StringFixed(2), e.Required.StringFixed(2))
}

// ErrSameAccount indicates an internal transfer whose source and destination match.
type ErrSameAccount struct {
	AccountID string
}

func (e *ErrSameAccount) Error() string {
	return fmt.Sprintf("source and destination are the same account: %s", e.AccountID)
}

// ErrAccountSuspended indicates the account cannot be debited.
type ErrAccountSuspended struct {
	AccountID string
}

func (e *ErrAccountSuspended) Error() string {
	return fmt.Sprintf("account suspended: %s", e.AccountID)
}

// ErrContention indicates compare-and-swap retries were exhausted.
// The whole logical operation may be retried later.
type ErrContention struct {
	ProfileID string
	Attempts  int
}

func (e *ErrContention) Error() string {
	return fmt.Sprintf("profile %s is busy: gave up after %d attempts", e.ProfileID, e.Attempts)
}

// ErrTimeout indicates an operation exceeded its deadline. The outcome is
// unknown: callers must re-read state before retrying.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out, outcome unknown: %s", e.Operation)
}

// ErrVersionConflict is returned by stores when the expected version is stale.
// It never crosses the service boundary.
var ErrVersionConflict = errors.New("profile version conflict")

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrConflict indicates a resource already exists.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrForbidden indicates the caller lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// IsRetryable reports whether err may be retried blindly. Only contention
// and timeouts qualify; a timeout still requires a re-read first.
func IsRetryable(err error) bool {
	var contention *ErrContention
	var timeout *ErrTimeout
	return errors.As(err, &contention) || errors.As(err, &timeout)
}
