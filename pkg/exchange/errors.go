package exchange

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy. Every failure aborts the whole request with no partial
// state change; none of these are retried internally.
var (
	// ErrUnauthorized is returned when the caller lacks the required role
	// or account attribute.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned when a referenced order or singleton record
	// is absent. Wrapped with context, classify with errors.Is.
	ErrNotFound = errors.New("not found")

	// ErrOrderAlreadyExists is returned when an order id is reused.
	ErrOrderAlreadyExists = errors.New("order already exists")

	// ErrInconvertibleBaseDenom is returned when an order's base denom is
	// neither the contract base denom nor a convertible one.
	ErrInconvertibleBaseDenom = errors.New("inconvertible base denomination")

	// ErrUnsupportedQuoteDenom is returned when an order's quote denom is
	// not in the supported set.
	ErrUnsupportedQuoteDenom = errors.New("unsupported quote denomination")

	// ErrSentFundsMismatch is returned when the funds attached to a request
	// do not match what the operation requires.
	ErrSentFundsMismatch = errors.New("sent funds do not match order")

	// ErrInconsistentFields is returned when declared fields disagree with
	// each other, e.g. a bid quote_size that is not price*size.
	ErrInconsistentFields = errors.New("inconsistent fields")

	// ErrInvalidPricePrecisionSizePair is returned at instantiation when
	// size_increment is not a multiple of 10^price_precision.
	ErrInvalidPricePrecisionSizePair = errors.New("size increment must be a multiple of 10^price_precision")

	// ErrAskBidPriceMismatch is returned when the ask price exceeds the bid
	// price, so no execution price can satisfy both sides.
	ErrAskBidPriceMismatch = errors.New("ask price exceeds bid price")

	// ErrInvalidExecutePrice is returned when the execution price falls
	// outside the [ask price, bid price] band.
	ErrInvalidExecutePrice = errors.New("invalid execution price")

	// ErrInvalidExecuteSize is returned when the execution size is zero or
	// exceeds either order's remaining size.
	ErrInvalidExecuteSize = errors.New("invalid execution size")

	// ErrDenomMismatch is returned when the two orders do not share base
	// and quote denominations.
	ErrDenomMismatch = errors.New("order denominations do not match")

	// ErrAskOrderNotReady is returned when matching a convertible ask that
	// has not been approved.
	ErrAskOrderNotReady = errors.New("ask order not ready")

	// ErrUnsupportedUpgrade is returned by migrate on a version downgrade
	// or an unrecognized stored version.
	ErrUnsupportedUpgrade = errors.New("unsupported upgrade")
)

// FieldError reports one or more invalid request fields. It unwraps to
// ErrInvalidFields so callers can classify without inspecting the list.
type FieldError struct {
	Fields []string
}

// ErrInvalidFields is the classification target for FieldError.
var ErrInvalidFields = errors.New("invalid fields")

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid fields: [%s]", strings.Join(e.Fields, ", "))
}

func (e *FieldError) Unwrap() error { return ErrInvalidFields }

func invalidFields(fields ...string) error {
	return &FieldError{Fields: fields}
}

// StoreError wraps a storage collaborator failure. Fatal to the request.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }
