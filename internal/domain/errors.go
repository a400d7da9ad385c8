package domain

import "errors"

// Sentinel errors for settlement and store failures.
// Kind maps them to machine-readable codes.
var (
	ErrUserNotFound          = errors.New("user_not_found")
	ErrUserAlreadyExists     = errors.New("user_already_exists")
	ErrInvalidOrder          = errors.New("invalid_order")
	ErrInsufficientFunds     = errors.New("insufficient_funds")
	ErrNoHoldings            = errors.New("no_holdings")
	ErrMarketDataUnavailable = errors.New("market_data_unavailable")
	ErrPersistence           = errors.New("persistence_failure")
	ErrSerialization         = errors.New("serialization_failure")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Unwrap lets errors.Is(err, ErrInvalidOrder) match validation failures.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidOrder
}

// ErrorKind is the machine-readable classification of a settlement outcome.
type ErrorKind string

const (
	KindOK                    ErrorKind = "ok"
	KindUserNotFound          ErrorKind = "user_not_found"
	KindUserAlreadyExists     ErrorKind = "user_already_exists"
	KindInvalidOrder          ErrorKind = "invalid_order"
	KindInsufficientFunds     ErrorKind = "insufficient_funds"
	KindNoHoldings            ErrorKind = "no_holdings"
	KindMarketDataUnavailable ErrorKind = "market_data_unavailable"
	KindPersistenceFailure    ErrorKind = "persistence_failure"
	KindSerializationFailure  ErrorKind = "serialization_failure"
	KindInternal              ErrorKind = "internal_error"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrUserNotFound, KindUserNotFound},
	{ErrUserAlreadyExists, KindUserAlreadyExists},
	{ErrInvalidOrder, KindInvalidOrder},
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrNoHoldings, KindNoHoldings},
	{ErrMarketDataUnavailable, KindMarketDataUnavailable},
	{ErrSerialization, KindSerializationFailure},
	{ErrPersistence, KindPersistenceFailure},
}

// Kind classifies err. A nil error is KindOK; an error that wraps none of
// the sentinels is KindInternal.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindOK
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
