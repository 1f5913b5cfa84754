package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrNoRate means no conversion rate has ever been obtained for a
	// currency, cached or live.
	ErrNoRate = errors.New("no conversion rate available")

	// ErrStaleRate means the cached rate exceeded the hard staleness ceiling
	// and conversion fails closed.
	ErrStaleRate = errors.New("conversion rate too stale")

	ErrContextDone = errors.New("context cancelled")
)

// FetchReason categorizes why a quote fetch failed.
type FetchReason string

const (
	FetchTimeout  FetchReason = "timeout"
	FetchNetwork  FetchReason = "network"
	FetchProtocol FetchReason = "protocol"
	FetchAuth     FetchReason = "auth"
)

// FetchError is a transient per-adapter failure scoped to one cycle. The
// failed exchange is simply absent from that cycle's snapshot and retried
// next cycle.
type FetchError struct {
	Exchange string
	Reason   FetchReason
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: fetch failed (%s)", e.Exchange, e.Reason)
	}
	return fmt.Sprintf("%s: fetch failed (%s): %v", e.Exchange, e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err as a FetchError for the given exchange and reason.
func NewFetchError(exchange string, reason FetchReason, err error) *FetchError {
	return &FetchError{Exchange: exchange, Reason: reason, Err: err}
}

// ConversionError means a quote could not be expressed in USD. The affected
// quote is dropped from the cycle; detection continues for the rest.
type ConversionError struct {
	Currency string
	Age      time.Duration
	Err      error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s to USD: %v", e.Currency, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }
