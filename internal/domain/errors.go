package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// StoreError is a failure reported by the record store.
type StoreError struct {
	Message string
	Code    string
	Details string
	Hint    string
	Err     error
}

func (e *StoreError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Code != "" {
		fmt.Fprintf(&b, " (code %s)", e.Code)
	}
	if e.Details != "" {
		fmt.Fprintf(&b, ": %s", e.Details)
	}
	return b.String()
}

func (e *StoreError) Unwrap() error { return e.Err }

// AsStoreError extracts a StoreError from err's chain.
func AsStoreError(err error) (*StoreError, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Fault is a failure that was absorbed instead of surfaced to the user.
type Fault struct {
	Source string
	Err    error
	At     time.Time
}

// FaultSink receives best-effort failures. It must not block.
type FaultSink func(Fault)

// Report sends err to the sink when both are set.
func (s FaultSink) Report(source string, err error) {
	if s == nil || err == nil {
		return
	}
	s(Fault{Source: source, Err: err, At: time.Now()})
}
