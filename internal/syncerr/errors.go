package syncerr

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// InfrastructureError marks a failure of the RPC endpoint or transport.
// It is always fatal to the enclosing sync call and is never retried here.
type InfrastructureError struct {
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("infrastructure: %v", e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// ItemError marks a single unusable log or pool. The offending item is
// dropped where the failure policy allows it; the batch continues.
type ItemError struct {
	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item: %v", e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// FaultError carries a recovered panic from a worker goroutine through the
// ordinary error channel, so an incomplete result is never mistaken for a
// clean failure report, let alone for success.
type FaultError struct {
	Value any
	Stack []byte
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("worker fault: %v", e.Value)
}

// Infrastructure wraps err as infrastructure-class. Returns nil for nil.
func Infrastructure(err error) error {
	if err == nil {
		return nil
	}
	return &InfrastructureError{Err: err}
}

// Item wraps err as item-class. Returns nil for nil.
func Item(err error) error {
	if err == nil {
		return nil
	}
	return &ItemError{Err: err}
}

// RecoverFault converts a panic in the calling goroutine into a FaultError
// stored in *err. Use as `defer syncerr.RecoverFault(&err)` at the top of
// worker functions.
func RecoverFault(err *error) {
	if r := recover(); r != nil {
		*err = &FaultError{Value: r, Stack: debug.Stack()}
	}
}

// IsInfrastructure reports whether err is infrastructure-class.
func IsInfrastructure(err error) bool {
	var infra *InfrastructureError
	return errors.As(err, &infra)
}

// IsItem reports whether err is item-class.
func IsItem(err error) bool {
	var item *ItemError
	return errors.As(err, &item)
}

// IsFault reports whether err carries a recovered worker panic.
func IsFault(err error) bool {
	var fault *FaultError
	return errors.As(err, &fault)
}
