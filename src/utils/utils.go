package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.handmade.network/hmn/edu/src/oops"
)

// Returns the provided value, or a default value if the input was zero.
func OrDefault[T comparable](v T, def T) T {
	var zero T
	if v == zero {
		return def
	} else {
		return v
	}
}

// Panics if err is non-nil. Meant for startup code and tests, where there is
// nobody to return the error to.
func Must[E error](err E) {
	if !isNilError(err) {
		panic(err)
	}
}

// A typed nil pointer wrapped in an error interface is not == nil, so compare
// through the interface after checking the concrete value.
func isNilError[E error](err E) bool {
	var asAny any = err
	if asAny == nil {
		return true
	}
	var zero E
	return any(zero) != nil && asAny == any(zero)
}

/*
Recover a panic and convert it to a returned error. Call it like so:

	func MyFunc() (err error) {
		defer utils.RecoverPanicAsError(&err)
	}

If an error was already present, it stays in the chain behind the panic so
that errors.Is still finds it.
*/
func RecoverPanicAsError(err *error) {
	if r := recover(); r != nil {
		var recoveredErr error
		if rerr, ok := r.(error); ok {
			recoveredErr = rerr
		} else {
			recoveredErr = fmt.Errorf("panic with value: %v", r)
		}
		if *err != nil {
			recoveredErr = fmt.Errorf("%w (while returning: %w)", recoveredErr, *err)
		}
		*err = oops.New(recoveredErr, "panic recovered as error")
	}
}

var ErrSleepInterrupted = errors.New("sleep interrupted by context cancellation")

func SleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ErrSleepInterrupted
	case <-time.After(d):
		return nil
	}
}
