package core

import (
	"errors"
	"fmt"
)

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrUnknown          = errors.New("unknown")
	// ErrFatal marks failures the engine cannot recover from: a GPU hang,
	// device loss, memory exhaustion or a release of a resource still in use.
	ErrFatal = errors.New("fatal")
)

type fatalError struct {
	err error
}

func (e *fatalError) Error() string {
	return fmt.Sprintf("fatal: %s", e.err)
}

func (e *fatalError) Unwrap() []error {
	return []error{ErrFatal, e.err}
}

// Fatal wraps err so that IsFatal reports true for it and anything wrapping it.
// The original error stays reachable through errors.Is and errors.As.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	if IsFatal(err) {
		return err
	}
	return &fatalError{err: err}
}

// Fatalf is the formatted variant of Fatal.
func Fatalf(format string, args ...interface{}) error {
	return Fatal(fmt.Errorf(format, args...))
}

func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
