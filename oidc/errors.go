package oidckit

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks startup or wiring mistakes. Hosts should surface
	// these as internal errors rather than as an access decision.
	ErrConfiguration = errors.New("oidckit: configuration error")

	ErrInvalidValidatorResult = fmt.Errorf("%w: validator must return a decision with a boolean isValid", ErrConfiguration)
	ErrDuplicateStrategy      = fmt.Errorf("%w: duplicate strategy name", ErrConfiguration)
	ErrEmptyStrategyName      = fmt.Errorf("%w: strategy name is empty", ErrConfiguration)

	// ErrUnknownStrategy is returned when a caller asks for a strategy that
	// was never registered.
	ErrUnknownStrategy = errors.New("oidckit: unknown strategy")

	// ErrValidatorFault is matched by every ValidatorFaultError.
	ErrValidatorFault = errors.New("oidckit: validator fault")
)

// ValidatorFaultError wraps an error returned, or a panic raised, by a
// custom validator.
type ValidatorFaultError struct {
	Strategy string
	Err      error
	Panic    any
}

func (e *ValidatorFaultError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("oidckit: validator for strategy %q panicked: %v", e.Strategy, e.Panic)
	}
	return fmt.Sprintf("oidckit: validator for strategy %q failed: %v", e.Strategy, e.Err)
}

func (e *ValidatorFaultError) Unwrap() error { return e.Err }

func (e *ValidatorFaultError) Is(target error) bool { return target == ErrValidatorFault }
