package state

import (
	"errors"
	"fmt"
)

// Error kinds shared by every layer. Callers match them with errors.Is;
// the HTTP layer maps each to a status code.
var (
	ErrValidation  = errors.New("validation failed")
	ErrConcurrency = errors.New("a turn is already in progress for this session")
	ErrState       = errors.New("operation not allowed in current session state")
	ErrUpstream    = errors.New("upstream decision service failed")
	ErrNotFound    = errors.New("not found")
)

// Validationf wraps ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Statef wraps ErrState with a formatted reason.
func Statef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted reason.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Upstream marks err as an upstream failure while keeping it in the chain.
func Upstream(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUpstream) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}

// Upstreamf wraps ErrUpstream with a formatted reason.
func Upstreamf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUpstream, fmt.Sprintf(format, args...))
}
