package vault

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized covers both "unknown code" and "not the owner" where ownership is checked.
	ErrUnauthorized = errors.New("invalid code or not owner")
	ErrInvalidItem  = errors.New("item is not retrievable")
	ErrEmptyBatch   = errors.New("nothing staged")
	ErrNotFound     = errors.New("code not found")
	ErrChannel      = errors.New("channel error")
	ErrValidation   = errors.New("validation failed")
	ErrCodeSpace    = errors.New("could not allocate a free code")
)

// ChannelError is a transport failure. It matches ErrChannel and unwraps to the cause.
type ChannelError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s: %s failed after %d attempt(s): %v", ErrChannel, e.Op, e.Attempts, e.Err)
}

func (e *ChannelError) Unwrap() []error { return []error{ErrChannel, e.Err} }
