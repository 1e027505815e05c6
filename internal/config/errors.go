package config

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownOption is wrapped by errors about option names outside the schema.
	ErrUnknownOption = errors.New("unknown option")
	// ErrMissingOption is wrapped by errors about unset mandatory options.
	ErrMissingOption = errors.New("missing mandatory option")
	// ErrMalformedValue is wrapped by errors about values that do not convert
	// to the option's declared type.
	ErrMalformedValue = errors.New("malformed value")
	// ErrOutOfRange is wrapped by errors about well-typed but invalid values.
	ErrOutOfRange = errors.New("value out of range")
)

// Error describes a configuration problem with one option.
type Error struct {
	Option string
	Err    error
	Detail string
}

// Error implements the error interface for Error.
func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("option %q: %v", e.Option, e.Err)
	}
	return fmt.Sprintf("option %q: %v: %s", e.Option, e.Err, e.Detail)
}

// Unwrap returns the sentinel classifying the problem.
func (e *Error) Unwrap() error {
	return e.Err
}

func optionError(option string, sentinel error, format string, args ...any) *Error {
	return &Error{Option: option, Err: sentinel, Detail: fmt.Sprintf(format, args...)}
}
