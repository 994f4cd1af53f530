package config

import (
	"errors"
	"fmt"
)

// Errors returned by configuration operations.
var (
	// ErrConfigRead indicates the config record could not be read. Callers
	// recover with Defaults.
	ErrConfigRead = errors.New("config read failed")

	// ErrInvalidValue indicates a value that cannot be stored under a key.
	ErrInvalidValue = errors.New("invalid config value")
)

// ReadError describes an unreadable config record. It matches
// ErrConfigRead with errors.Is.
type ReadError struct {
	// Path is the file that could not be read.
	Path string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	return fmt.Sprintf("reading config %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReadError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrConfigRead.
func (e *ReadError) Is(target error) bool {
	return target == ErrConfigRead
}

// ParseError represents an error while parsing a settings file.
type ParseError struct {
	// Path is the file path that failed to parse.
	Path string
	// Message describes the parse error.
	Message string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}
