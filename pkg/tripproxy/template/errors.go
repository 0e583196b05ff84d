package template

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for classification with errors.Is.
var (
	// ErrInvalidInput indicates a required input was missing or empty.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDecoding indicates percent-decoding or JSON parsing failed.
	ErrDecoding = errors.New("decoding failed")
)

// InvalidInputError is returned when a required input is missing or empty.
type InvalidInputError struct {
	// Field names the offending input (e.g. "encodedUrl").
	Field string

	// Message is the human-readable reason.
	Message string
}

// Error implements the error interface.
func (e *InvalidInputError) Error() string {
	return e.Message
}

// Is reports whether target is ErrInvalidInput.
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// DecodingError is returned when an encoded input cannot be decoded.
type DecodingError struct {
	// Field names the offending input (e.g. "encodedOptions").
	Field string

	// Err is the underlying decode error.
	Err error
}

// Error implements the error interface.
func (e *DecodingError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Field, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodingError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDecoding.
func (e *DecodingError) Is(target error) bool {
	return target == ErrDecoding
}

// UndefinedVariableError is returned when MissingError is set and
// one or more environment placeholders are not found.
type UndefinedVariableError struct {
	// Names is the list of undefined variable names.
	Names []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}
