// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package glsl

import "fmt"

// ErrorKind categorizes GLSL compilation errors.
type ErrorKind uint8

const (
	// ErrUnsupportedFeature indicates a construct GLSL cannot express.
	ErrUnsupportedFeature ErrorKind = iota

	// ErrUnmappedBuiltin indicates a builtin with no GLSL spelling for its argument shape.
	ErrUnmappedBuiltin

	// ErrUnmappedTextureOverload indicates a texture call GLSL has no overload for.
	ErrUnmappedTextureOverload

	// ErrInvalidModule indicates the IR module is malformed.
	ErrInvalidModule

	// ErrEntryPointNotFound indicates the requested entry point doesn't exist.
	ErrEntryPointNotFound
)

// String returns a human-readable error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrUnsupportedFeature:
		return "UnsupportedFeature"
	case ErrUnmappedBuiltin:
		return "UnmappedBuiltin"
	case ErrUnmappedTextureOverload:
		return "UnmappedTextureOverload"
	case ErrInvalidModule:
		return "InvalidModule"
	case ErrEntryPointNotFound:
		return "EntryPointNotFound"
	default:
		return "Unknown"
	}
}

// Error represents a GLSL compilation error.
type Error struct {
	Kind    ErrorKind
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("glsl %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
