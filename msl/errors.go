package msl

import "fmt"

// ErrorKind categorizes MSL compilation errors.
type ErrorKind uint8

const (
	// ErrUnsupportedFeature indicates a shader feature not supported by the target.
	ErrUnsupportedFeature ErrorKind = iota

	// ErrMissingBinding indicates a resource binding was not found in BindingMap.
	ErrMissingBinding

	// ErrUnmappedBuiltin indicates a builtin with no MSL spelling for its argument shape.
	ErrUnmappedBuiltin

	// ErrUnmappedTextureOverload indicates a texture call Metal has no method for.
	ErrUnmappedTextureOverload

	// ErrInvalidModule indicates the IR module is malformed.
	ErrInvalidModule

	// ErrEntryPointNotFound indicates the specified entry point doesn't exist.
	ErrEntryPointNotFound
)

// String returns a human-readable error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrUnsupportedFeature:
		return "UnsupportedFeature"
	case ErrMissingBinding:
		return "MissingBinding"
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

// Error represents an MSL compilation error.
type Error struct {
	Kind    ErrorKind
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("msl %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
