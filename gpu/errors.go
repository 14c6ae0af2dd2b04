package gpu

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error categories. Every *Error matches exactly one of them with errors.Is.
var (
	// ErrValidation is the category of refused operations. The object or
	// call that failed is left as it was.
	ErrValidation = errors.New("gpu: validation error")

	// ErrDeviceLost is the category of operations on a lost or destroyed
	// device. Once returned for a device it is returned for every later call.
	ErrDeviceLost = errors.New("gpu: device lost")
)

// ErrorKind identifies what a validation failed on.
type ErrorKind uint8

const (
	// ErrAliasedWritableUsage reports a resource used writably and in some
	// other way within one usage scope.
	ErrAliasedWritableUsage ErrorKind = iota

	// ErrUsageNotSubset reports a resource bound or created with a usage its
	// creator did not declare.
	ErrUsageNotSubset

	// ErrFormatMismatch reports a texture format that differs from the one a
	// binding or memory declares.
	ErrFormatMismatch

	// ErrDimensionMismatch reports a view dimension or size that differs from
	// the one a binding or memory declares.
	ErrDimensionMismatch

	// ErrSampleTypeMismatch reports a texture whose format cannot be sampled
	// as the binding's sample type.
	ErrSampleTypeMismatch

	// ErrBindingMismatch reports bind group entries that do not line up with
	// their layout.
	ErrBindingMismatch

	// ErrAccessAlreadyOpen reports BeginAccess while another access is open.
	ErrAccessAlreadyOpen

	// ErrAccessNotOpen reports EndAccess with no open access, or a shared
	// texture used outside an access.
	ErrAccessNotOpen

	// ErrAccessWrongTexture reports EndAccess on a texture other than the one
	// holding the access.
	ErrAccessWrongTexture

	// ErrForeignObject reports a texture or fence that belongs to another
	// memory object or device.
	ErrForeignObject

	// ErrMissingDescriptor reports an import without a platform handle.
	ErrMissingDescriptor

	// ErrDestroyed reports use of a destroyed object.
	ErrDestroyed

	// ErrEncoderState reports encoder calls out of order, such as a copy
	// inside an open pass or a command buffer submitted twice.
	ErrEncoderState

	// ErrLost reports use of a lost or destroyed device.
	ErrLost
)

// String returns a human-readable error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrAliasedWritableUsage:
		return "AliasedWritableUsage"
	case ErrUsageNotSubset:
		return "UsageNotSubset"
	case ErrFormatMismatch:
		return "FormatMismatch"
	case ErrDimensionMismatch:
		return "DimensionMismatch"
	case ErrSampleTypeMismatch:
		return "SampleTypeMismatch"
	case ErrBindingMismatch:
		return "BindingMismatch"
	case ErrAccessAlreadyOpen:
		return "AccessAlreadyOpen"
	case ErrAccessNotOpen:
		return "AccessNotOpen"
	case ErrAccessWrongTexture:
		return "AccessWrongTexture"
	case ErrForeignObject:
		return "ForeignObject"
	case ErrMissingDescriptor:
		return "MissingDescriptor"
	case ErrDestroyed:
		return "Destroyed"
	case ErrEncoderState:
		return "EncoderState"
	case ErrLost:
		return "Lost"
	default:
		return "Unknown"
	}
}

// Error is a refused operation.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("gpu %s: %s", e.Kind, e.Message)
}

// Is matches the error's category sentinel.
func (e *Error) Is(target error) bool {
	if e.Kind == ErrLost {
		return target == ErrDeviceLost
	}
	return target == ErrValidation
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
