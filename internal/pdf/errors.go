package pdf

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindValidation is bad input shape: wrong type, empty selection, bad parameter.
	KindValidation Kind = iota + 1
	// KindMinimumInput is a multi-document operation given too few documents.
	KindMinimumInput
	// KindParse is a byte buffer that is not a well-formed document.
	KindParse
	// KindCapability is a document that needs a key the caller cannot supply.
	KindCapability
	// KindIO is a failure to persist output to an external store.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindMinimumInput:
		return "minimum_input"
	case KindParse:
		return "parse"
	case KindCapability:
		return "capability"
	case KindIO:
		return "io"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the typed failure returned by the loader, the serializer and the
// transform operations.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Kind.String() + " error"
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Validationf returns a KindValidation error.
func Validationf(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// MinimumInputf returns a KindMinimumInput error.
func MinimumInputf(format string, args ...interface{}) error {
	return &Error{Kind: KindMinimumInput, Msg: fmt.Sprintf(format, args...)}
}

// Parsef returns a KindParse error.
func Parsef(format string, args ...interface{}) error {
	return &Error{Kind: KindParse, Msg: fmt.Sprintf(format, args...)}
}

// Capabilityf returns a KindCapability error.
func Capabilityf(format string, args ...interface{}) error {
	return &Error{Kind: KindCapability, Msg: fmt.Sprintf(format, args...)}
}

// WrapIO wraps err as a KindIO error.
func WrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindIO, Op: op, Err: err}
}

// wrapParse turns any error into a KindParse error unless it is already typed.
func wrapParse(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Kind: KindParse, Msg: fmt.Sprintf(format, args...), Err: err}
}

// WithOp stamps the operation name on err.
func WithOp(op string, err error) error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*Error); ok {
		if pe.Op != "" {
			return err
		}
		cp := *pe
		cp.Op = op
		return &cp
	}
	return fmt.Errorf("%s: %w", op, err)
}

// KindOf reports the Kind of err, or 0 when err is not a typed error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, k Kind) bool { return KindOf(err) == k }
