package deserializer

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a conversion failure.
type Kind uint8

const (
	// KindUnknown is reported by KindOf for errors that are not conversion errors.
	KindUnknown Kind = iota
	// KindMalformedPayload: the payload is not parseable in the expected format.
	KindMalformedPayload
	// KindMissingIdentifier: parsing succeeded but no usable identifier was found.
	KindMissingIdentifier
	// KindTypeMismatch: a recognized field has a value of the wrong shape.
	KindTypeMismatch
	// KindUnverified: the payload parsed but failed signature or claim verification.
	KindUnverified
)

func (k Kind) String() string {
	switch k {
	case KindMalformedPayload:
		return "malformed_payload"
	case KindMissingIdentifier:
		return "missing_identifier"
	case KindTypeMismatch:
		return "type_mismatch"
	case KindUnverified:
		return "unverified"
	default:
		return "unknown"
	}
}

var (
	// ErrMalformedPayload matches every KindMalformedPayload error via errors.Is.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrMissingIdentifier matches every KindMissingIdentifier error via errors.Is.
	ErrMissingIdentifier = errors.New("missing identifier")
	// ErrTypeMismatch matches every KindTypeMismatch error via errors.Is.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrUnverified matches every KindUnverified error via errors.Is.
	ErrUnverified = errors.New("payload verification failed")
)

func (k Kind) sentinel() error {
	switch k {
	case KindMalformedPayload:
		return ErrMalformedPayload
	case KindMissingIdentifier:
		return ErrMissingIdentifier
	case KindTypeMismatch:
		return ErrTypeMismatch
	case KindUnverified:
		return ErrUnverified
	default:
		return nil
	}
}

// Error is the failure result of Deserialize.
type Error struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	if s := e.Kind.sentinel(); s != nil {
		b.WriteString(s.Error())
	} else {
		b.WriteString("conversion failed")
	}
	if e.Field != "" {
		b.WriteString(": field ")
		b.WriteString(e.Field)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the conversion kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var convErr *Error
	if errors.As(err, &convErr) {
		return convErr.Kind
	}
	return KindUnknown
}

// Malformed reports a payload that could not be parsed.
func Malformed(cause error) error {
	return &Error{Kind: KindMalformedPayload, Err: cause}
}

// MissingIdentifier reports a payload without a usable identifier in field.
func MissingIdentifier(field string, cause error) error {
	return &Error{Kind: KindMissingIdentifier, Field: field, Err: cause}
}

// TypeMismatch reports that field held got where want was expected.
func TypeMismatch(field, want, got string) error {
	return &Error{Kind: KindTypeMismatch, Field: field, Err: fmt.Errorf("expected %s, got %s", want, got)}
}

// Unverified reports a payload that failed verification.
func Unverified(cause error) error {
	return &Error{Kind: KindUnverified, Err: cause}
}
