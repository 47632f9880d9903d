package deserializer

import (
	"errors"

	"github.com/MrEthical07/goSSO/identity"
)

// Deserializer converts a raw SSO payload into an Identity.
//
// Implementations must be pure with respect to payload: equal input yields an
// equal identity, with no dependency on clocks, network, or mutable state
// unless the caller configured one explicitly. They must be safe for
// concurrent use. A returned identity always has a non-empty ID; on failure
// the identity is nil and the error is a *Error.
type Deserializer interface {
	Deserialize(payload string) (identity.Identity, error)
}

// Func adapts a plain function to Deserializer.
type Func func(payload string) (identity.Identity, error)

// Deserialize implements Deserializer.
func (f Func) Deserialize(payload string) (identity.Identity, error) {
	return f(payload)
}

// Checked wraps d so that a result without an identifier is turned into a
// MissingIdentifier error and non-taxonomy errors are classified as malformed
// payloads. Identities that could not be stored, such as attributes nested
// beyond identity.MaxDepth, are reported as malformed too. The registry
// applies it to every registered deserializer.
func Checked(d Deserializer) Deserializer {
	if _, ok := d.(checked); ok {
		return d
	}
	return checked{inner: d}
}

type checked struct {
	inner Deserializer
}

func (c checked) Deserialize(payload string) (identity.Identity, error) {
	ident, err := c.inner.Deserialize(payload)
	if err != nil {
		if KindOf(err) == KindUnknown {
			return nil, Malformed(err)
		}
		return nil, err
	}
	if ident == nil || ident.ID() == "" {
		return nil, MissingIdentifier("", errors.New("deserializer returned no identifier"))
	}
	if _, err := identity.Clone(ident); err != nil {
		return nil, Malformed(err)
	}
	return ident, nil
}
