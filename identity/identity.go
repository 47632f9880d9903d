package identity

import (
	"errors"
	"fmt"
	"sort"
)

// ErrEmptyID is returned when an identity is constructed without an identifier.
var ErrEmptyID = errors.New("identity id is empty")

// Identity is the authenticated principal as seen by the client application.
//
// Implementations are read-only after construction and safe to share across
// goroutines without locking.
type Identity interface {
	// ID returns the provider-assigned unique identifier. Never empty.
	ID() string

	// Property returns the named attribute, or false when the provider did
	// not supply it.
	Property(name string) (Value, bool)

	// PropertyNames returns every populated attribute name. The slice is
	// owned by the caller; its order carries no meaning.
	PropertyNames() []string
}

// User is the Identity implementation produced by the bundled deserializers
// and by the codecs in this package.
type User struct {
	id    string
	attrs map[string]Value
}

var _ Identity = (*User)(nil)

// New builds a User. attrs is copied, so later changes to the caller's map do
// not reach the identity. Values nested beyond [MaxDepth] are rejected.
func New(id string, attrs map[string]Value) (*User, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	copied := make(map[string]Value, len(attrs))
	for k, v := range attrs {
		if err := checkDepth(v, 0); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		copied[k] = v
	}
	return &User{id: id, attrs: copied}, nil
}

// NewFromMap builds a User from decoded JSON-like values. Each value goes
// through [FromAny].
func NewFromMap(id string, attrs map[string]any) (*User, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	converted := make(map[string]Value, len(attrs))
	for k, raw := range attrs {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		converted[k] = v
	}
	return &User{id: id, attrs: converted}, nil
}

// Clone snapshots any Identity implementation into a User.
func Clone(ident Identity) (*User, error) {
	if ident == nil {
		return nil, ErrEmptyID
	}
	if u, ok := ident.(*User); ok {
		return u, nil
	}

	names := ident.PropertyNames()
	attrs := make(map[string]Value, len(names))
	for _, name := range names {
		if v, ok := ident.Property(name); ok {
			attrs[name] = v
		}
	}
	return New(ident.ID(), attrs)
}

// ID implements Identity.
func (u *User) ID() string {
	if u == nil {
		return ""
	}
	return u.id
}

// Property implements Identity.
func (u *User) Property(name string) (Value, bool) {
	if u == nil {
		return Value{}, false
	}
	v, ok := u.attrs[name]
	return v, ok
}

// PropertyNames implements Identity. Names are returned sorted so logs and
// templates render deterministically.
func (u *User) PropertyNames() []string {
	if u == nil {
		return []string{}
	}
	return sortedKeys(u.attrs)
}

// Len returns the number of attributes.
func (u *User) Len() int {
	if u == nil {
		return 0
	}
	return len(u.attrs)
}

// Attributes returns a copy of the attribute map.
func (u *User) Attributes() map[string]Value {
	out := make(map[string]Value, u.Len())
	if u == nil {
		return out
	}
	for k, v := range u.attrs {
		out[k] = v
	}
	return out
}

// StringProperty is a convenience lookup for string attributes. It reports
// false when the attribute is absent or is not a string.
func (u *User) StringProperty(name string) (string, bool) {
	v, ok := u.Property(name)
	if !ok {
		return "", false
	}
	return v.AsString()
}

// MarshalJSON renders the identity as {"id": ..., "attributes": {...}}.
func (u *User) MarshalJSON() ([]byte, error) {
	return marshalJSONIdentity(u)
}

// Equal reports whether a and b carry the same id and the same attribute set
// with equal values.
func Equal(a, b Identity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.ID() != b.ID() {
		return false
	}

	names := a.PropertyNames()
	if len(names) != len(b.PropertyNames()) {
		return false
	}
	for _, name := range names {
		av, _ := a.Property(name)
		bv, ok := b.Property(name)
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}

func sortedNames(ident Identity) []string {
	names := ident.PropertyNames()
	sort.Strings(names)
	return names
}
