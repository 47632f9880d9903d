package session

import "github.com/MrEthical07/goSSO/identity"

// Session is a stored login: the identity produced by a provider's
// deserializer plus lifetime bookkeeping.
type Session struct {
	SessionID string
	Provider  string
	Identity  *identity.User

	CreatedAt int64
	ExpiresAt int64
}

// UserID returns the identifier of the session's identity.
func (s *Session) UserID() string {
	if s == nil {
		return ""
	}
	return s.Identity.ID()
}
