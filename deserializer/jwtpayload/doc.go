// Package jwtpayload converts signed JWTs issued by an SSO server into
// identities. The token signature is verified with configured keys; the
// identifier comes from the "sub" claim (or a configured claim) and every other
// claim is kept as an attribute.
//
// Expiry and not-before checks are opt-in through Config.ValidateTime and use
// the configured clock, so a deserializer without them converts the same token
// to the same identity forever.
package jwtpayload
