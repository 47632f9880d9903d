// Package deserializer defines the strategy that turns a raw SSO payload into
// an identity.Identity, the error taxonomy every strategy reports, and the
// provider registry used to select a strategy by name.
//
// # Strategies
//
// Concrete strategies live in sub-packages: jsonpayload (JSON objects),
// xmlpayload (CAS service responses) and jwtpayload (signed JWTs). Any type
// with a Deserialize(string) method plugs in the same way.
//
// # Errors
//
// Failures are *[Error] values whose Kind is one of MalformedPayload,
// MissingIdentifier, TypeMismatch or Unverified. Match them with errors.Is
// against the exported sentinels or with [KindOf].
//
// # What this package must NOT do
//
//   - Fetch payloads, follow redirects, or exchange tokens.
//   - Retry conversions. A pure parse of identical input cannot succeed later.
//   - Store identities (see package session).
package deserializer
