// Package session provides Redis-backed persistence for identities produced by
// SSO deserializers.
//
// # Binary encoding
//
// A session record is a version byte, a codec tag, the provider name, the
// creation and expiry instants and the identity blob written by the
// configured [identity.Codec]. The codec tag is stored per record, so changing
// the store's codec does not strand sessions written earlier.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model. It
// does NOT parse provider payloads or decide which provider a login came from;
// those responsibilities belong to the deserializers and the client.
//
// # What this package must NOT do
//
//   - Import goSSO or any deserializer package (no upward imports).
//   - Mutate an identity after it has been stored.
package session
