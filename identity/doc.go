// Package identity defines the authenticated principal handed to client code
// after an SSO payload has been converted.
//
// # Model
//
// An [Identity] is an identifier plus an open set of named attributes. Attribute
// values are [Value]s: strings, numbers, booleans, null, or nested lists and
// objects. [User] is the concrete, immutable implementation. Nesting is capped
// at [MaxDepth] when an identity is built, so every User can be encoded.
//
// # Storage
//
// [BinaryCodec] and [JSONCodec] serialize any Identity for session stores and
// distributed caches. Decoding always yields a *User equal to the input.
//
// # What this package must NOT do
//
//   - Parse provider payloads (see package deserializer).
//   - Perform I/O or hold handles, connections, or callbacks inside an identity.
//   - Expose attribute storage in a way that lets callers mutate an identity.
package identity
