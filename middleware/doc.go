// Package middleware exposes net/http guards built on goSSO.Client.
//
// # Guards
//
//   - [RequireSession]: resolves a stored session from a cookie or bearer header.
//   - [RequireToken]: converts a bearer token with a provider, no Redis call.
//
// Both guards inject the resulting identity into the request context, read
// back with [IdentityFromContext].
//
// # What this package must NOT do
//
//   - Parse payloads itself. Conversion is delegated to the Client.
//   - Access Redis directly.
//   - Make authorization decisions beyond pass or reject.
package middleware
