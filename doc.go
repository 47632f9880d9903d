// Package goSSO turns the payloads returned by SSO servers into identities and
// keeps those identities in Redis-backed sessions.
//
// A [Client] is assembled with [New] and [Builder.Build] from a [Config] that
// names each provider and its payload format (JSON, CAS XML or JWT). Client
// methods are safe to call from multiple goroutines after Build.
//
// # Architecture boundaries
//
// goSSO is the public surface. It exposes [Client], [Builder], [Config] and
// value types ([Session], [MetricsSnapshot], [AuditEvent]). Conversion lives
// in the deserializer packages, the identity model in package identity and
// session persistence in package session.
//
// # What this package must NOT do
//
//   - Expose Redis clients or session encoding details in its public API.
//   - Perform I/O outside of Client methods. Build does not contact Redis.
//   - Redirect users or validate tickets against an SSO server; callers hand
//     in payloads already obtained from the server.
package goSSO
