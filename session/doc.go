// Package session provides Redis-backed session persistence for otpgate.
//
// # Tokens
//
// A session token is 32 bytes from crypto/rand, base64url encoded. Only the hex
// SHA-256 digest of the raw token (the session ID) is ever used as a key, so a
// Redis dump does not reveal usable tokens.
//
// # Layout
//
//   - <prefix>:s:<sid>        binary session record, TTL = session lifetime
//   - <prefix>:sa:<account>   set of live session IDs for the account
//   - <prefix>:sw:<account>   invalidation watermark (unix ms); sessions issued
//     before it are rejected even if their record survived a partial delete
//
// # What this package must NOT do
//
//   - Import otpgate (no upward imports).
//   - Make authorization decisions beyond liveness and expiry.
//   - Store plaintext tokens.
package session
