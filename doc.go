// Package otpgate is an account verification and authentication engine: signup
// confirmed by an emailed one-time code, password signin confirmed by a second
// code, password reset by single-use token, brute-force lockout and opaque
// Redis-backed sessions.
//
// Engine methods are safe to call from multiple goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// otpgate is the public surface. It exposes [Engine], [Builder], [Config], the
// error values and result types. Durable accounts live behind [identity.Store];
// every short-lived record (codes, staged signups, reset grants, sessions,
// cooldowns) lives in Redis under Config.KeyPrefix and is handled by packages
// under internal/ that are never exported.
//
// Secrets leave the engine only through the [Deliverer]. Codes, reset tokens
// and passwords are never returned from a request method, never written to the
// audit stream and never stored except as salted digests.
//
// # Expiry
//
// Nothing runs in the background apart from the audit dispatcher. Codes, reset
// tokens, lockouts and sessions are compared against the engine clock when
// they are used; Redis TTLs only reclaim space.
package otpgate
