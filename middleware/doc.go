// Package middleware adapts otpgate sessions to net/http handlers.
//
// # Guards
//
//   - [RequireSession] checks the opaque session token with Engine.Authorize.
//   - [RequireAdmin] is RequireSession restricted to admin sessions.
//   - [RequireAssertion] checks a signed assertion with Engine.VerifyAssertion,
//     without a Redis round trip.
//
// Each guard reads the Authorization bearer credential and stores the resolved
// [otpgate.Principal] on the request context ([PrincipalFromContext]).
// Missing or rejected credentials get 401, a role outside the allowed set gets
// 403 and engine failures get 500.
//
// This package makes no authentication decisions of its own.
package middleware
