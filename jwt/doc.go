// Package jwt signs short-lived session assertions: JWTs that let a
// downstream service trust an account id and role without calling back into
// the session store. The opaque session token remains the source of truth.
package jwt
