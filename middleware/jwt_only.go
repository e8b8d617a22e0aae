package middleware

import (
	"net/http"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/identity"
)

// RequireAssertion accepts a signed session assertion instead of a session
// token and never touches Redis. A revoked session keeps passing until its
// assertion expires.
func RequireAssertion(engine *otpgate.Engine, roles ...identity.Role) func(http.Handler) http.Handler {
	if engine == nil {
		return guard(nil, roles)
	}
	return guard(engine.VerifyAssertion, roles)
}
