package middleware

import (
	"net/http"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/identity"
)

// RequireSession checks the bearer session token against Redis on every
// request. With roles given, the session's role must be one of them.
func RequireSession(engine *otpgate.Engine, roles ...identity.Role) func(http.Handler) http.Handler {
	if engine == nil {
		return guard(nil, roles)
	}
	return guard(engine.Authorize, roles)
}

func RequireAdmin(engine *otpgate.Engine) func(http.Handler) http.Handler {
	return RequireSession(engine, identity.RoleAdmin)
}
