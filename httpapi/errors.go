package httpapi

import (
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/otpgate"
	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// statusOf maps an engine error to a status code and a stable machine code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, otpgate.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, otpgate.ErrDuplicateEmail):
		return http.StatusConflict, "duplicate_email"
	case errors.Is(err, otpgate.ErrDuplicatePhone):
		return http.StatusConflict, "duplicate_phone"
	case errors.Is(err, otpgate.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, otpgate.ErrCodeMismatch):
		return http.StatusUnauthorized, "code_mismatch"
	case errors.Is(err, otpgate.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, otpgate.ErrAccountLocked):
		return http.StatusLocked, "account_locked"
	case errors.Is(err, otpgate.ErrCodeExpired):
		return http.StatusGone, "code_expired"
	case errors.Is(err, otpgate.ErrCodeAttemptsExhausted):
		return http.StatusGone, "code_attempts_exhausted"
	case errors.Is(err, otpgate.ErrInvalidOrExpiredToken):
		return http.StatusGone, "invalid_or_expired_token"
	case errors.Is(err, otpgate.ErrTooManyRequests):
		return http.StatusTooManyRequests, "too_many_requests"
	case errors.Is(err, otpgate.ErrDeliveryFailed):
		return http.StatusBadGateway, "delivery_failed"
	case errors.Is(err, otpgate.ErrAssertionsDisabled):
		return http.StatusNotFound, "assertions_disabled"
	case errors.Is(err, otpgate.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "not_ready"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError renders err. Internal failures are logged with their detail and
// answered with a generic message.
func writeError(c *gin.Context, scope string, err error) {
	status, code := statusOf(err)

	body := errorBody{Error: err.Error(), Code: code}
	var ve *otpgate.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}

	var locked *otpgate.LockedError
	var cooldown *otpgate.CooldownError
	switch {
	case errors.As(err, &locked):
		c.Header("Retry-After", retryAfter(locked.Remaining))
	case errors.As(err, &cooldown):
		c.Header("Retry-After", retryAfter(cooldown.RetryAfter))
	}

	if status >= http.StatusInternalServerError {
		log.Printf("[httpapi][%s] failed: status=%d err=%v", scope, status, err)
		body.Error = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, body)
}

func retryAfter(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
