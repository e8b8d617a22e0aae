package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/identity"
	"github.com/MrEthical07/otpgate/identity/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type mailbox struct {
	mu      sync.Mutex
	secrets map[otpgate.DeliveryKind]string
	sent    int
}

func (m *mailbox) deliver(_ context.Context, d otpgate.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.secrets == nil {
		m.secrets = make(map[otpgate.DeliveryKind]string)
	}
	m.secrets[d.Kind] = d.Secret
	m.sent++
	return nil
}

func (m *mailbox) secret(kind otpgate.DeliveryKind) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.secrets[kind]
}

func (m *mailbox) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

type testServer struct {
	engine *otpgate.Engine
	router *gin.Engine
	box    *mailbox
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := otpgate.DefaultConfig()
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	box := &mailbox{}
	engine, err := otpgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(memory.New()).
		WithDeliverer(otpgate.DelivererFunc(box.deliver)).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testServer{engine: engine, router: NewRouter(engine), box: box}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func (s *testServer) signUp(t *testing.T, email, phone string) authResponse {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/v1/signup", "", gin.H{
		"email": email, "password": "Abcd1234", "full_name": "Test User", "phone": phone,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("signup: expected 202, got %d %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, "/v1/signup/confirm", "", gin.H{
		"email": email, "code": s.box.secret(otpgate.DeliverySignupCode),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup confirm: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	return decode[authResponse](t, rec)
}

func TestSignupFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/v1/signup", "", gin.H{
		"email": "a@x.com", "password": "Abcd1234", "full_name": "Alice", "phone": "01712345678",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", rec.Code, rec.Body.String())
	}
	ch := decode[challengeResponse](t, rec)
	code := s.box.secret(otpgate.DeliverySignupCode)
	if ch.Email != "a@x.com" || len(code) != 6 {
		t.Fatalf("unexpected challenge %+v with code %q", ch, code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte(code)) {
		t.Fatalf("response body leaked the code")
	}

	rec = s.do(t, http.MethodPost, "/v1/signup/confirm", "", gin.H{"email": "a@x.com", "code": code})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	res := decode[authResponse](t, rec)
	if res.Token == "" || res.Account.Email != "a@x.com" || !res.Account.EmailVerified || res.Account.Role != identity.RoleUser {
		t.Fatalf("unexpected auth response %+v", res)
	}

	rec = s.do(t, http.MethodPost, "/v1/signup/confirm", "", gin.H{"email": "a@x.com", "code": code})
	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410 for reused code, got %d", rec.Code)
	}
	if body := decode[errorBody](t, rec); body.Code != "code_expired" {
		t.Fatalf("expected code_expired, got %+v", body)
	}

	rec = s.do(t, http.MethodGet, "/v1/session", res.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if sess := decode[sessionResponse](t, rec); sess.AccountID != res.Account.ID {
		t.Fatalf("session belongs to %q, want %q", sess.AccountID, res.Account.ID)
	}

	if rec := s.do(t, http.MethodPost, "/v1/signout", res.Token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/v1/session", res.Token, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after sign out, got %d", rec.Code)
	}
}

func TestSignupErrors(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "taken@x.com", "01712345670")

	tests := []struct {
		name   string
		body   any
		status int
		code   string
		field  string
	}{
		{"bad email", gin.H{"email": "nope", "password": "Abcd1234", "full_name": "N", "phone": "01712345671"},
			http.StatusBadRequest, "validation_failed", "email"},
		{"weak password", gin.H{"email": "weak@x.com", "password": "abc", "full_name": "N", "phone": "01712345672"},
			http.StatusBadRequest, "validation_failed", "password"},
		{"duplicate email", gin.H{"email": "taken@x.com", "password": "Abcd1234", "full_name": "N", "phone": "01712345673"},
			http.StatusConflict, "duplicate_email", ""},
		{"duplicate phone", gin.H{"email": "fresh@x.com", "password": "Abcd1234", "full_name": "N", "phone": "01712345670"},
			http.StatusConflict, "duplicate_phone", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/v1/signup", "", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d %s", tc.status, rec.Code, rec.Body.String())
			}
			body := decode[errorBody](t, rec)
			if body.Code != tc.code || body.Field != tc.field {
				t.Fatalf("unexpected error body %+v", body)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/signup", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}
}

func TestResendCooldownSetsRetryAfter(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/v1/signup", "", gin.H{
		"email": "slow@x.com", "password": "Abcd1234", "full_name": "Slow", "phone": "01712345674",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/v1/signup/resend", "", gin.H{"email": "slow@x.com"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d %s", rec.Code, rec.Body.String())
	}
	secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || secs < 1 || secs > 60 {
		t.Fatalf("unexpected Retry-After %q", rec.Header().Get("Retry-After"))
	}
}

func TestSigninLockout(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "b@x.com", "01712345675")

	for i := 0; i < 5; i++ {
		rec := s.do(t, http.MethodPost, "/v1/signin", "", gin.H{"email": "b@x.com", "password": "Wrong1234"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}

	rec := s.do(t, http.MethodPost, "/v1/signin", "", gin.H{"email": "b@x.com", "password": "Abcd1234"})
	if rec.Code != http.StatusLocked {
		t.Fatalf("expected 423, got %d %s", rec.Code, rec.Body.String())
	}
	secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || secs < 7100 || secs > 7200 {
		t.Fatalf("expected about two hours in Retry-After, got %q", rec.Header().Get("Retry-After"))
	}
}

func TestSigninFlow(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "c@x.com", "01712345676")

	rec := s.do(t, http.MethodPost, "/v1/signin", "", gin.H{"email": "c@x.com", "password": "Abcd1234"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", rec.Code, rec.Body.String())
	}

	code := s.box.secret(otpgate.DeliverySigninCode)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	rec = s.do(t, http.MethodPost, "/v1/signin/confirm", "", gin.H{"email": "c@x.com", "code": wrong})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong code, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/v1/signin/confirm", "", gin.H{"email": "c@x.com", "code": code})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	res := decode[authResponse](t, rec)

	if rec := s.do(t, http.MethodPost, "/v1/signout/all", res.Token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/v1/session", res.Token, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after sign out everywhere, got %d", rec.Code)
	} else if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}
}

func TestPasswordResetIsUniform(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "d@x.com", "01712345677")
	before := s.box.count()

	known := s.do(t, http.MethodPost, "/v1/password-reset", "", gin.H{"email": "d@x.com"})
	unknown := s.do(t, http.MethodPost, "/v1/password-reset", "", gin.H{"email": "ghost@x.com"})
	malformed := s.do(t, http.MethodPost, "/v1/password-reset", "", gin.H{"email": "not-an-email"})

	for _, rec := range []*httptest.ResponseRecorder{known, unknown, malformed} {
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
		if !bytes.Equal(rec.Body.Bytes(), known.Body.Bytes()) {
			t.Fatalf("bodies differ: %q vs %q", rec.Body.String(), known.Body.String())
		}
	}
	if s.box.count() != before+1 {
		t.Fatalf("expected exactly one reset delivery, got %d", s.box.count()-before)
	}
}

func TestPasswordResetConfirm(t *testing.T) {
	s := newTestServer(t)
	res := s.signUp(t, "e@x.com", "01712345678")

	if rec := s.do(t, http.MethodPost, "/v1/password-reset", "", gin.H{"email": "e@x.com"}); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	token := s.box.secret(otpgate.DeliveryResetToken)

	rec := s.do(t, http.MethodPost, "/v1/password-reset/confirm", "", gin.H{"token": token, "new_password": "short"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for weak password, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/v1/password-reset/confirm", "", gin.H{"token": token, "new_password": "Newpass123"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/v1/password-reset/confirm", "", gin.H{"token": token, "new_password": "Other1234"})
	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410 for reused token, got %d", rec.Code)
	}

	if rec := s.do(t, http.MethodGet, "/v1/session", res.Token, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected prior session revoked, got %d", rec.Code)
	}
}

func TestSessionRequiresBearer(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(t, http.MethodGet, "/v1/session", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/v1/signout", "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("sign out without token must be a no-op, got %d", rec.Code)
	}
}

func TestAssertionDisabled(t *testing.T) {
	s := newTestServer(t)
	res := s.signUp(t, "f@x.com", "01712345679")

	rec := s.do(t, http.MethodPost, "/v1/session/assertion", res.Token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{otpgate.ErrCodeAttemptsExhausted, http.StatusGone},
		{otpgate.ErrInvalidOrExpiredToken, http.StatusGone},
		{otpgate.ErrDeliveryFailed, http.StatusBadGateway},
		{otpgate.ErrSessionInvalidation, http.StatusInternalServerError},
		{otpgate.ErrInternal, http.StatusInternalServerError},
		{&otpgate.LockedError{}, http.StatusLocked},
		{&otpgate.CooldownError{}, http.StatusTooManyRequests},
	}
	for _, tc := range tests {
		if got, _ := statusOf(tc.err); got != tc.status {
			t.Fatalf("statusOf(%v) = %d, want %d", tc.err, got, tc.status)
		}
	}
}
