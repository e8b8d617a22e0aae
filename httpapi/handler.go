package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/identity"
	"github.com/MrEthical07/otpgate/middleware"
	"github.com/gin-gonic/gin"
)

// Handler serves the engine's operations over HTTP.
type Handler struct {
	engine *otpgate.Engine
}

func New(engine *otpgate.Engine) *Handler {
	return &Handler{engine: engine}
}

// NewRouter returns a gin engine with recovery and every route registered.
func NewRouter(engine *otpgate.Engine) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	New(engine).Register(r)
	return r
}

// Register mounts the /v1 routes on r.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/v1", requestContext())
	{
		v1.POST("/signup", h.RequestSignup)
		v1.POST("/signup/confirm", h.ConfirmSignup)
		v1.POST("/signup/resend", h.ResendSignupCode)

		v1.POST("/signin", h.Authenticate)
		v1.POST("/signin/confirm", h.ConfirmAuthentication)

		v1.POST("/password-reset", h.RequestPasswordReset)
		v1.POST("/password-reset/confirm", h.ConfirmPasswordReset)

		v1.POST("/signout", h.SignOut)
		v1.POST("/signout/all", h.requireSession(), h.SignOutAll)

		v1.GET("/session", h.requireSession(), h.Session)
		v1.POST("/session/assertion", h.IssueAssertion)
	}
}

// requestContext carries the client address and user agent into the engine
// for throttling and audit records.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otpgate.WithClientIP(c.Request.Context(), c.ClientIP())
		ctx = otpgate.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

const principalKey = "otpgate.principal"

func (h *Handler) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", `Bearer realm="otpgate"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "missing or invalid Authorization header", Code: "unauthorized"})
			return
		}
		p, err := h.engine.Authorize(c.Request.Context(), token)
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer realm="otpgate"`)
			writeError(c, "authorize", err)
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

func principalOf(c *gin.Context) *otpgate.Principal {
	v, _ := c.Get(principalKey)
	p, _ := v.(*otpgate.Principal)
	return p
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

type codeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type challengeResponse struct {
	Email       string    `json:"email"`
	Purpose     string    `json:"purpose"`
	ExpiresAt   time.Time `json:"expires_at"`
	ResendAfter time.Time `json:"resend_after"`
}

type accountResponse struct {
	ID            string        `json:"id"`
	Email         string        `json:"email"`
	Phone         string        `json:"phone"`
	FullName      string        `json:"full_name"`
	Role          identity.Role `json:"role"`
	EmailVerified bool          `json:"email_verified"`
	CreatedAt     time.Time     `json:"created_at"`
}

type sessionResponse struct {
	AccountID string        `json:"account_id"`
	SessionID string        `json:"session_id"`
	Role      identity.Role `json:"role"`
	IssuedAt  time.Time     `json:"issued_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

type authResponse struct {
	Token   string          `json:"token"`
	Session sessionResponse `json:"session"`
	Account accountResponse `json:"account"`
}

func toChallenge(ch *otpgate.Challenge) challengeResponse {
	return challengeResponse{
		Email:       ch.Email,
		Purpose:     ch.Purpose,
		ExpiresAt:   ch.ExpiresAt,
		ResendAfter: ch.ResendAfter,
	}
}

func toSession(p *otpgate.Principal) sessionResponse {
	return sessionResponse{
		AccountID: p.AccountID,
		SessionID: p.SessionID,
		Role:      p.Role,
		IssuedAt:  p.IssuedAt,
		ExpiresAt: p.ExpiresAt,
	}
}

func toAuth(res *otpgate.AuthResult) authResponse {
	return authResponse{
		Token:   res.Token,
		Session: toSession(&res.Principal),
		Account: accountResponse{
			ID:            res.Account.ID,
			Email:         res.Account.Email,
			Phone:         res.Account.Phone,
			FullName:      res.Account.FullName,
			Role:          res.Account.Role,
			EmailVerified: res.Account.EmailVerified,
			CreatedAt:     res.Account.CreatedAt,
		},
	}
}

func badJSON(c *gin.Context, scope string, err error) {
	log.Printf("[httpapi][%s] bad request: bind json failed: err=%v", scope, err)
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: "malformed JSON body", Code: "validation_failed"})
}

func (h *Handler) RequestSignup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, "signup", err)
		return
	}

	ch, err := h.engine.RequestSignup(c.Request.Context(), otpgate.SignupRequest{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		writeError(c, "signup", err)
		return
	}
	c.JSON(http.StatusAccepted, toChallenge(ch))
}

func (h *Handler) ConfirmSignup(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, "signup_confirm", err)
		return
	}

	res, err := h.engine.ConfirmSignup(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		writeError(c, "signup_confirm", err)
		return
	}
	c.JSON(http.StatusCreated, toAuth(res))
}

func (h *Handler) ResendSignupCode(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, "signup_resend", err)
		return
	}

	ch, err := h.engine.ResendSignupCode(c.Request.Context(), req.Email)
	if err != nil {
		writeError(c, "signup_resend", err)
		return
	}
	c.JSON(http.StatusAccepted, toChallenge(ch))
}

func (h *Handler) Authenticate(c *gin.Context) {
	var req signinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, "signin", err)
		return
	}

	ch, err := h.engine.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, "signin", err)
		return
	}
	c.JSON(http.StatusAccepted, toChallenge(ch))
}

func (h *Handler) ConfirmAuthentication(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, "signin_confirm", err)
		return
	}

	res, err := h.engine.ConfirmAuthentication(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		writeError(c, "signin_confirm", err)
		return
	}
	c.JSON(http.StatusOK, toAuth(res))
}

// RequestPasswordReset answers 202 for every well-formed or malformed request.
// Only an infrastructure failure that hits every email alike yields 500.
func (h *Handler) RequestPasswordReset(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[httpapi][password_reset] bind json failed: err=%v", err)
	}

	if err := h.engine.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		writeError(c, "password_reset", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func (h *Handler) ConfirmPasswordReset(c *gin.Context) {
	var req resetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, "password_reset_confirm", err)
		return
	}

	if err := h.engine.ConfirmPasswordReset(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		writeError(c, "password_reset_confirm", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SignOut revokes the bearer session. An absent or unknown token still gets
// 204.
func (h *Handler) SignOut(c *gin.Context) {
	token, _ := middleware.BearerToken(c.GetHeader("Authorization"))
	if token != "" {
		if err := h.engine.SignOut(c.Request.Context(), token); err != nil {
			writeError(c, "signout", err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) SignOutAll(c *gin.Context) {
	p := principalOf(c)
	if err := h.engine.SignOutAll(c.Request.Context(), p.AccountID); err != nil {
		writeError(c, "signout_all", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, toSession(principalOf(c)))
}

func (h *Handler) IssueAssertion(c *gin.Context) {
	token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.Header("WWW-Authenticate", `Bearer realm="otpgate"`)
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "missing or invalid Authorization header", Code: "unauthorized"})
		return
	}

	assertion, err := h.engine.IssueAssertion(c.Request.Context(), token)
	if err != nil {
		writeError(c, "assertion", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assertion": assertion, "token_type": "bearer"})
}
