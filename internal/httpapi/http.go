package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.opencensus.io/trace"
	"go.uber.org/zap"

	"github.com/bionicotaku/lingo-utils-tokenauth"
	"github.com/bionicotaku/lingo-utils-tokenauth/internal/clog"
	"github.com/bionicotaku/lingo-utils-tokenauth/internal/ratelimit"
)

const (
	routeHealth = "health"
	routeToken  = "token"
	routeMe     = "me"

	requestIDHeader = "X-Request-ID"
	maxBodySize     = 64 << 10

	tokenUsage = "Add this token to Authorization header as: Bearer <token>"
)

// TokenIssuer signs tokens for allowlisted subjects.
type TokenIssuer interface {
	Issue(subject, email, role string) (*tokenauth.IssuedToken, error)
}

// TokenValidator turns a bearer token into a principal.
type TokenValidator interface {
	Validate(token string) (*tokenauth.Principal, error)
}

// Config holds the services and settings behind the HTTP API.
type Config struct {
	Issuer    TokenIssuer
	Validator TokenValidator
	// Limiter is optional; without it no route is throttled.
	Limiter *ratelimit.Limiter
	// IssueThrottle replaces the limiter throttler of the same name on the
	// issuance route.
	IssueThrottle ratelimit.Throttler
	Logger        *zap.Logger

	// Prefix is prepended to the auth routes, e.g. "/v1".
	Prefix      string
	CORSOrigins []string
	Production  bool
	TrustProxy  bool
}

// New returns the HTTP handler serving the health, token and me routes.
func New(cfg Config) (http.Handler, error) {
	if cfg.Issuer == nil || cfg.Validator == nil {
		return nil, errors.New("httpapi: issuer and validator are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = clog.Logger
	}
	a := &api{Config: cfg, overrides: make(map[string][]ratelimit.Throttler)}
	if cfg.IssueThrottle.Name != "" {
		a.overrides[routeToken] = []ratelimit.Throttler{cfg.IssueThrottle}
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		a.handleErr(w, req, &httpError{Status: http.StatusNotFound, Message: fmt.Sprintf("Cannot %s %s", req.Method, req.URL.Path)})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		a.handleErr(w, req, &httpError{Status: http.StatusMethodNotAllowed, Message: fmt.Sprintf("Cannot %s %s", req.Method, req.URL.Path)})
	})
	if cfg.Limiter != nil {
		r.Use(a.throttle)
	}

	r.HandleFunc("/health", a.Health).Methods(http.MethodGet).Name(routeHealth)
	auth := r.PathPrefix(strings.TrimSuffix(cfg.Prefix, "/") + "/auth").Subrouter()
	auth.HandleFunc("/token", a.Token).Methods(http.MethodPost).Name(routeToken)
	auth.HandleFunc("/me", a.authenticate(a.Me)).Methods(http.MethodGet).Name(routeMe)

	compressed, err := compress(r)
	if err != nil {
		return nil, err
	}
	a.handler = securityHeaders(cfg.Production, corsHandler(cfg.CORSOrigins, compressed))
	return a, nil
}

type api struct {
	Config
	handler   http.Handler
	overrides map[string][]ratelimit.Throttler
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (l *loggingResponseWriter) WriteHeader(status int) {
	if l.status == 0 {
		l.status = status
	}
	l.ResponseWriter.WriteHeader(status)
}

func (l *loggingResponseWriter) Write(b []byte) (int, error) {
	if l.status == 0 {
		l.status = http.StatusOK
	}
	return l.ResponseWriter.Write(b)
}

func (a *api) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	req = req.WithContext(clog.Context(req.Context()))
	ctx := req.Context()
	w := &loggingResponseWriter{ResponseWriter: rw}

	requestID := req.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, requestID)

	startTime := time.Now()
	a.handler.ServeHTTP(w, req)
	duration := time.Since(startTime)

	if w.status == 0 {
		w.status = http.StatusOK
	}

	clog.Set(ctx, zap.String("request_id", requestID))
	clog.Set(ctx, zap.String("request_path", req.URL.Path))
	clog.Set(ctx, zap.String("request_method", req.Method))
	clog.Set(ctx, zap.String("request_ip", a.clientIP(req)))
	clog.Set(ctx, zap.String("request_user_agent", req.Header.Get("User-Agent")))
	clog.Set(ctx, zap.Int("response_status", w.status))
	clog.Set(ctx, zap.Duration("response_duration", duration))

	clog.LogTo(ctx, a.Logger, "request")
}

func (a *api) Health(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) Token(w http.ResponseWriter, req *http.Request) {
	var body tokenauth.IssueRequest
	if err := json.NewDecoder(io.LimitReader(req.Body, maxBodySize)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		a.handleErr(w, req, &httpError{Status: http.StatusBadRequest, Message: "Invalid request body", Err: err})
		return
	}

	userID := strings.TrimSpace(body.UserID)
	clog.Set(req.Context(), zap.String("user_id", userID))
	if span := trace.FromContext(req.Context()); span != nil {
		span.AddAttributes(trace.StringAttribute("user_id", userID))
	}

	tok, err := a.Issuer.Issue(body.UserID, body.Email, body.Role)
	if err != nil {
		a.handleErr(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenauth.IssueResponse{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresIn:   tok.ExpiresIn,
		IssuedAt:    tok.IssuedAt.UTC().Format(tokenauth.IssuedAtLayout),
		Usage:       tokenUsage,
	})
}

type meResponse struct {
	UserID   string `json:"userId"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
	IssuedAt int64  `json:"iat"`
}

func (a *api) Me(w http.ResponseWriter, req *http.Request) {
	p, ok := tokenauth.PrincipalFromContext(req.Context())
	if !ok {
		a.handleErr(w, req, errUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		UserID:   p.UserID,
		Email:    p.Email,
		Role:     p.Role,
		IssuedAt: p.IssuedAtUnix(),
	})
}

type httpError struct {
	Status  int
	Message string
	Err     error
}

func (e *httpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *httpError) Unwrap() error { return e.Err }

var errUnauthorized = &httpError{Status: http.StatusUnauthorized, Message: "Unauthorized"}

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
}

func (a *api) handleErr(w http.ResponseWriter, req *http.Request, err error) {
	var (
		authErr *tokenauth.Error
		httpErr *httpError
		res     errorResponse
	)
	switch {
	case errors.As(err, &authErr):
		res = newErrorResponse(http.StatusUnauthorized, authErr.Message)
		res.Code = string(authErr.Code)
	case errors.As(err, &httpErr):
		res = newErrorResponse(httpErr.Status, httpErr.Message)
	default:
		res = newErrorResponse(http.StatusInternalServerError, "Internal server error")
	}
	if res.Code != "" {
		clog.Set(req.Context(), zap.String("error_code", res.Code))
		if span := trace.FromContext(req.Context()); span != nil {
			span.AddAttributes(trace.StringAttribute("error_code", res.Code))
		}
	}
	clog.Set(req.Context(), zap.Error(err))
	writeJSON(w, res.StatusCode, res)
}

func newErrorResponse(status int, msg string) errorResponse {
	return errorResponse{StatusCode: status, Message: msg, Error: http.StatusText(status)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
