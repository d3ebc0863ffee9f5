package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/bionicotaku/lingo-utils-tokenauth"
	"github.com/bionicotaku/lingo-utils-tokenauth/internal/clog"
)

const (
	noCompressionHeader = "X-No-Compression"
	compressMinSize     = 1024

	hsts = "max-age=31536000; includeSubDomains; preload"
)

var securityHeaderValues = map[string]string{
	"X-Content-Type-Options":            "nosniff",
	"Cross-Origin-Resource-Policy":      "cross-origin",
	"Cross-Origin-Opener-Policy":        "same-origin",
	"Origin-Agent-Cluster":              "?1",
	"Referrer-Policy":                   "no-referrer",
	"X-Permitted-Cross-Domain-Policies": "none",
	"X-XSS-Protection":                  "0",
}

// securityHeaders sets the response hardening headers. HSTS is only sent in
// production; CSP and frame options are left to the deployment proxy.
func securityHeaders(production bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		h := w.Header()
		for k, v := range securityHeaderValues {
			h.Set(k, v)
		}
		if production {
			h.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, req)
	})
}

func corsHandler(origins []string, next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodPatch,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"Authorization", "Content-Type", requestIDHeader, noCompressionHeader},
		ExposedHeaders:   []string{requestIDHeader, "Retry-After"},
		AllowCredentials: true,
	}).Handler(next)
}

// compress gzips responses of at least 1KiB unless the client sends
// X-No-Compression.
func compress(next http.Handler) (http.Handler, error) {
	wrap, err := gzhttp.NewWrapper(gzhttp.MinSize(compressMinSize))
	if err != nil {
		return nil, fmt.Errorf("gzip wrapper: %w", err)
	}
	gz := wrap(next)
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get(noCompressionHeader) != "" {
			next.ServeHTTP(w, req)
			return
		}
		gz.ServeHTTP(w, req)
	}), nil
}

// throttle counts the request against every throttler, keyed by route
// template and client ip.
func (a *api) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var tmpl, name string
		if route := mux.CurrentRoute(req); route != nil {
			tmpl, _ = route.GetPathTemplate()
			name = route.GetName()
		}
		key := tmpl + ":" + a.clientIP(req)

		results, allowed, err := a.Limiter.Check(req.Context(), key, a.overrides[name]...)
		if err != nil {
			a.handleErr(w, req, err)
			return
		}

		now := a.Limiter.Now()
		var retryAfter time.Duration
		h := w.Header()
		for _, r := range results {
			reset := r.RetryAfter(now)
			h.Set("X-RateLimit-Limit-"+r.Name, strconv.Itoa(r.Limit))
			h.Set("X-RateLimit-Remaining-"+r.Name, strconv.Itoa(r.Remaining()))
			h.Set("X-RateLimit-Reset-"+r.Name, strconv.Itoa(int(reset.Seconds())))
			if !r.Allowed() && reset > retryAfter {
				retryAfter = reset
			}
		}
		if !allowed {
			h.Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			clog.Set(req.Context(), zap.Bool("throttled", true))
			a.handleErr(w, req, &httpError{Status: http.StatusTooManyRequests, Message: "ThrottlerException: Too Many Requests"})
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (a *api) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		token, ok := bearerToken(req.Header.Get("Authorization"))
		if !ok {
			a.handleErr(w, req, errUnauthorized)
			return
		}
		p, err := a.Validator.Validate(token)
		if err != nil {
			a.handleErr(w, req, err)
			return
		}
		clog.Set(req.Context(), zap.String("user_id", p.UserID))
		next(w, req.WithContext(tokenauth.BindPrincipal(req.Context(), p)))
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, tokenauth.TokenType) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// clientIP uses the first X-Forwarded-For entry when the proxy is trusted and
// the connection address otherwise.
func (a *api) clientIP(req *http.Request) string {
	if a.TrustProxy {
		if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
			ip, _, _ := strings.Cut(xff, ",")
			if ip = strings.TrimSpace(ip); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
