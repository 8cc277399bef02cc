// Package middleware exposes the engine as explicit net/http interceptor
// stages. The pipeline order is fixed: RateLimit first, then Guard, then the
// handler. Each stage either passes the request through or short-circuits
// with its own response; there is no hidden control flow between stages.
package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	gatecred "github.com/Alenazd/gatecred"
)

// RateLimit consumes traffic quota per (client IP, path) before the request
// reaches any handler. Exhausted quota answers 429 with a best-effort
// Retry-After header; a store outage lets the request through.
func RateLimit(engine *gatecred.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := engine.CheckTraffic(r.Context(), clientIP(r), r.URL.Path)
			if !d.Allowed {
				if d.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())))
				}
				writeJSON(w, http.StatusTooManyRequests, map[string]string{
					"error": "too many requests",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Guard rejects requests whose bearer token is missing or blacklisted.
// Signature and expiry validation stay with the upstream provider; the
// guard only enforces revocation.
func Guard(engine *gatecred.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "missing token",
				})
				return
			}

			if !engine.IsTokenUsable(r.Context(), token) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "token is blacklisted",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Chain applies stages left to right: the first stage sees the request
// first.
func Chain(h http.Handler, stages ...func(http.Handler) http.Handler) http.Handler {
	for i := len(stages) - 1; i >= 0; i-- {
		h = stages[i](h)
	}
	return h
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := value[len(bearer):]
	if token == "" {
		return "", false
	}
	return token, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
