// Command gateway wires the credential engine into a minimal HTTP front:
// auth endpoints proxied to the identity provider behind the fixed
// rate-limit → guard pipeline, plus a Prometheus scrape endpoint.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	gatecred "github.com/Alenazd/gatecred"
	"github.com/Alenazd/gatecred/kv"
	"github.com/Alenazd/gatecred/middleware"
	"github.com/Alenazd/gatecred/upstream"
)

func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	store, err := kv.Dial(ctx, envOr("REDIS_ADDR", "localhost:6379"), os.Getenv("REDIS_PASSWORD"), envInt("REDIS_DB", 0))
	cancel()
	if err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	cfg := gatecred.DefaultConfig()
	cfg.Upstream.BaseURL = envOr("AUTH_SERVICE_URL", "http://localhost:8080")
	cfg.Audit.Enabled = true
	cfg.Metrics.Enabled = true

	engine, err := gatecred.New().
		WithConfig(cfg).
		WithStore(store).
		WithLogger(log).
		WithAuditSink(gatecred.NewJSONWriterSink(os.Stdout)).
		Build()
	if err != nil {
		log.Fatal("engine build failed", zap.Error(err))
	}
	defer engine.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", loginHandler(engine))
	mux.HandleFunc("POST /auth/refresh", refreshHandler(engine))
	mux.Handle("POST /auth/logout", middleware.Chain(logoutHandler(engine), middleware.Guard(engine)))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              envOr("LISTEN_ADDR", ":8000"),
		Handler:           middleware.Chain(mux, middleware.RateLimit(engine)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("gateway listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}
}

func loginHandler(engine *gatecred.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		grant, err := engine.Login(r.Context(), body.Username, body.Password, clientIP(r))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, grant)
	}
}

func refreshHandler(engine *gatecred.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID       string `json:"user_id"`
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		grant, err := engine.Refresh(r.Context(), body.UserID, body.RefreshToken)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, grant)
	}
}

func logoutHandler(engine *gatecred.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := engine.Logout(r.Context(), body.AccessToken, body.RefreshToken); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "logged out successfully"})
	}
}

// writeEngineError maps the engine error taxonomy onto HTTP statuses:
// quota → 429 with retry hint, blacklist → 401, provider errors verbatim,
// provider outage → 502.
func writeEngineError(w http.ResponseWriter, err error) {
	var quota *gatecred.QuotaExceededError
	var provider *upstream.Error

	switch {
	case errors.As(err, &quota):
		if quota.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(quota.RetryAfter.Seconds())))
		}
		writeError(w, http.StatusTooManyRequests, "too many requests")
	case errors.Is(err, gatecred.ErrTokenBlacklisted):
		writeError(w, http.StatusUnauthorized, "token is blacklisted")
	case errors.As(err, &provider):
		writeError(w, provider.Status, provider.Detail)
	case errors.Is(err, upstream.ErrUnreachable):
		writeError(w, http.StatusBadGateway, "identity provider unreachable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
