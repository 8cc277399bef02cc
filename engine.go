package gatecred

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Alenazd/gatecred/internal/rate"
	"github.com/Alenazd/gatecred/jwt"
	"github.com/Alenazd/gatecred/kv"
	"github.com/Alenazd/gatecred/tokencache"
	"github.com/Alenazd/gatecred/upstream"
)

// IdentityProvider is the upstream service that owns credentials and mints
// tokens. [upstream.Client] is the production implementation; tests inject
// fakes.
type IdentityProvider interface {
	Login(ctx context.Context, username, password string) (*upstream.Grant, error)
	Refresh(ctx context.Context, refreshToken string) (*upstream.Grant, error)
	Logout(ctx context.Context, accessToken string) error
}

// Engine is the credential lifecycle engine. It composes the fixed-window
// rate limiter and the token cache over a single injected store handle and
// mediates between the routing layer and the identity provider.
//
// Engine holds no authoritative in-process state; all coordination goes
// through the store. Methods are safe for concurrent use after Build.
type Engine struct {
	config  Config
	store   kv.Store
	limiter *rate.Limiter
	tokens  *tokencache.Store
	idp     IdentityProvider
	audit   *auditDispatcher
	metrics *Metrics
	janitor *tokencache.Janitor
	log     *zap.Logger
	now     func() time.Time
}

func trafficKey(ip, path string) string {
	return "rate_limit:" + ip + ":" + path
}

func loginAttemptsKey(username, ip string) string {
	return "login_attempts:" + username + ":" + ip
}

// storeCtx bounds a store call with the configured timeout. Timeouts take
// the same fail-open path as store errors.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.StoreTimeout)
}

// CheckTraffic consumes one unit of the general-traffic quota for the
// (ip, path) pair. Every call counts; there is no post-hoc correction on
// this path.
func (e *Engine) CheckTraffic(ctx context.Context, ip, path string) Decision {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	key := trafficKey(ip, path)
	d, err := e.limiter.CheckAndConsume(sctx, key, e.config.RateLimit.TrafficQuota, e.config.RateLimit.TrafficWindow)
	if err != nil {
		e.storeFailure(opTrafficCheck, err)
		return allowAll()
	}

	if !d.Allowed {
		e.metrics.trafficThrottled.Inc()
		e.audit.emit(ctx, AuditEvent{
			EventType: AuditTrafficThrottled,
			IP:        ip,
			Key:       key,
		})
		e.log.Warn("traffic quota exceeded", zap.String("ip", ip), zap.String("path", path))
		return fromRateDecision(d)
	}

	e.metrics.trafficAllowed.Inc()
	return fromRateDecision(d)
}

// CheckLogin reports whether the (username, ip) pair is still inside its
// failed-attempt budget. It never consumes quota; failures are counted
// separately via RecordLoginFailure once the authentication outcome is
// known, so successful logins cost nothing.
func (e *Engine) CheckLogin(ctx context.Context, username, ip string) Decision {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	key := loginAttemptsKey(username, ip)
	d, err := e.limiter.Check(sctx, key, e.config.RateLimit.LoginQuota)
	if err != nil {
		e.storeFailure(opLoginCheck, err)
		return allowAll()
	}

	if !d.Allowed {
		e.metrics.loginThrottled.Inc()
		e.audit.emit(ctx, AuditEvent{
			EventType: AuditLoginThrottled,
			UserID:    username,
			IP:        ip,
		})
		e.log.Warn("login attempts exceeded", zap.String("username", username), zap.String("ip", ip))
	}
	return fromRateDecision(d)
}

// RecordLoginFailure counts one failed authentication attempt against the
// (username, ip) window.
func (e *Engine) RecordLoginFailure(ctx context.Context, username, ip string) {
	e.recordLoginFailure(ctx, username, ip)
}

// recordLoginFailure returns the window's new failure count, or zero when
// the store did not answer.
func (e *Engine) recordLoginFailure(ctx context.Context, username, ip string) int64 {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	count, err := e.limiter.RecordFailure(sctx, loginAttemptsKey(username, ip), e.config.RateLimit.LoginWindow)
	if err != nil {
		e.storeFailure(opRecordFailure, err)
		return 0
	}

	e.metrics.loginFailures.Inc()
	e.audit.emit(ctx, AuditEvent{
		EventType: AuditLoginFailed,
		UserID:    username,
		IP:        ip,
	})
	return count
}

// OnLoginSuccess caches the freshly issued pair for userID. Caching is
// best-effort: a store failure is logged and swallowed because auth has
// already succeeded upstream. A pair whose refresh token is already expired
// is rejected outright and never written.
func (e *Engine) OnLoginSuccess(ctx context.Context, userID string, pair tokencache.Pair) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	err := e.tokens.CacheTokens(sctx, userID, pair)
	switch {
	case errors.Is(err, tokencache.ErrExpiredPair):
		e.log.Warn("refusing to cache expired pair", zap.String("user_id", userID))
		return
	case err != nil:
		e.storeFailure(opCacheWrite, err)
		return
	}

	e.audit.emit(ctx, AuditEvent{EventType: AuditTokensCached, UserID: userID})
}

// CachedTokens returns the active pair for userID. Store errors are treated
// as a miss; the cache is an optimization, never an authority. The result
// must not be trusted for a token that IsTokenUsable rejects.
func (e *Engine) CachedTokens(ctx context.Context, userID string) (*tokencache.Pair, bool) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	pair, err := e.tokens.GetCachedTokens(sctx, userID)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			e.storeFailure(opCacheRead, err)
		}
		e.metrics.cacheMisses.Inc()
		return nil, false
	}

	e.metrics.cacheHits.Inc()
	return pair, true
}

// IsTokenUsable reports whether the presented token value passes the
// blacklist. Blacklist presence always wins over cache presence. A store
// failure fails open: upstream signature and expiry checks still stand
// between a forged token and the backend.
func (e *Engine) IsTokenUsable(ctx context.Context, token string) bool {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	blacklisted, err := e.tokens.IsBlacklisted(sctx, token)
	if err != nil {
		e.storeFailure(opBlacklistCheck, err)
		return true
	}

	if blacklisted {
		e.metrics.blacklistHits.Inc()
		e.audit.emit(ctx, AuditEvent{EventType: AuditBlacklistHit})
	}
	return !blacklisted
}

// OnLogout revokes both tokens of a pair and drops the cache entry. The
// three mutations are independent: a failure in any one is logged and the
// others are still attempted. Blacklist TTLs follow each token's remaining
// validity, capped by the configured policy.
func (e *Engine) OnLogout(ctx context.Context, userID, accessToken, refreshToken string) {
	now := e.now()

	if accessToken != "" {
		ttl := jwt.RemainingLifetime(accessToken, now, e.config.Blacklist.AccessTTLCap)
		e.blacklist(ctx, userID, accessToken, ttl, "access")
	}

	if refreshToken != "" {
		ttl := jwt.RemainingLifetime(refreshToken, now, e.config.Blacklist.RefreshTTLCap)
		e.blacklist(ctx, userID, refreshToken, ttl, "refresh")
	}

	sctx, cancel := e.storeCtx(ctx)
	e.storeFailure(opCacheInvalidate, e.tokens.InvalidateTokens(sctx, userID))
	cancel()

	e.audit.emit(ctx, AuditEvent{EventType: AuditLogout, UserID: userID})
	e.log.Info("user logged out", zap.String("user_id", userID))
}

// blacklist revokes one token value and records the mutation. A token with
// no remaining lifetime needs no entry and emits nothing.
func (e *Engine) blacklist(ctx context.Context, userID, token string, ttl time.Duration, kind string) {
	if ttl <= 0 {
		return
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.tokens.BlacklistToken(sctx, token, ttl); err != nil {
		e.storeFailure(opBlacklistWrite, err)
		return
	}

	e.audit.emit(ctx, AuditEvent{
		EventType: AuditTokenBlacklisted,
		UserID:    userID,
		Metadata:  map[string]string{"token_type": kind},
	})
}

// Login runs the full proxied login: failed-attempt check, upstream
// exchange, cache write. Only provider-rejected credentials consume login
// quota. Provider errors propagate verbatim.
func (e *Engine) Login(ctx context.Context, username, password, ip string) (*upstream.Grant, error) {
	if d := e.CheckLogin(ctx, username, ip); !d.Allowed {
		return nil, &QuotaExceededError{RetryAfter: d.RetryAfter}
	}

	grant, err := e.idp.Login(ctx, username, password)
	if err != nil {
		var provider *upstream.Error
		if errors.As(err, &provider) && provider.Status == http.StatusUnauthorized {
			count := e.recordLoginFailure(ctx, username, ip)
			// The failure that exhausts the window answers as throttled,
			// not as bad credentials; CheckLogin supplies the retry hint.
			if count >= e.config.RateLimit.LoginQuota {
				if d := e.CheckLogin(ctx, username, ip); !d.Allowed {
					return nil, &QuotaExceededError{RetryAfter: d.RetryAfter}
				}
			}
		}
		return nil, err
	}

	e.OnLoginSuccess(ctx, grant.UserID, pairFromGrant(grant))
	return grant, nil
}

// Refresh exchanges a refresh token for a new pair. The blacklist is
// consulted before the provider: a revoked refresh token is dead no matter
// what the provider would say about it.
func (e *Engine) Refresh(ctx context.Context, userID, refreshToken string) (*upstream.Grant, error) {
	if !e.IsTokenUsable(ctx, refreshToken) {
		return nil, ErrTokenBlacklisted
	}

	grant, err := e.idp.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	uid := grant.UserID
	if uid == "" {
		uid = userID
	}
	e.OnLoginSuccess(ctx, uid, pairFromGrant(grant))
	return grant, nil
}

// Logout revokes the pair locally, then notifies the provider. Local
// revocation runs first so a provider outage cannot leave revoked tokens
// usable at this gateway; the provider error, if any, propagates.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	userID := ""
	if claims, err := jwt.Decode(accessToken); err == nil {
		userID = claims.UserID
	}

	e.OnLogout(ctx, userID, accessToken, refreshToken)
	return e.idp.Logout(ctx, accessToken)
}

// ReconcileExpired sweeps entries whose expiry has passed. A no-op under a
// self-expiring store; idempotent everywhere.
func (e *Engine) ReconcileExpired(ctx context.Context) (int, error) {
	evicted, err := e.tokens.ReconcileExpired(ctx)
	if err != nil {
		e.storeFailure(opReconcile, err)
		return 0, err
	}

	e.metrics.reconcileRuns.Inc()
	e.metrics.addEvicted(evicted)
	e.audit.emit(ctx, AuditEvent{EventType: AuditReconcile})
	return evicted, nil
}

// AuditDropped reports how many audit events were shed by a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.droppedCount()
}

// Close stops the reconciliation task and drains the audit dispatcher. It
// does not close the store handle; the store is owned by whoever injected
// it.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.janitor.Stop()
	e.audit.close()
}

func pairFromGrant(grant *upstream.Grant) tokencache.Pair {
	return tokencache.Pair{
		AccessToken:   grant.AccessToken,
		RefreshToken:  grant.RefreshToken,
		AccessExpiry:  grant.AccessExp,
		RefreshExpiry: grant.RefreshExp,
	}
}
