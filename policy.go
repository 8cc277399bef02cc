package gatecred

import "go.uber.org/zap"

// storeOp identifies a store call site for failure-policy lookup and for the
// store_errors metric label.
type storeOp string

const (
	opTrafficCheck    storeOp = "traffic_check"
	opLoginCheck      storeOp = "login_check"
	opRecordFailure   storeOp = "record_failure"
	opBlacklistCheck  storeOp = "blacklist_check"
	opBlacklistWrite  storeOp = "blacklist_write"
	opCacheWrite      storeOp = "cache_write"
	opCacheRead       storeOp = "cache_read"
	opCacheInvalidate storeOp = "cache_invalidate"
	opReconcile       storeOp = "reconcile"
)

// failMode describes how a store failure at a call site is absorbed.
type failMode int

const (
	// failOpen treats the operation as permitted / not-found and continues.
	failOpen failMode = iota
	// failSilent logs the failure; the operation's outcome is unaffected.
	failSilent
	// failClosed denies the operation. No default policy uses it; it exists
	// so a site can be flipped without restructuring call sites.
	failClosed
)

// storePolicy is the single place the error taxonomy is enforced. Rate-limit
// and blacklist checks fail open because limiting must never become a total
// outage and rejected tokens are still caught by upstream validation; cache
// mutations are best-effort because auth correctness does not depend on
// caching succeeding.
var storePolicy = map[storeOp]failMode{
	opTrafficCheck:    failOpen,
	opLoginCheck:      failOpen,
	opRecordFailure:   failSilent,
	opBlacklistCheck:  failOpen,
	opBlacklistWrite:  failSilent,
	opCacheWrite:      failSilent,
	opCacheRead:       failOpen,
	opCacheInvalidate: failSilent,
	opReconcile:       failSilent,
}

// storeFailure records a store error and reports whether the call site may
// proceed as if the store had answered permissively. Timeouts take the same
// path as outright store errors.
func (e *Engine) storeFailure(op storeOp, err error) bool {
	if err == nil {
		return true
	}

	e.log.Warn("store operation failed",
		zap.String("op", string(op)),
		zap.Error(err),
	)
	e.metrics.storeError(op)

	return storePolicy[op] != failClosed
}
