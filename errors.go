package gatecred

import (
	"errors"
	"fmt"
	"time"

	"github.com/Alenazd/gatecred/kv"
)

var (
	// ErrQuotaExceeded is returned when a fixed-window quota is exhausted.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrTokenBlacklisted is returned when a presented token has been revoked.
	ErrTokenBlacklisted = errors.New("token blacklisted")

	// ErrStoreUnavailable marks internal store failures. It is never surfaced
	// to end users directly; call sites absorb it per the policy table.
	ErrStoreUnavailable = kv.ErrUnavailable
)

// QuotaExceededError is an ErrQuotaExceeded with a best-effort retry hint.
// RetryAfter is zero when the remaining window TTL could not be read.
type QuotaExceededError struct {
	RetryAfter time.Duration
}

func (e *QuotaExceededError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("quota exceeded, retry after %s", e.RetryAfter)
	}
	return "quota exceeded"
}

// Is makes errors.Is(err, ErrQuotaExceeded) match.
func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}
