package gatecred

import (
	"time"

	"github.com/Alenazd/gatecred/internal/rate"
)

// Decision is the outcome of a rate-limit check as seen by the routing
// layer. RetryAfter is a best-effort hint and is zero when the remaining
// window TTL could not be read.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

func fromRateDecision(d rate.Decision) Decision {
	return Decision{
		Allowed:    d.Allowed,
		Remaining:  d.Remaining,
		RetryAfter: d.RetryAfter,
	}
}

// allowAll is the fail-open decision used when the store is unreachable.
func allowAll() Decision {
	return Decision{Allowed: true}
}
