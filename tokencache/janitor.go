package tokencache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SweepFunc performs one reconciliation pass and reports how many entries
// it evicted.
type SweepFunc func(ctx context.Context) (int, error)

// Janitor runs a sweep on a fixed interval, decoupled from the request
// path. It is owned by the process lifecycle: started once at init, stopped
// on shutdown. Skipping or delaying a run has no correctness impact when
// the store expires keys natively.
type Janitor struct {
	sweep    SweepFunc
	interval time.Duration
	log      *zap.Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewJanitor creates a stopped janitor. interval must be positive; the
// reference policy is hourly.
func NewJanitor(sweep SweepFunc, interval time.Duration, log *zap.Logger) *Janitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Janitor{
		sweep:    sweep,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Start launches the periodic loop.
func (j *Janitor) Start() {
	j.wg.Add(1)
	go j.run()
}

func (j *Janitor) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.runSweep()
		case <-j.done:
			return
		}
	}
}

// runSweep gives each pass its own bounded context so a hung store cannot
// wedge the loop past the next tick.
func (j *Janitor) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	evicted, err := j.sweep(ctx)
	if err != nil {
		j.log.Warn("token reconciliation failed", zap.Error(err))
		return
	}
	j.log.Debug("token reconciliation completed", zap.Int("evicted", evicted))
}

// Stop halts the loop and waits for an in-flight sweep to finish. Safe to
// call more than once.
func (j *Janitor) Stop() {
	if j == nil {
		return
	}
	j.stopOnce.Do(func() {
		close(j.done)
		j.wg.Wait()
	})
}
