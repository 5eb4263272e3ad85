/*
scheduler.go - Periodic heal scheduler

PURPOSE:
  Periodically heals every identity in the history so drift left by partial
  writes, direct history edits, or concurrent admin edits is repaired without
  an operator.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Each pass calls Healer.HealAll; heal is idempotent, so overlapping with a
    manual heal is harmless
  - The last pass's outcome is kept for Status

CONFIGURATION:
  - Interval: How often to heal (default: 1 hour)
  - Enabled:  Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewHealScheduler(healer, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: HealAllStock endpoint (manual trigger)
  - inventory/heal.go: Healer
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/crm-inventory/inventory"
)

// HealScheduler runs Healer.HealAll on a fixed interval.
type HealScheduler struct {
	Healer   *inventory.Healer
	Logger   *logrus.Logger
	Interval time.Duration
	Enabled  bool

	// Timeout bounds one pass. Zero means Interval.
	Timeout time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	statusMu sync.Mutex
	status   SchedulerStatus
}

// SchedulerStatus describes the most recent pass.
type SchedulerStatus struct {
	LastRunAt time.Time
	Healed    int
	Corrected int
	LastError string
	TotalRuns int
}

// NewHealScheduler creates a new scheduler.
func NewHealScheduler(healer *inventory.Healer, logger *logrus.Logger) *HealScheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HealScheduler{
		Healer:   healer,
		Logger:   logger,
		Interval: time.Hour,
		Enabled:  true,
	}
}

// Start begins the scheduler.
func (hs *HealScheduler) Start() {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if !hs.Enabled {
		hs.Logger.Info("heal scheduler disabled, not starting")
		return
	}
	if hs.ticker != nil {
		return
	}

	hs.ticker = time.NewTicker(hs.Interval)
	hs.stop = make(chan struct{})
	hs.wg.Add(1)

	go hs.run()

	hs.Logger.WithField("interval", hs.Interval.String()).Info("heal scheduler started")
}

// Stop stops the scheduler and waits for a running pass to finish.
func (hs *HealScheduler) Stop() {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if hs.ticker == nil {
		return
	}
	hs.ticker.Stop()
	close(hs.stop)
	hs.wg.Wait()
	hs.ticker = nil
	hs.Logger.Info("heal scheduler stopped")
}

func (hs *HealScheduler) run() {
	defer hs.wg.Done()

	hs.RunNow()

	for {
		select {
		case <-hs.ticker.C:
			hs.RunNow()
		case <-hs.stop:
			return
		}
	}
}

// RunNow runs one heal pass synchronously.
func (hs *HealScheduler) RunNow() SchedulerStatus {
	timeout := hs.Timeout
	if timeout <= 0 {
		timeout = hs.Interval
	}
	if timeout <= 0 {
		timeout = time.Hour
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	results, err := hs.Healer.HealAll(ctx)

	st := SchedulerStatus{LastRunAt: start}
	if err != nil {
		st.LastError = err.Error()
		hs.Logger.WithError(err).Error("heal pass failed")
	} else {
		st.Healed = len(results)
		for _, r := range results {
			st.Corrected += len(r.Corrections)
		}
		hs.Logger.WithFields(logrus.Fields{
			"identities":  st.Healed,
			"corrections": st.Corrected,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("heal pass complete")
	}

	hs.statusMu.Lock()
	st.TotalRuns = hs.status.TotalRuns + 1
	hs.status = st
	hs.statusMu.Unlock()
	return st
}

// Status returns the outcome of the most recent pass.
func (hs *HealScheduler) Status() SchedulerStatus {
	hs.statusMu.Lock()
	defer hs.statusMu.Unlock()
	return hs.status
}

// NextRunTime returns when the next scheduled pass will occur, give or take
// the duration of the current one.
func (hs *HealScheduler) NextRunTime() time.Time {
	return hs.Status().LastRunAt.Add(hs.Interval)
}
