/*
scheduler.go - Automated accrual scheduler

PURPOSE:
  Periodically runs the monthly accrual and, in December, the year-end
  carry-forward. Both jobs are fenced by accrual-log rows, so the check
  interval can be short without risk of double credits.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Monthly accrual fires once per (leave type, year, month)
  - Carry-forward fires once per target year, only in December
  - Every run is recorded for audit and the stats endpoint

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAccrualScheduler(engine)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunAccrual / RunCarryForward (manual triggers)
  - leave/accrual.go: AccrualEngine
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/leave-engine/leave"
)

// AccrualScheduler drives the accrual engine on a timer.
type AccrualScheduler struct {
	Engine        *leave.AccrualEngine
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAccrualScheduler creates a new scheduler.
func NewAccrualScheduler(engine *leave.AccrualEngine) *AccrualScheduler {
	return &AccrualScheduler{
		Engine:        engine,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (as *AccrualScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.wg.Add(1)

	go as.run()

	log.Printf("[Scheduler] Started with check interval: %v", as.CheckInterval)
}

// Stop stops the scheduler.
func (as *AccrualScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		close(as.stop)
		as.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (as *AccrualScheduler) run() {
	defer as.wg.Done()

	// Run immediately on start
	as.checkAndProcess()

	for {
		select {
		case <-as.ticker.C:
			as.checkAndProcess()
		case <-as.stop:
			return
		}
	}
}

func (as *AccrualScheduler) checkAndProcess() {
	ctx := context.Background()
	now := time.Now()

	summary, err := as.Engine.RunMonthlyAccrual(ctx, now)
	if err != nil {
		accrualRunsTotal.WithLabelValues("monthly", "error").Inc()
		log.Printf("[Scheduler] Monthly accrual failed: %v", err)
	} else {
		accrualRunsTotal.WithLabelValues("monthly", runOutcome(summary)).Inc()
		if !summary.Skipped {
			log.Printf("[Scheduler] Monthly accrual %d-%02d: %d credited, %d failed",
				summary.Year, summary.Month, summary.Credited, summary.Failed)
		}
	}

	// Carry-forward only makes sense at the end of the year; the fence
	// row keeps repeated December checks from rolling over twice.
	if now.Month() == time.December {
		summary, err := as.Engine.RunYearEndCarryForward(ctx, now)
		if err != nil {
			accrualRunsTotal.WithLabelValues("carryforward", "error").Inc()
			log.Printf("[Scheduler] Carry-forward failed: %v", err)
		} else {
			accrualRunsTotal.WithLabelValues("carryforward", runOutcome(summary)).Inc()
			if !summary.Skipped {
				log.Printf("[Scheduler] Carry-forward into %d: %d employees",
					summary.Year, summary.Credited)
			}
		}
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (as *AccrualScheduler) RunNow() {
	as.checkAndProcess()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (as *AccrualScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(as.CheckInterval)
}
