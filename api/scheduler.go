/*
scheduler.go - Automated balance refresh scheduler

PURPOSE:
  Periodically recomputes stored balances so that a new entitlement year
  and the monthly short-leave window are reflected without a manual
  refresh call.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Refreshes every employee once per calendar month (by the service clock)
  - Ticks within a month that was already refreshed are no-ops
  - A failure for one employee is logged and does not stop the run

CONFIGURATION:
  - Interval: How often to check (REFRESH_INTERVAL, default: 1 hour)
  - Enabled: Whether scheduler is active (REFRESH_ENABLED, default: true)

USAGE:
  scheduler := NewRefreshScheduler(store, svc, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RefreshBalance endpoint (manual refresh)
  - leave/service.go: RefreshBalances
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

// EmployeeLister is the part of the store the scheduler needs.
type EmployeeLister interface {
	ListEmployees(ctx context.Context) ([]leave.Employee, error)
}

// RefreshScheduler refreshes stored balances at the start of each month.
type RefreshScheduler struct {
	Employees EmployeeLister
	Service   *leave.ApprovalService
	Logger    *zap.Logger
	Interval  time.Duration
	Enabled   bool

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun string
}

// NewRefreshScheduler creates a new scheduler.
func NewRefreshScheduler(employees EmployeeLister, svc *leave.ApprovalService, logger *zap.Logger) *RefreshScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshScheduler{
		Employees: employees,
		Service:   svc,
		Logger:    logger,
		Interval:  1 * time.Hour,
		Enabled:   true,
		stop:      make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *RefreshScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("refresh scheduler disabled")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.wg.Add(1)

	go rs.run(rs.ticker.C)

	rs.Logger.Info("refresh scheduler started", zap.Duration("interval", rs.Interval))
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (rs *RefreshScheduler) Stop() {
	rs.mu.Lock()
	ticker := rs.ticker
	rs.ticker = nil
	rs.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.Logger.Info("refresh scheduler stopped")
	}
}

func (rs *RefreshScheduler) run(c <-chan time.Time) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.tick()

	for {
		select {
		case <-c:
			rs.tick()
		case <-rs.stop:
			return
		}
	}
}

func (rs *RefreshScheduler) tick() {
	if _, err := rs.RunIfDue(context.Background()); err != nil {
		rs.Logger.Error("balance refresh failed", zap.Error(err))
	}
}

// RunIfDue refreshes all employees unless the current month was already
// refreshed. It reports whether a run happened.
func (rs *RefreshScheduler) RunIfDue(ctx context.Context) (bool, error) {
	today := rs.Service.Today()
	month := fmt.Sprintf("%04d-%02d", today.Year(), int(today.Month()))

	rs.mu.Lock()
	due := rs.lastRun != month
	rs.mu.Unlock()
	if !due {
		return false, nil
	}

	refreshed, err := rs.RefreshAll(ctx)
	if err != nil {
		return false, err
	}

	rs.mu.Lock()
	rs.lastRun = month
	rs.mu.Unlock()

	rs.Logger.Info("balance refresh complete",
		zap.String("month", month),
		zap.Int("refreshed", refreshed),
	)
	return true, nil
}

// RefreshAll recomputes balances for the current year for every employee and
// returns how many were updated.
func (rs *RefreshScheduler) RefreshAll(ctx context.Context) (int, error) {
	employees, err := rs.Employees.ListEmployees(ctx)
	if err != nil {
		return 0, fmt.Errorf("list employees: %w", err)
	}

	year := rs.Service.Today().Year()
	refreshed := 0
	for _, emp := range employees {
		if _, _, err := rs.Service.RefreshBalances(ctx, emp.ID, year); err != nil {
			rs.Logger.Warn("refresh employee balances",
				zap.String("employee_id", emp.ID),
				zap.Error(err),
			)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}
