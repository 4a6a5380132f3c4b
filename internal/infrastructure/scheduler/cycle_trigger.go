package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	orchestration "github.com/azeebneuron/PaymentReminderCallerAgent/internal/application/collection"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
	"go.uber.org/zap"
)

// CycleRunner runs one dispatch cycle over a set of clients
type CycleRunner interface {
	RunCycle(ctx context.Context, clients []collection.Client) (orchestration.CycleSummary, error)
}

// CycleTriggerConfig holds configuration for the daily cycle trigger
type CycleTriggerConfig struct {
	// DailyRunTime is when the daily cycle starts, "15:04" in Location
	DailyRunTime string
	// Location is the timezone the run time is interpreted in
	Location *time.Location

	// CheckInterval is how often to check if it's time to run
	CheckInterval time.Duration
}

// DefaultCycleTriggerConfig returns default cycle trigger configuration
func DefaultCycleTriggerConfig() CycleTriggerConfig {
	return CycleTriggerConfig{
		DailyRunTime:  "10:00",
		Location:      time.UTC,
		CheckInterval: time.Minute,
	}
}

// CycleTrigger starts the daily dispatch cycle at the configured local time.
// The cycle covers every client in the directory; a cycle still running from
// an earlier trigger is left alone.
type CycleTrigger struct {
	config    CycleTriggerConfig
	runHour   int
	runMinute int
	runner    CycleRunner
	directory collection.ClientDirectory
	logger    *zap.Logger

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRunDate string
}

// NewCycleTrigger creates a new daily cycle trigger
func NewCycleTrigger(
	config CycleTriggerConfig,
	runner CycleRunner,
	directory collection.ClientDirectory,
	logger *zap.Logger,
) (*CycleTrigger, error) {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.CheckInterval == 0 {
		config.CheckInterval = time.Minute
	}
	runAt, err := time.Parse("15:04", config.DailyRunTime)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid daily run time %q: %w", config.DailyRunTime, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CycleTrigger{
		config:    config,
		runHour:   runAt.Hour(),
		runMinute: runAt.Minute(),
		runner:    runner,
		directory: directory,
		logger:    logger,
	}, nil
}

// Start starts the cycle trigger
func (c *CycleTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Cycle trigger started",
		zap.String("daily_run_time", c.config.DailyRunTime),
		zap.String("timezone", c.config.Location.String()),
		zap.Duration("check_interval", c.config.CheckInterval),
	)

	return nil
}

// Stop stops the cycle trigger
func (c *CycleTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Cycle trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLoop checks periodically if it's time to run the daily cycle
func (c *CycleTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndTrigger(ctx)
		}
	}
}

// checkAndTrigger runs the cycle when the local clock passes the run time
func (c *CycleTrigger) checkAndTrigger(ctx context.Context) {
	if !c.claimRun(time.Now().In(c.config.Location)) {
		return
	}
	c.logger.Info("Triggering daily dispatch cycle")
	c.runCycle(ctx)
}

// claimRun reports whether today's cycle is due and, if so, claims it.
// Due means at or past today's run instant rather than exactly on the run
// minute: a tick can land just past the minute and must still fire. The
// lastRunDate guard keeps this to one run per day; a restart after the run
// time catches up on today's cycle.
func (c *CycleTrigger) claimRun(now time.Time) bool {
	runAt := time.Date(now.Year(), now.Month(), now.Day(),
		c.runHour, c.runMinute, 0, 0, c.config.Location)
	if now.Before(runAt) {
		return false
	}

	currentDate := now.Format("2006-01-02")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastRunDate == currentDate {
		return false
	}
	c.lastRunDate = currentDate
	return true
}

// runCycle lists the clients and hands them to the orchestrator
func (c *CycleTrigger) runCycle(ctx context.Context) {
	clients, err := c.directory.ListClients(ctx)
	if err != nil {
		c.logger.Error("Failed to list clients for dispatch cycle", zap.Error(err))
		return
	}
	if len(clients) == 0 {
		c.logger.Info("No clients registered; skipping dispatch cycle")
		return
	}

	summary, err := c.runner.RunCycle(ctx, clients)
	if err != nil {
		if errors.Is(err, orchestration.ErrCycleInProgress) {
			c.logger.Warn("Previous dispatch cycle still running; skipping trigger")
			return
		}
		c.logger.Error("Dispatch cycle failed", zap.Error(err))
		return
	}

	c.logger.Info("Daily dispatch cycle finished",
		zap.Int("clients", summary.Clients),
		zap.Int("candidates", summary.Candidates),
		zap.Int("dispatched", summary.Dispatched),
		zap.Int("skipped", summary.Skipped),
		zap.Int("deferred", summary.Deferred),
		zap.Int("dispatch_failures", summary.DispatchFailures),
		zap.Duration("duration", summary.Duration),
	)
}
