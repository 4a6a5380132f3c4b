package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Maintainer is the orchestrator surface the background loops drive
type Maintainer interface {
	// SweepTimeouts closes attempts stuck past the watchdog deadline and
	// returns how many were swept
	SweepTimeouts(ctx context.Context) int
	// ReconcileLedger replays queued ledger writes
	ReconcileLedger(ctx context.Context) (written, remaining int)
}

// MaintenanceConfig holds configuration for the background maintenance loops
type MaintenanceConfig struct {
	// WatchdogInterval is how often stuck attempts are swept
	WatchdogInterval time.Duration
	// ReconcileInterval is how often queued ledger writes are replayed
	ReconcileInterval time.Duration
}

// DefaultMaintenanceConfig returns default maintenance configuration
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		WatchdogInterval:  30 * time.Second,
		ReconcileInterval: 5 * time.Minute,
	}
}

// MaintenanceLoop runs the watchdog sweep and the ledger reconciliation on
// their own tickers
type MaintenanceLoop struct {
	config     MaintenanceConfig
	maintainer Maintainer
	logger     *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewMaintenanceLoop creates a new maintenance loop
func NewMaintenanceLoop(config MaintenanceConfig, maintainer Maintainer, logger *zap.Logger) *MaintenanceLoop {
	if config.WatchdogInterval == 0 {
		config.WatchdogInterval = 30 * time.Second
	}
	if config.ReconcileInterval == 0 {
		config.ReconcileInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaintenanceLoop{
		config:     config,
		maintainer: maintainer,
		logger:     logger,
	}
}

// Start starts the maintenance loops
func (m *MaintenanceLoop) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = true
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(2)
	go m.watchdogLoop(ctx)
	go m.reconcileLoop(ctx)

	m.logger.Info("Maintenance loops started",
		zap.Duration("watchdog_interval", m.config.WatchdogInterval),
		zap.Duration("reconcile_interval", m.config.ReconcileInterval),
	)

	return nil
}

// Stop stops the maintenance loops
func (m *MaintenanceLoop) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = false
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Maintenance loops stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// watchdogLoop sweeps attempts stuck past their deadline
func (m *MaintenanceLoop) watchdogLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if swept := m.maintainer.SweepTimeouts(ctx); swept > 0 {
				m.logger.Warn("Watchdog closed stuck call attempts", zap.Int("swept", swept))
			}
		}
	}
}

// reconcileLoop replays queued ledger writes
func (m *MaintenanceLoop) reconcileLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			written, remaining := m.maintainer.ReconcileLedger(ctx)
			if written > 0 || remaining > 0 {
				m.logger.Info("Ledger reconciliation pass finished",
					zap.Int("written", written),
					zap.Int("remaining", remaining),
				)
			}
		}
	}
}
