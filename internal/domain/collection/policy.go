package collection

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a wall-clock time of day (no date, no zone)
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM" into a ClockTime
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return ClockTime{}, fmt.Errorf("policy: invalid clock time %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return ClockTime{}, fmt.Errorf("policy: invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("policy: invalid minute in %q", s)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

// Minutes returns the time of day as minutes since midnight
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// String returns the "HH:MM" representation
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// PolicyConfig holds the operational rules a dispatch must satisfy.
// Loaded once per cycle and read-only during it.
type PolicyConfig struct {
	// BusinessStart and BusinessEnd bound the calling window in Timezone.
	// Start > End means the window wraps past midnight.
	BusinessStart ClockTime
	BusinessEnd   ClockTime
	Timezone      *time.Location
	// MaxRetryAttempts caps attempt numbers per invoice
	MaxRetryAttempts int
	// CallsPerMinute is the dispatch budget over a rolling one-minute window
	CallsPerMinute int
	// MaxCallDuration is the provider-enforced call duration ceiling
	MaxCallDuration time.Duration
	// WatchdogGrace is the margin past MaxCallDuration before the watchdog
	// forces TIMED_OUT
	WatchdogGrace time.Duration
}

// Validate reports the first configuration error, if any. A broken policy
// config is fatal at startup: the guard cannot run without it.
func (c PolicyConfig) Validate() error {
	if c.Timezone == nil {
		return fmt.Errorf("policy: timezone is required")
	}
	if c.MaxRetryAttempts < 1 {
		return fmt.Errorf("policy: max retry attempts must be at least 1")
	}
	if c.CallsPerMinute < 1 {
		return fmt.Errorf("policy: calls per minute must be at least 1")
	}
	if c.MaxCallDuration <= 0 {
		return fmt.Errorf("policy: max call duration must be positive")
	}
	if c.WatchdogGrace < 0 {
		return fmt.Errorf("policy: watchdog grace cannot be negative")
	}
	return nil
}

// WithinBusinessHours reports whether now falls inside the calling window.
// The check is timezone-aware and inclusive at the start boundary: a call at
// 09:00:00 sharp is allowed when the window opens at 09:00.
func (c PolicyConfig) WithinBusinessHours(now time.Time) bool {
	local := now.In(c.Timezone)
	m := local.Hour()*60 + local.Minute()
	start, end := c.BusinessStart.Minutes(), c.BusinessEnd.Minutes()
	if start <= end {
		return m >= start && m <= end
	}
	// Window wraps past midnight; the band between end and start is excluded
	return m >= start || m <= end
}

// TimeoutDeadline returns the elapsed duration past which an attempt is
// considered stuck and swept to TIMED_OUT
func (c PolicyConfig) TimeoutDeadline() time.Duration {
	return c.MaxCallDuration + c.WatchdogGrace
}

// DenyReason explains why the policy guard refused a dispatch
type DenyReason string

const (
	DenyNone                 DenyReason = ""
	DenyOutsideBusinessHours DenyReason = "outside business hours"
	DenyRetriesExhausted     DenyReason = "retry attempts exhausted"
	DenyRateLimited          DenyReason = "rate limit exceeded"
	DenyAttemptInFlight      DenyReason = "attempt already in flight"
	DenyInvoiceSettled       DenyReason = "invoice not callable"
)

// Decision is the policy guard's verdict on a proposed dispatch. A denial is
// an expected skip, not an error.
type Decision struct {
	Allow  bool
	Reason DenyReason
}

func allow() Decision                 { return Decision{Allow: true} }
func deny(reason DenyReason) Decision { return Decision{Reason: reason} }

// DispatchWindow is the rolling log of dispatch timestamps used for rate
// limiting. It holds a sliding one-minute counter rather than a fixed bucket
// so bursts across a minute boundary cannot double the budget. The live
// window is owned by the orchestrator (single-writer) and passed in here;
// MayDispatch only reads it.
type DispatchWindow struct {
	stamps []time.Time
}

// NewDispatchWindow creates a window pre-seeded with the given timestamps
// (e.g. restored from the persisted dispatch log on startup)
func NewDispatchWindow(stamps ...time.Time) *DispatchWindow {
	w := &DispatchWindow{}
	w.stamps = append(w.stamps, stamps...)
	return w
}

// Record appends a dispatch timestamp and prunes entries older than a minute
func (w *DispatchWindow) Record(t time.Time) {
	w.stamps = append(w.stamps, t)
	w.prune(t.Add(-time.Minute))
}

// CountSince returns how many dispatches happened at or after cutoff
func (w *DispatchWindow) CountSince(cutoff time.Time) int {
	n := 0
	for _, s := range w.stamps {
		if !s.Before(cutoff) {
			n++
		}
	}
	return n
}

// Timestamps returns a copy of the retained timestamps, oldest first
func (w *DispatchWindow) Timestamps() []time.Time {
	out := make([]time.Time, len(w.stamps))
	copy(out, w.stamps)
	return out
}

func (w *DispatchWindow) prune(before time.Time) {
	keep := w.stamps[:0]
	for _, s := range w.stamps {
		if !s.Before(before) {
			keep = append(keep, s)
		}
	}
	w.stamps = keep
}

// MayDispatch evaluates every policy rule against a proposed call. Pure and
// side-effect-free: the clock, the attempt history, and the rolling window
// all arrive as arguments. Rules are checked cheapest-first; the first
// failing rule wins.
func MayDispatch(
	cfg PolicyConfig,
	invoice Invoice,
	now time.Time,
	priorAttempts int,
	hasActiveAttempt bool,
	window *DispatchWindow,
) Decision {
	if !invoice.Status.IsCallable() {
		return deny(DenyInvoiceSettled)
	}
	if hasActiveAttempt {
		return deny(DenyAttemptInFlight)
	}
	if !cfg.WithinBusinessHours(now) {
		return deny(DenyOutsideBusinessHours)
	}
	if priorAttempts >= cfg.MaxRetryAttempts {
		return deny(DenyRetriesExhausted)
	}
	if window != nil && window.CountSince(now.Add(-time.Minute)) >= cfg.CallsPerMinute {
		return deny(DenyRateLimited)
	}
	return allow()
}
