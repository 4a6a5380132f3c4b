package collection

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicyConfig(t *testing.T) PolicyConfig {
	t.Helper()
	tz, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return PolicyConfig{
		BusinessStart:    ClockTime{Hour: 9, Minute: 0},
		BusinessEnd:      ClockTime{Hour: 19, Minute: 0},
		Timezone:         tz,
		MaxRetryAttempts: 3,
		CallsPerMinute:   10,
		MaxCallDuration:  5 * time.Minute,
		WatchdogGrace:    time.Minute,
	}
}

func pendingInvoice() Invoice {
	return Invoice{
		Ref:       "INV-001",
		ClientRef: "CL-001",
		AmountDue: decimal.NewFromInt(15000),
		Currency:  "INR",
		DueDate:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Status:    PaymentStatusPending,
	}
}

// kolkata builds a wall-clock instant in Asia/Kolkata
func kolkata(t *testing.T, hour, minute int) time.Time {
	t.Helper()
	tz, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return time.Date(2024, 6, 10, hour, minute, 0, 0, tz)
}

func TestParseClockTime(t *testing.T) {
	t.Run("parses valid time", func(t *testing.T) {
		ct, err := ParseClockTime("09:30")
		require.NoError(t, err)
		assert.Equal(t, 9, ct.Hour)
		assert.Equal(t, 30, ct.Minute)
		assert.Equal(t, "09:30", ct.String())
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		for _, bad := range []string{"", "9", "24:00", "09:60", "ab:cd"} {
			_, err := ParseClockTime(bad)
			assert.Error(t, err, bad)
		}
	})
}

func TestPolicyConfigValidate(t *testing.T) {
	t.Run("accepts valid config", func(t *testing.T) {
		assert.NoError(t, testPolicyConfig(t).Validate())
	})

	t.Run("rejects missing timezone", func(t *testing.T) {
		cfg := testPolicyConfig(t)
		cfg.Timezone = nil
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects zero retries", func(t *testing.T) {
		cfg := testPolicyConfig(t)
		cfg.MaxRetryAttempts = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects zero rate limit", func(t *testing.T) {
		cfg := testPolicyConfig(t)
		cfg.CallsPerMinute = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestWithinBusinessHours(t *testing.T) {
	cfg := testPolicyConfig(t)

	t.Run("denies one minute before opening", func(t *testing.T) {
		assert.False(t, cfg.WithinBusinessHours(kolkata(t, 8, 59)))
	})

	t.Run("allows at opening sharp", func(t *testing.T) {
		assert.True(t, cfg.WithinBusinessHours(kolkata(t, 9, 0)))
	})

	t.Run("allows mid-day", func(t *testing.T) {
		assert.True(t, cfg.WithinBusinessHours(kolkata(t, 14, 30)))
	})

	t.Run("denies after closing", func(t *testing.T) {
		assert.False(t, cfg.WithinBusinessHours(kolkata(t, 19, 1)))
	})

	t.Run("converts from other zones", func(t *testing.T) {
		// 03:00 UTC is 08:30 in Kolkata - before opening
		utc := time.Date(2024, 6, 10, 3, 0, 0, 0, time.UTC)
		assert.False(t, cfg.WithinBusinessHours(utc))
		// 05:00 UTC is 10:30 in Kolkata - open
		utc = time.Date(2024, 6, 10, 5, 0, 0, 0, time.UTC)
		assert.True(t, cfg.WithinBusinessHours(utc))
	})

	t.Run("window wrapping midnight excludes the band between end and start", func(t *testing.T) {
		wrapped := cfg
		wrapped.BusinessStart = ClockTime{Hour: 21, Minute: 0}
		wrapped.BusinessEnd = ClockTime{Hour: 2, Minute: 0}

		assert.True(t, wrapped.WithinBusinessHours(kolkata(t, 22, 0)))
		assert.True(t, wrapped.WithinBusinessHours(kolkata(t, 1, 30)))
		assert.False(t, wrapped.WithinBusinessHours(kolkata(t, 12, 0)))
		assert.False(t, wrapped.WithinBusinessHours(kolkata(t, 20, 59)))
	})
}

func TestMayDispatch(t *testing.T) {
	cfg := testPolicyConfig(t)
	now := kolkata(t, 11, 0)

	t.Run("allows a clean dispatch", func(t *testing.T) {
		d := MayDispatch(cfg, pendingInvoice(), now, 0, false, NewDispatchWindow())
		assert.True(t, d.Allow)
		assert.Equal(t, DenyNone, d.Reason)
	})

	t.Run("denies settled invoice", func(t *testing.T) {
		inv := pendingInvoice()
		inv.Status = PaymentStatusPaid
		d := MayDispatch(cfg, inv, now, 0, false, NewDispatchWindow())
		assert.False(t, d.Allow)
		assert.Equal(t, DenyInvoiceSettled, d.Reason)
	})

	t.Run("denies while an attempt is in flight", func(t *testing.T) {
		d := MayDispatch(cfg, pendingInvoice(), now, 1, true, NewDispatchWindow())
		assert.False(t, d.Allow)
		assert.Equal(t, DenyAttemptInFlight, d.Reason)
	})

	t.Run("denies outside business hours", func(t *testing.T) {
		d := MayDispatch(cfg, pendingInvoice(), kolkata(t, 8, 59), 0, false, NewDispatchWindow())
		assert.False(t, d.Allow)
		assert.Equal(t, DenyOutsideBusinessHours, d.Reason)
	})

	t.Run("denies when retries are exhausted", func(t *testing.T) {
		d := MayDispatch(cfg, pendingInvoice(), now, cfg.MaxRetryAttempts, false, NewDispatchWindow())
		assert.False(t, d.Allow)
		assert.Equal(t, DenyRetriesExhausted, d.Reason)
	})

	t.Run("denies the eleventh call within one minute at ten per minute", func(t *testing.T) {
		window := NewDispatchWindow()
		for i := 0; i < 10; i++ {
			window.Record(now.Add(time.Duration(i) * time.Second))
		}
		d := MayDispatch(cfg, pendingInvoice(), now.Add(30*time.Second), 0, false, window)
		assert.False(t, d.Allow)
		assert.Equal(t, DenyRateLimited, d.Reason)
	})

	t.Run("sliding window frees budget as dispatches age out", func(t *testing.T) {
		window := NewDispatchWindow()
		for i := 0; i < 10; i++ {
			window.Record(now.Add(time.Duration(i) * time.Second))
		}
		// 70 seconds later the oldest stamps have left the window
		d := MayDispatch(cfg, pendingInvoice(), now.Add(70*time.Second), 0, false, window)
		assert.True(t, d.Allow)
	})
}

func TestDispatchWindow(t *testing.T) {
	base := time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC)

	t.Run("counts only stamps inside the cutoff", func(t *testing.T) {
		w := NewDispatchWindow()
		w.Record(base)
		w.Record(base.Add(20 * time.Second))
		w.Record(base.Add(40 * time.Second))

		assert.Equal(t, 3, w.CountSince(base))
		assert.Equal(t, 2, w.CountSince(base.Add(10*time.Second)))
		assert.Equal(t, 0, w.CountSince(base.Add(time.Minute)))
	})

	t.Run("record prunes entries older than a minute", func(t *testing.T) {
		w := NewDispatchWindow()
		w.Record(base)
		w.Record(base.Add(2 * time.Minute))
		assert.Len(t, w.Timestamps(), 1)
	})

	t.Run("seeds from restored timestamps", func(t *testing.T) {
		w := NewDispatchWindow(base, base.Add(time.Second))
		assert.Equal(t, 2, w.CountSince(base))
	})
}
