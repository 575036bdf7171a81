package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 24.0, cfg.Booking.FullRefundHours)
	assert.Equal(t, 2.0, cfg.Booking.HalfChargeHours)
	assert.Equal(t, 1, cfg.Booking.MinDurationHours)
	assert.Equal(t, 24, cfg.Booking.MaxDurationHours)
	assert.Equal(t, -90.0, cfg.Booking.MinLat)
	assert.Equal(t, 180.0, cfg.Booking.MaxLng)
	assert.Equal(t, "usd", cfg.Payment.Currency)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 15.0, cfg.Ledger.DefaultCommission)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BOOKING_TAX_RATE", "0.07")
	t.Setenv("BOOKING_FULL_REFUND_HOURS", "48")
	t.Setenv("BOOKING_HALF_CHARGE_HOURS", "6")
	t.Setenv("BOOKING_MAX_DURATION_HOURS", "12")
	t.Setenv("PAYMENT_CURRENCY", "eur")
	t.Setenv("SCHEDULER_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 0.07, cfg.Booking.TaxRate, 1e-9)
	assert.Equal(t, 48.0, cfg.Booking.FullRefundHours)
	assert.Equal(t, 6.0, cfg.Booking.HalfChargeHours)
	assert.Equal(t, 12, cfg.Booking.MaxDurationHours)
	assert.Equal(t, "eur", cfg.Payment.Currency)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
}

func TestValidate_RejectsInconsistentRules(t *testing.T) {
	base := func() Config {
		return Config{
			Booking: BookingConfig{
				TaxRate: 0.1, FullRefundHours: 24, HalfChargeHours: 2,
				MinDurationHours: 1, MaxDurationHours: 24,
				MinLat: -90, MaxLat: 90, MinLng: -180, MaxLng: 180,
			},
			Scheduler: SchedulerConfig{Interval: time.Minute},
		}
	}

	ok := base()
	require.NoError(t, ok.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative tax", func(c *Config) { c.Booking.TaxRate = -0.1 }},
		{"zero min duration", func(c *Config) { c.Booking.MinDurationHours = 0 }},
		{"min above max", func(c *Config) { c.Booking.MinDurationHours = 30 }},
		{"half above full", func(c *Config) { c.Booking.HalfChargeHours = 48 }},
		{"inverted lat", func(c *Config) { c.Booking.MinLat = 10; c.Booking.MaxLat = -10 }},
		{"zero interval", func(c *Config) { c.Scheduler.Interval = 0 }},
		{"commission above 100", func(c *Config) { c.Ledger.DefaultCommission = 120 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
